package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

var (
	// ErrMissingDatabase indicates the registry was constructed without a database handle.
	ErrMissingDatabase = errors.New("sharing: database handle is required")
	// ErrMissingIDProvider indicates the registry was constructed without an identifier provider.
	ErrMissingIDProvider = errors.New("sharing: id provider is required")
)

// RegistryConfig carries the dependencies required to construct a Registry.
type RegistryConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Registry persists and queries document sharing state.
type Registry struct {
	db     *gorm.DB
	ids    ids.Provider
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry validates the configuration and returns a ready Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Database == nil {
		return nil, ErrMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, ErrMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: cfg.Database, ids: cfg.IDProvider, now: clock, logger: logger}, nil
}

func (r *Registry) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Grant shares a document with a user, upserting the single row for the
// (document, user) pair. The returned flag reports whether access was
// established by this call: true for a fresh grant or a reactivated revoked
// one, false when only the level of an active grant changed. Granting the
// same level twice is a no-op.
func (r *Registry) Grant(ctx context.Context, tx *gorm.DB, documentID, userID string, level access.Level, grantedByID string) (*AccessGrant, bool, error) {
	if level == access.LevelNone {
		return nil, false, apperr.Invalid("cannot grant the none level", nil)
	}
	db := r.handle(tx)

	var grant AccessGrant
	err := db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		First(&grant).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identifier, idErr := r.ids.NewID()
		if idErr != nil {
			return nil, false, apperr.Internal("failed to generate grant id", idErr)
		}
		now := r.now().UTC()
		grant = AccessGrant{
			ID:          identifier,
			DocumentID:  documentID,
			UserID:      userID,
			Level:       level,
			GrantedByID: grantedByID,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if createErr := db.WithContext(ctx).Create(&grant).Error; createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				return nil, false, apperr.Conflict("concurrent grant for the same user", createErr)
			}
			return nil, false, apperr.Internal("failed to persist grant", createErr)
		}
		return &grant, true, nil
	case err != nil:
		return nil, false, apperr.Internal("failed to load grant", err)
	}

	created := !grant.Active
	grant.Level = level
	grant.GrantedByID = grantedByID
	grant.Active = true
	grant.RevokedAt = nil
	grant.UpdatedAt = r.now().UTC()
	if saveErr := db.WithContext(ctx).Save(&grant).Error; saveErr != nil {
		return nil, false, apperr.Internal("failed to update grant", saveErr)
	}
	return &grant, created, nil
}

// Revoke withdraws a user's direct grant. The row is kept with a revocation
// timestamp. Revoking a user who holds no active grant is NotFound.
func (r *Registry) Revoke(ctx context.Context, tx *gorm.DB, documentID, userID string) (*AccessGrant, error) {
	db := r.handle(tx)

	var grant AccessGrant
	err := db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND active = ?", documentID, userID, true).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("no active grant for user %s", userID), err)
		}
		return nil, apperr.Internal("failed to load grant", err)
	}

	now := r.now().UTC()
	grant.Active = false
	grant.RevokedAt = &now
	grant.UpdatedAt = now
	if saveErr := db.WithContext(ctx).Save(&grant).Error; saveErr != nil {
		return nil, apperr.Internal("failed to revoke grant", saveErr)
	}
	return &grant, nil
}

// ShareWithGroup links a document to a group, upserting the single row for
// the (document, group) pair with the same semantics as Grant.
func (r *Registry) ShareWithGroup(ctx context.Context, tx *gorm.DB, documentID, groupID string, level access.Level, sharedByID string) (*GroupShare, bool, error) {
	if level == access.LevelNone {
		return nil, false, apperr.Invalid("cannot share at the none level", nil)
	}
	db := r.handle(tx)

	var share GroupShare
	err := db.WithContext(ctx).
		Where("document_id = ? AND group_id = ?", documentID, groupID).
		First(&share).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identifier, idErr := r.ids.NewID()
		if idErr != nil {
			return nil, false, apperr.Internal("failed to generate share id", idErr)
		}
		now := r.now().UTC()
		share = GroupShare{
			ID:         identifier,
			DocumentID: documentID,
			GroupID:    groupID,
			Level:      level,
			SharedByID: sharedByID,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if createErr := db.WithContext(ctx).Create(&share).Error; createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				return nil, false, apperr.Conflict("concurrent share for the same group", createErr)
			}
			return nil, false, apperr.Internal("failed to persist group share", createErr)
		}
		return &share, true, nil
	case err != nil:
		return nil, false, apperr.Internal("failed to load group share", err)
	}

	created := !share.Active
	share.Level = level
	share.SharedByID = sharedByID
	share.Active = true
	share.RevokedAt = nil
	share.UpdatedAt = r.now().UTC()
	if saveErr := db.WithContext(ctx).Save(&share).Error; saveErr != nil {
		return nil, false, apperr.Internal("failed to update group share", saveErr)
	}
	return &share, created, nil
}

// RevokeGroup withdraws a group's link to the document.
func (r *Registry) RevokeGroup(ctx context.Context, tx *gorm.DB, documentID, groupID string) (*GroupShare, error) {
	db := r.handle(tx)

	var share GroupShare
	err := db.WithContext(ctx).
		Where("document_id = ? AND group_id = ? AND active = ?", documentID, groupID, true).
		First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("no active share for group %s", groupID), err)
		}
		return nil, apperr.Internal("failed to load group share", err)
	}

	now := r.now().UTC()
	share.Active = false
	share.RevokedAt = &now
	share.UpdatedAt = now
	if saveErr := db.WithContext(ctx).Save(&share).Error; saveErr != nil {
		return nil, apperr.Internal("failed to revoke group share", saveErr)
	}
	return &share, nil
}

// Paths collects the live grant state feeding a permission check: the
// user's direct level (none without an active grant) and one group path per
// active share the user can reach through an active membership in an
// active group.
func (r *Registry) Paths(ctx context.Context, documentID, userID string) (access.Level, []access.GroupPath, error) {
	direct := access.LevelNone
	if userID != "" {
		var grant AccessGrant
		err := r.db.WithContext(ctx).
			Where("document_id = ? AND user_id = ? AND active = ?", documentID, userID, true).
			First(&grant).Error
		switch {
		case err == nil:
			direct = grant.Level
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return access.LevelNone, nil, apperr.Internal("failed to load direct grant", err)
		}
	}

	var paths []access.GroupPath
	if userID != "" {
		rows := []struct {
			ShareLevel  access.Level
			MemberLevel access.Level
		}{}
		err := r.db.WithContext(ctx).
			Table("document_group_shares").
			Select("document_group_shares.level AS share_level, group_memberships.level AS member_level").
			Joins("JOIN group_memberships ON group_memberships.group_id = document_group_shares.group_id").
			Joins("JOIN groups ON groups.id = document_group_shares.group_id").
			Where("document_group_shares.document_id = ? AND document_group_shares.active = ?", documentID, true).
			Where("group_memberships.user_id = ? AND group_memberships.active = ?", userID, true).
			Where("groups.active = ?", true).
			Scan(&rows).Error
		if err != nil {
			return access.LevelNone, nil, apperr.Internal("failed to load group paths", err)
		}
		for _, row := range rows {
			paths = append(paths, access.GroupPath{ShareLevel: row.ShareLevel, MemberLevel: row.MemberLevel})
		}
	}

	return direct, paths, nil
}

// Collaborators lists the active direct grants on a document.
func (r *Registry) Collaborators(ctx context.Context, documentID string) ([]AccessGrant, error) {
	var grants []AccessGrant
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND active = ?", documentID, true).
		Order("created_at ASC").
		Find(&grants).Error
	if err != nil {
		return nil, apperr.Internal("failed to list collaborators", err)
	}
	return grants, nil
}

// GroupShares lists the active group links on a document.
func (r *Registry) GroupShares(ctx context.Context, documentID string) ([]GroupShare, error) {
	var shares []GroupShare
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND active = ?", documentID, true).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, apperr.Internal("failed to list group shares", err)
	}
	return shares, nil
}

// SharedDocumentIDs returns the ids of documents the user can reach through
// an active direct grant or an active group share.
func (r *Registry) SharedDocumentIDs(ctx context.Context, userID string) ([]string, error) {
	var directIDs []string
	err := r.db.WithContext(ctx).
		Model(&AccessGrant{}).
		Where("user_id = ? AND active = ?", userID, true).
		Pluck("document_id", &directIDs).Error
	if err != nil {
		return nil, apperr.Internal("failed to list granted documents", err)
	}

	var groupIDs []string
	err = r.db.WithContext(ctx).
		Table("document_group_shares").
		Joins("JOIN group_memberships ON group_memberships.group_id = document_group_shares.group_id").
		Joins("JOIN groups ON groups.id = document_group_shares.group_id").
		Where("document_group_shares.active = ?", true).
		Where("group_memberships.user_id = ? AND group_memberships.active = ?", userID, true).
		Where("groups.active = ?", true).
		Pluck("document_group_shares.document_id", &groupIDs).Error
	if err != nil {
		return nil, apperr.Internal("failed to list group shared documents", err)
	}

	seen := make(map[string]struct{}, len(directIDs)+len(groupIDs))
	var documentIDs []string
	for _, id := range append(directIDs, groupIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		documentIDs = append(documentIDs, id)
	}
	return documentIDs, nil
}

// DeleteForDocument removes every grant and group share of a document on
// the caller's transaction. Used when the document itself is deleted.
func (r *Registry) DeleteForDocument(ctx context.Context, tx *gorm.DB, documentID string) error {
	db := r.handle(tx)
	if err := db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&AccessGrant{}).Error; err != nil {
		return apperr.Internal("failed to delete grants", err)
	}
	if err := db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&GroupShare{}).Error; err != nil {
		return apperr.Internal("failed to delete group shares", err)
	}
	return nil
}
