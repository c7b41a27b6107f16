package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

var (
	errMissingDatabase   = errors.New("groups: database handle is required")
	errMissingIDProvider = errors.New("groups: id provider is required")
)

// ServiceConfig describes the dependencies of the group service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service manages groups and their memberships.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the group service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateGroup creates a group and the owner's membership in one
// transaction. The owner joins with role owner and admin-level document
// permission.
func (s *Service) CreateGroup(ctx context.Context, ownerID, name, description string, defaultLevel access.Level) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("group name cannot be empty", nil)
	}
	if defaultLevel == access.LevelNone {
		defaultLevel = access.LevelView
	}

	groupID, err := s.idProvider.NewID()
	if err != nil {
		return nil, apperr.Internal("id generation failed", err)
	}
	membershipID, err := s.idProvider.NewID()
	if err != nil {
		return nil, apperr.Internal("id generation failed", err)
	}

	now := s.clock().UTC()
	group := Group{
		ID:                 groupID,
		Name:               name,
		Description:        description,
		OwnerID:            ownerID,
		DefaultMemberLevel: defaultLevel,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	membership := Membership{
		ID:          membershipID,
		GroupID:     groupID,
		UserID:      ownerID,
		Role:        RoleOwner,
		Level:       access.LevelAdmin,
		InvitedByID: ownerID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, apperr.Internal("group create failed", err)
	}

	s.logger.Info("group created", zap.String("group_id", groupID), zap.String("owner_id", ownerID))
	return &group, nil
}

// AddMember adds userID to the group with the given role and document
// permission level. The actor must hold a management role. Re-adding a
// previously removed member reactivates the old row.
func (s *Service) AddMember(ctx context.Context, groupID, actorID, userID string, role Role, level access.Level) (*Membership, error) {
	if !validRole(role) {
		return nil, apperr.Invalid(fmt.Sprintf("unknown role %q", role), nil)
	}
	if role == RoleOwner {
		return nil, apperr.Invalid("the owner role cannot be granted", nil)
	}

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	if level == access.LevelNone {
		level = group.DefaultMemberLevel
	}

	now := s.clock().UTC()
	var membership Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			id, err := s.idProvider.NewID()
			if err != nil {
				return apperr.Internal("id generation failed", err)
			}
			membership = Membership{
				ID:          id,
				GroupID:     groupID,
				UserID:      userID,
				Role:        role,
				Level:       level,
				InvitedByID: actorID,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&membership).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperr.Conflict("membership already exists", err)
				}
				return err
			}
			return nil
		}
		if err != nil {
			return err
		}
		if membership.Active {
			return apperr.Conflict("user is already a member", nil)
		}
		membership.Role = role
		membership.Level = level
		membership.Active = true
		membership.InvitedByID = actorID
		membership.UpdatedAt = now
		return tx.Model(&Membership{}).Where("id = ?", membership.ID).Updates(map[string]any{
			"role":          membership.Role,
			"level":         membership.Level,
			"active":        true,
			"invited_by_id": actorID,
			"updated_at":    now,
		}).Error
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal("membership create failed", err)
	}
	return &membership, nil
}

// RemoveMember deactivates userID's membership. The actor must hold a
// management role; the owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, userID string) error {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireManager(ctx, groupID, actorID); err != nil {
		return err
	}

	var membership Membership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND active = ?", groupID, userID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("membership not found", err)
	}
	if err != nil {
		return apperr.Internal("membership lookup failed", err)
	}
	if membership.Role == RoleOwner {
		return apperr.Forbidden("the group owner cannot be removed", nil)
	}

	return s.db.WithContext(ctx).Model(&Membership{}).Where("id = ?", membership.ID).Updates(map[string]any{
		"active":     false,
		"updated_at": s.clock().UTC(),
	}).Error
}

// ActiveMembers returns the active memberships of a group.
func (s *Service) ActiveMembers(ctx context.Context, groupID string) ([]Membership, error) {
	var members []Membership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND active = ?", groupID, true).
		Find(&members).Error
	if err != nil {
		return nil, apperr.Internal("membership list failed", err)
	}
	return members, nil
}

func (s *Service) getGroup(ctx context.Context, groupID string) (*Group, error) {
	var group Group
	err := s.db.WithContext(ctx).Where("id = ? AND active = ?", groupID, true).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("group not found", err)
	}
	if err != nil {
		return nil, apperr.Internal("group lookup failed", err)
	}
	return &group, nil
}

func (s *Service) requireManager(ctx context.Context, groupID, actorID string) error {
	var membership Membership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND active = ?", groupID, actorID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Forbidden("only group managers may modify membership", nil)
	}
	if err != nil {
		return apperr.Internal("membership lookup failed", err)
	}
	if !membership.Role.CanManageMembers() {
		return apperr.Forbidden("only group managers may modify membership", nil)
	}
	return nil
}
