package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/apperr"
)

// ErrInvalidIdentity indicates the caller supplied no usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies of the identity service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages the registry of known principals.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Ensure records or refreshes the identity for an authenticated subject and
// returns the stored row.
func (s *Service) Ensure(ctx context.Context, id, email, displayName string) (*Identity, error) {
	id = normalize(id)
	if id == "" {
		return nil, ErrInvalidIdentity
	}

	var identity Identity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			ID:          id,
			Email:       normalize(email),
			DisplayName: normalize(displayName),
			LastSeenAt:  s.now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a race with a concurrent first request for the
				// same subject; the row exists now.
				return s.Get(ctx, id)
			}
			return nil, apperr.Internal("identity create failed", err)
		}
		return &identity, nil
	}
	if err != nil {
		return nil, apperr.Internal("identity lookup failed", err)
	}

	updates := map[string]any{"last_seen_at": s.now().UTC()}
	if normalized := normalize(email); normalized != "" && normalized != identity.Email {
		updates["email"] = normalized
		identity.Email = normalized
	}
	if normalized := normalize(displayName); normalized != "" && normalized != identity.DisplayName {
		updates["display_name"] = normalized
		identity.DisplayName = normalized
	}
	if err := s.db.WithContext(ctx).Model(&Identity{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, apperr.Internal("identity refresh failed", err)
	}
	return &identity, nil
}

// Get returns the identity for id or a not-found error.
func (s *Service) Get(ctx context.Context, id string) (*Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found", err)
	}
	if err != nil {
		return nil, apperr.Internal("identity lookup failed", err)
	}
	return &identity, nil
}

// Exists reports whether a principal with id is known.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Identity{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, apperr.Internal("identity lookup failed", err)
	}
	return count > 0, nil
}
