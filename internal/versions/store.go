package versions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

// DefaultRetentionLimit caps how many versions are kept per document when
// the configuration does not say otherwise.
const DefaultRetentionLimit = 50

var (
	// ErrMissingDatabase indicates the store was constructed without a database handle.
	ErrMissingDatabase = errors.New("versions: database handle is required")
	// ErrMissingIDProvider indicates the store was constructed without an identifier provider.
	ErrMissingIDProvider = errors.New("versions: id provider is required")
)

// StoreConfig carries the dependencies required to construct a Store.
type StoreConfig struct {
	Database       *gorm.DB
	IDProvider     ids.Provider
	Clock          func() time.Time
	Logger         *zap.Logger
	RetentionLimit int
}

// Store manages the append-only version history of documents.
type Store struct {
	db        *gorm.DB
	ids       ids.Provider
	now       func() time.Time
	logger    *zap.Logger
	retention int
}

// NewStore validates the configuration and returns a ready Store.
func NewStore(cfg StoreConfig) (*Store, error) {
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
	retention := cfg.RetentionLimit
	if retention <= 0 {
		retention = DefaultRetentionLimit
	}
	return &Store{
		db:        cfg.Database,
		ids:       cfg.IDProvider,
		now:       clock,
		logger:    logger,
		retention: retention,
	}, nil
}

// CommitParams describes one snapshot to append to a document's history.
type CommitParams struct {
	DocumentID    string
	Title         string
	Content       string
	ChangeSummary string
	ChangedByID   string
}

// Commit appends the next version on the caller's transaction. Numbering is
// derived from the current latest version and protected by the unique
// (document_id, version_number) index: when two transactions race for the
// same number, the loser surfaces as a Conflict and the caller decides
// whether to retry. Diff statistics are computed against the previous
// snapshot; the first version of a document carries zero stats. Versions
// beyond the retention limit are pruned in the same transaction.
func (s *Store) Commit(ctx context.Context, tx *gorm.DB, params CommitParams) (*Version, error) {
	if tx == nil {
		return nil, apperr.Internal("version commit requires a transaction", nil)
	}
	if params.DocumentID == "" {
		return nil, apperr.Invalid("document id is required", nil)
	}

	var prior Version
	hasPrior := true
	err := tx.WithContext(ctx).
		Where("document_id = ?", params.DocumentID).
		Order("version_number DESC").
		First(&prior).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("failed to load latest version", err)
		}
		hasPrior = false
	}

	number := int64(1)
	var stats DiffStats
	if hasPrior {
		number = prior.Number + 1
		stats = computeDiffStats(prior.Content, params.Content)
	}

	identifier, err := s.ids.NewID()
	if err != nil {
		return nil, apperr.Internal("failed to generate version id", err)
	}

	version := Version{
		ID:            identifier,
		DocumentID:    params.DocumentID,
		Number:        number,
		Title:         params.Title,
		Content:       params.Content,
		ChangeSummary: params.ChangeSummary,
		CreatedByID:   params.ChangedByID,
		CharsAdded:    stats.CharsAdded,
		CharsRemoved:  stats.CharsRemoved,
		WordsAdded:    stats.WordsAdded,
		WordsRemoved:  stats.WordsRemoved,
		CreatedAt:     s.now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict(fmt.Sprintf("version %d already committed for document %s", number, params.DocumentID), err)
		}
		return nil, apperr.Internal("failed to persist version", err)
	}

	if cutoff := number - int64(s.retention); cutoff > 0 {
		pruned := tx.WithContext(ctx).
			Where("document_id = ? AND version_number <= ?", params.DocumentID, cutoff).
			Delete(&Version{})
		if pruned.Error != nil {
			return nil, apperr.Internal("failed to prune old versions", pruned.Error)
		}
		if pruned.RowsAffected > 0 {
			s.logger.Debug("pruned old document versions",
				zap.String("document_id", params.DocumentID),
				zap.Int64("through_version", cutoff),
				zap.Int64("removed", pruned.RowsAffected))
		}
	}

	return &version, nil
}

// Latest returns the newest version of a document, or NotFound when the
// document has no history.
func (s *Store) Latest(ctx context.Context, documentID string) (*Version, error) {
	var version Version
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("version_number DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("no versions for document %s", documentID), err)
		}
		return nil, apperr.Internal("failed to load latest version", err)
	}
	return &version, nil
}

// List returns a document's surviving versions, newest first.
func (s *Store) List(ctx context.Context, documentID string) ([]Version, error) {
	var records []Version
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("version_number DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperr.Internal("failed to list versions", err)
	}
	return records, nil
}

// Get loads one version by its number. Versions belonging to a different
// document are indistinguishable from missing ones.
func (s *Store) Get(ctx context.Context, documentID string, number int64) (*Version, error) {
	var version Version
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND version_number = ?", documentID, number).
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("version %d not found for document %s", number, documentID), err)
		}
		return nil, apperr.Internal("failed to load version", err)
	}
	return &version, nil
}

// DeleteForDocument removes the entire history of a document on the
// caller's transaction. Used when the document itself is deleted.
func (s *Store) DeleteForDocument(ctx context.Context, tx *gorm.DB, documentID string) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.WithContext(ctx).Where("document_id = ?", documentID).Delete(&Version{}).Error; err != nil {
		return apperr.Internal("failed to delete document versions", err)
	}
	return nil
}
