package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/ids"
	"github.com/quillstone/backend/internal/sharing"
	"github.com/quillstone/backend/internal/users"
	"github.com/quillstone/backend/internal/versions"
)

// casRetryLimit bounds how often a mutation is retried after losing the
// version-number race before the conflict surfaces to the caller.
const casRetryLimit = 3

const entityKindDocument = "document"

var (
	// ErrMissingDatabase indicates the service was constructed without a database handle.
	ErrMissingDatabase = errors.New("documents: database handle is required")
	// ErrMissingVersions indicates the service was constructed without a version store.
	ErrMissingVersions = errors.New("documents: version store is required")
	// ErrMissingRegistry indicates the service was constructed without a sharing registry.
	ErrMissingRegistry = errors.New("documents: sharing registry is required")
	// ErrMissingAudit indicates the service was constructed without an audit recorder.
	ErrMissingAudit = errors.New("documents: audit recorder is required")
	// ErrMissingUsers indicates the service was constructed without the identity service.
	ErrMissingUsers = errors.New("documents: identity service is required")
	// ErrMissingPublisher indicates the service was constructed without an event publisher.
	ErrMissingPublisher = errors.New("documents: event publisher is required")
	// ErrMissingIDProvider indicates the service was constructed without an identifier provider.
	ErrMissingIDProvider = errors.New("documents: id provider is required")
)

// VersionStore is the history boundary the service writes through.
type VersionStore interface {
	Commit(ctx context.Context, tx *gorm.DB, params versions.CommitParams) (*versions.Version, error)
	List(ctx context.Context, documentID string) ([]versions.Version, error)
	Get(ctx context.Context, documentID string, number int64) (*versions.Version, error)
	DeleteForDocument(ctx context.Context, tx *gorm.DB, documentID string) error
}

// EventPublisher accepts domain events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ServiceConfig describes the dependencies of the document service.
type ServiceConfig struct {
	Database   *gorm.DB
	Versions   VersionStore
	Registry   *sharing.Registry
	Audit      *audit.Recorder
	Users      *users.Service
	Publisher  EventPublisher
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service coordinates document mutations across versioning, sharing, audit
// and event delivery.
type Service struct {
	db        *gorm.DB
	versions  VersionStore
	registry  *sharing.Registry
	audit     *audit.Recorder
	users     *users.Service
	publisher EventPublisher
	ids       ids.Provider
	now       func() time.Time
	logger    *zap.Logger
}

// NewService validates the configuration and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, ErrMissingDatabase
	}
	if cfg.Versions == nil {
		return nil, ErrMissingVersions
	}
	if cfg.Registry == nil {
		return nil, ErrMissingRegistry
	}
	if cfg.Audit == nil {
		return nil, ErrMissingAudit
	}
	if cfg.Users == nil {
		return nil, ErrMissingUsers
	}
	if cfg.Publisher == nil {
		return nil, ErrMissingPublisher
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
	return &Service{
		db:        cfg.Database,
		versions:  cfg.Versions,
		registry:  cfg.Registry,
		audit:     cfg.Audit,
		users:     cfg.Users,
		publisher: cfg.Publisher,
		ids:       cfg.IDProvider,
		now:       clock,
		logger:    logger,
	}, nil
}

// load fetches a document row. Missing documents are NotFound regardless of
// who asks; visibility masking happens in authorize.
func (s *Service) load(ctx context.Context, db *gorm.DB, documentID string) (*Document, error) {
	var document Document
	err := db.WithContext(ctx).Where("id = ?", documentID).First(&document).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("document not found", err)
		}
		return nil, apperr.Internal("document lookup failed", err)
	}
	return &document, nil
}

// snapshot assembles the live grant state for one permission check.
func (s *Service) snapshot(ctx context.Context, document *Document, userID string) (access.Snapshot, error) {
	direct, paths, err := s.registry.Paths(ctx, document.ID, userID)
	if err != nil {
		return access.Snapshot{}, err
	}
	return access.Snapshot{
		AuthorID:   document.AuthorID,
		Status:     document.Status,
		Visibility: document.Visibility,
		Direct:     direct,
		Groups:     paths,
	}, nil
}

func (s *Service) authorize(ctx context.Context, document *Document, userID string, action access.Action) (access.Snapshot, error) {
	snapshot, err := s.snapshot(ctx, document, userID)
	if err != nil {
		return access.Snapshot{}, err
	}
	if err := access.Authorize(userID, action, snapshot); err != nil {
		return access.Snapshot{}, err
	}
	return snapshot, nil
}

// publish sends an event after a successful mutation. A delivery-side
// failure is logged and dropped: the mutation has already committed and
// must not be reported as failed.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("kind", string(event.Kind)),
			zap.String("document_id", event.DocumentID),
			zap.Error(err))
	}
}

// CreateParams describes a new document.
type CreateParams struct {
	Title      string
	Content    string
	Visibility access.Visibility
}

// Create stores a new draft owned by the actor, together with its first
// version and the audit record. The first version carries zero diff stats.
func (s *Service) Create(ctx context.Context, actorID string, params CreateParams) (*Document, error) {
	if actorID == "" {
		return nil, apperr.Forbidden("authentication required", nil)
	}
	if params.Title == "" {
		return nil, apperr.Invalid("title is required", nil)
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = access.VisibilityPrivate
	}
	switch visibility {
	case access.VisibilityPrivate, access.VisibilityShared, access.VisibilityPublic:
	default:
		return nil, apperr.Invalid(fmt.Sprintf("unknown visibility %q", visibility), nil)
	}

	identifier, err := s.ids.NewID()
	if err != nil {
		return nil, apperr.Internal("document id generation failed", err)
	}

	now := s.now().UTC()
	wordCount := deriveWordCount(params.Content)
	document := Document{
		ID:             identifier,
		Title:          params.Title,
		Content:        params.Content,
		Excerpt:        deriveExcerpt(params.Content),
		AuthorID:       actorID,
		Status:         access.StatusDraft,
		Visibility:     visibility,
		WordCount:      wordCount,
		ReadTime:       deriveReadTime(wordCount),
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&document).Error; err != nil {
			return apperr.Internal("document create failed", err)
		}
		if _, err := s.versions.Commit(ctx, tx, versions.CommitParams{
			DocumentID:    document.ID,
			Title:         document.Title,
			Content:       document.Content,
			ChangeSummary: "Initial version",
			ChangedByID:   actorID,
		}); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionCreate,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("created document %q", document.Title),
			NewValues: map[string]any{
				"title":      document.Title,
				"status":     document.Status,
				"visibility": document.Visibility,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindCreated,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
	})
	return &document, nil
}

// Get returns a document together with the caller's effective level. A
// caller without view access on a private document cannot distinguish it
// from a missing one.
func (s *Service) Get(ctx context.Context, actorID, documentID string) (*Document, access.Level, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, access.LevelNone, err
	}
	snapshot, err := s.authorize(ctx, document, actorID, access.ActionView)
	if err != nil {
		return nil, access.LevelNone, err
	}
	return document, access.Resolve(actorID, snapshot), nil
}

// UpdateParams carries the optional field changes of an update. Nil fields
// are left untouched.
type UpdateParams struct {
	Title         *string
	Content       *string
	Visibility    *access.Visibility
	ChangeSummary string
}

// Update applies field changes, recomputes the derived fields and commits a
// new version when the title or content changed. Losing the version-number
// race to a concurrent editor is retried up to the limit with fresh state;
// persistent contention surfaces as a conflict.
func (s *Service) Update(ctx context.Context, actorID, documentID string, params UpdateParams) (*Document, error) {
	if params.Visibility != nil {
		switch *params.Visibility {
		case access.VisibilityPrivate, access.VisibilityShared, access.VisibilityPublic:
		default:
			return nil, apperr.Invalid(fmt.Sprintf("unknown visibility %q", *params.Visibility), nil)
		}
	}
	if params.Title != nil && *params.Title == "" {
		return nil, apperr.Invalid("title cannot be empty", nil)
	}

	var lastErr error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		document, err := s.updateOnce(ctx, actorID, documentID, params)
		if err == nil {
			return document, nil
		}
		if !apperr.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("retrying update after version conflict",
			zap.String("document_id", documentID),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

func (s *Service) updateOnce(ctx context.Context, actorID, documentID string, params UpdateParams) (*Document, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionEdit); err != nil {
		return nil, err
	}

	oldValues := map[string]any{}
	newValues := map[string]any{}
	var changed []string
	contentChanged := false

	if params.Title != nil && *params.Title != document.Title {
		oldValues["title"] = document.Title
		newValues["title"] = *params.Title
		document.Title = *params.Title
		changed = append(changed, "title")
		contentChanged = true
	}
	if params.Content != nil && *params.Content != document.Content {
		oldValues["content"] = document.Content
		newValues["content"] = *params.Content
		document.Content = *params.Content
		changed = append(changed, "content")
		contentChanged = true
	}
	if params.Visibility != nil && *params.Visibility != document.Visibility {
		oldValues["visibility"] = document.Visibility
		newValues["visibility"] = *params.Visibility
		document.Visibility = *params.Visibility
		changed = append(changed, "visibility")
	}
	if len(changed) == 0 {
		return document, nil
	}

	if contentChanged {
		document.WordCount = deriveWordCount(document.Content)
		document.ReadTime = deriveReadTime(document.WordCount)
		document.Excerpt = deriveExcerpt(document.Content)
	}
	document.UpdatedAt = s.now().UTC()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if contentChanged {
			version, err := s.versions.Commit(ctx, tx, versions.CommitParams{
				DocumentID:    document.ID,
				Title:         document.Title,
				Content:       document.Content,
				ChangeSummary: params.ChangeSummary,
				ChangedByID:   actorID,
			})
			if err != nil {
				return err
			}
			document.CurrentVersion = version.Number
		}
		if err := tx.WithContext(ctx).Save(document).Error; err != nil {
			return apperr.Internal("document update failed", err)
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:       actorID,
			Action:        audit.ActionUpdate,
			EntityKind:    entityKindDocument,
			EntityID:      document.ID,
			Description:   fmt.Sprintf("updated document %q", document.Title),
			OldValues:     oldValues,
			NewValues:     newValues,
			ChangedFields: changed,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindUpdated,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		Payload:       map[string]any{"changed_fields": changed},
	})
	return document, nil
}

// Delete removes a document and its versions, grants, shares and comments.
// Only the author may delete; admin-level collaborators may not. The
// recipient set for the deletion event is captured before the grant rows
// disappear.
func (s *Service) Delete(ctx context.Context, actorID, documentID string) error {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionDelete); err != nil {
		return err
	}

	recipients, err := s.registry.Recipients(ctx, events.Event{
		Kind:       events.KindDeleted,
		DocumentID: document.ID,
		AuthorID:   document.AuthorID,
		ActorID:    actorID,
	})
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("document_id = ?", document.ID).Delete(&Comment{}).Error; err != nil {
			return apperr.Internal("comment cleanup failed", err)
		}
		if err := s.versions.DeleteForDocument(ctx, tx, document.ID); err != nil {
			return err
		}
		if err := s.registry.DeleteForDocument(ctx, tx, document.ID); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Delete(&Document{}, "id = ?", document.ID).Error; err != nil {
			return apperr.Internal("document delete failed", err)
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionDelete,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("deleted document %q", document.Title),
			Severity:    audit.SeverityHigh,
			OldValues: map[string]any{
				"title":  document.Title,
				"status": document.Status,
			},
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindDeleted,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		Recipients:    recipients,
	})
	return nil
}

// ListByAuthor returns the actor's own documents, most recently updated
// first.
func (s *Service) ListByAuthor(ctx context.Context, actorID string) ([]Document, error) {
	if actorID == "" {
		return nil, apperr.Forbidden("authentication required", nil)
	}
	var records []Document
	err := s.db.WithContext(ctx).
		Where("author_id = ?", actorID).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperr.Internal("document list failed", err)
	}
	return records, nil
}

// ListSharedWith returns documents the actor can reach through an active
// direct grant or group share, most recently updated first.
func (s *Service) ListSharedWith(ctx context.Context, actorID string) ([]Document, error) {
	if actorID == "" {
		return nil, apperr.Forbidden("authentication required", nil)
	}
	documentIDs, err := s.registry.SharedDocumentIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var records []Document
	err = s.db.WithContext(ctx).
		Where("id IN ?", documentIDs).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperr.Internal("document list failed", err)
	}
	return records, nil
}

// Versions lists a document's surviving history, newest first. Requires
// view access.
func (s *Service) Versions(ctx context.Context, actorID, documentID string) ([]versions.Version, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionView); err != nil {
		return nil, err
	}
	return s.versions.List(ctx, document.ID)
}
