package documents

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/versions"
)

// Publish moves a draft to published. The first publication stamps
// published_at; later republications after an unarchive never move it.
func (s *Service) Publish(ctx context.Context, actorID, documentID string) (*Document, error) {
	return s.transition(ctx, actorID, documentID, access.ActionPublish, audit.ActionPublish,
		func(document *Document) error {
			if document.Status != access.StatusDraft {
				return apperr.Conflict(fmt.Sprintf("cannot publish a %s document", document.Status), nil)
			}
			document.Status = access.StatusPublished
			if document.PublishedAt == nil {
				now := s.now().UTC()
				document.PublishedAt = &now
			}
			return nil
		})
}

// Archive moves a draft or published document to archived.
func (s *Service) Archive(ctx context.Context, actorID, documentID string) (*Document, error) {
	return s.transition(ctx, actorID, documentID, access.ActionArchive, audit.ActionArchive,
		func(document *Document) error {
			if document.Status == access.StatusArchived {
				return apperr.Conflict("document is already archived", nil)
			}
			document.Status = access.StatusArchived
			now := s.now().UTC()
			document.ArchivedAt = &now
			return nil
		})
}

// Unarchive returns an archived document to draft. The document must go
// through publish again to become public; published_at survives from the
// first publication.
func (s *Service) Unarchive(ctx context.Context, actorID, documentID string) (*Document, error) {
	return s.transition(ctx, actorID, documentID, access.ActionUnarchive, audit.ActionUnarchive,
		func(document *Document) error {
			if document.Status != access.StatusArchived {
				return apperr.Conflict(fmt.Sprintf("cannot unarchive a %s document", document.Status), nil)
			}
			document.Status = access.StatusDraft
			document.ArchivedAt = nil
			return nil
		})
}

// transition runs one status change: authorize, mutate, persist with the
// audit record in one transaction, then publish the event.
func (s *Service) transition(ctx context.Context, actorID, documentID string, action access.Action, auditAction audit.Action, mutate func(*Document) error) (*Document, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, action); err != nil {
		return nil, err
	}

	previousStatus := document.Status
	if err := mutate(document); err != nil {
		return nil, err
	}
	document.UpdatedAt = s.now().UTC()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(document).Error; err != nil {
			return apperr.Internal("document status update failed", err)
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:       actorID,
			Action:        auditAction,
			EntityKind:    entityKindDocument,
			EntityID:      document.ID,
			Description:   fmt.Sprintf("%s document %q", auditAction, document.Title),
			OldValues:     map[string]any{"status": previousStatus},
			NewValues:     map[string]any{"status": document.Status},
			ChangedFields: []string{"status"},
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
		Payload: map[string]any{
			"status":          document.Status,
			"previous_status": previousStatus,
		},
	})
	return document, nil
}

// Restore copies the title and content of an earlier version into the
// document as a brand-new version; history is never rewritten. Versions of
// other documents are indistinguishable from missing ones.
func (s *Service) Restore(ctx context.Context, actorID, documentID string, versionNumber int64) (*Document, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionRestore); err != nil {
		return nil, err
	}

	version, err := s.versions.Get(ctx, document.ID, versionNumber)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		restored, err := s.restoreOnce(ctx, actorID, documentID, version)
		if err == nil {
			return restored, nil
		}
		if !apperr.IsConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) restoreOnce(ctx context.Context, actorID, documentID string, version *versions.Version) (*Document, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}

	document.Title = version.Title
	document.Content = version.Content
	document.WordCount = deriveWordCount(document.Content)
	document.ReadTime = deriveReadTime(document.WordCount)
	document.Excerpt = deriveExcerpt(document.Content)
	document.UpdatedAt = s.now().UTC()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		committed, err := s.versions.Commit(ctx, tx, versions.CommitParams{
			DocumentID:    document.ID,
			Title:         document.Title,
			Content:       document.Content,
			ChangeSummary: fmt.Sprintf("Restored from version %d", version.Number),
			ChangedByID:   actorID,
		})
		if err != nil {
			return err
		}
		document.CurrentVersion = committed.Number
		if err := tx.WithContext(ctx).Save(document).Error; err != nil {
			return apperr.Internal("document restore failed", err)
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionRestore,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("restored document %q from version %d", document.Title, version.Number),
			NewValues:   map[string]any{"restored_from": version.Number},
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
		Payload:       map[string]any{"restored_from": version.Number},
	})
	return document, nil
}
