package documents

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/groups"
	"github.com/quillstone/backend/internal/sharing"
)

// Share grants the target user access at the given level. Requires admin
// access. Granting is an upsert: a fresh or reactivated grant announces a
// share, a level change on an existing grant announces a permission change.
// A first share also lifts a private document to shared visibility.
func (s *Service) Share(ctx context.Context, actorID, documentID, targetUserID string, level access.Level) (*sharing.AccessGrant, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionShare); err != nil {
		return nil, err
	}
	if targetUserID == "" {
		return nil, apperr.Invalid("target user is required", nil)
	}
	if targetUserID == document.AuthorID {
		return nil, apperr.Invalid("the author already holds admin access", nil)
	}
	known, err := s.users.Exists(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, apperr.NotFound(fmt.Sprintf("user %s not found", targetUserID), nil)
	}

	var grant *sharing.AccessGrant
	var created bool
	err = s.db.Transaction(func(tx *gorm.DB) error {
		grant, created, err = s.registry.Grant(ctx, tx, document.ID, targetUserID, level, actorID)
		if err != nil {
			return err
		}
		if err := s.liftToShared(ctx, tx, document); err != nil {
			return err
		}
		action := audit.ActionShare
		if !created {
			action = audit.ActionPermissionChange
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      action,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("shared document %q with user %s at %s", document.Title, targetUserID, level),
			Severity:    audit.SeverityMedium,
			NewValues:   map[string]any{"user_id": targetUserID, "level": level.String()},
		})
	})
	if err != nil {
		return nil, err
	}

	kind := events.KindShared
	if !created {
		kind = events.KindPermissionChanged
	}
	s.publish(ctx, events.Event{
		Kind:          kind,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		TargetUserID:  targetUserID,
		Payload:       map[string]any{"level": level.String()},
	})
	return grant, nil
}

// Unshare revokes the target user's direct grant. Requires admin access.
// Group-mediated access is untouched; revoke the group share for that.
func (s *Service) Unshare(ctx context.Context, actorID, documentID, targetUserID string) error {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionUnshare); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.registry.Revoke(ctx, tx, document.ID, targetUserID); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionUnshare,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("revoked user %s from document %q", targetUserID, document.Title),
			Severity:    audit.SeverityMedium,
			OldValues:   map[string]any{"user_id": targetUserID},
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindUnshared,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		TargetUserID:  targetUserID,
	})
	return nil
}

// ShareWithGroup links the document to a group at the given level. Members
// reach the document through the link; nothing is materialized per member.
func (s *Service) ShareWithGroup(ctx context.Context, actorID, documentID, groupID string, level access.Level) (*sharing.GroupShare, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionShare); err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, apperr.Invalid("target group is required", nil)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&groups.Group{}).Where("id = ? AND active = ?", groupID, true).Count(&count).Error; err != nil {
		return nil, apperr.Internal("group lookup failed", err)
	}
	if count == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("group %s not found", groupID), nil)
	}

	var share *sharing.GroupShare
	var created bool
	err = s.db.Transaction(func(tx *gorm.DB) error {
		share, created, err = s.registry.ShareWithGroup(ctx, tx, document.ID, groupID, level, actorID)
		if err != nil {
			return err
		}
		if err := s.liftToShared(ctx, tx, document); err != nil {
			return err
		}
		action := audit.ActionShare
		if !created {
			action = audit.ActionPermissionChange
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      action,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("shared document %q with group %s at %s", document.Title, groupID, level),
			Severity:    audit.SeverityMedium,
			NewValues:   map[string]any{"group_id": groupID, "level": level.String()},
		})
	})
	if err != nil {
		return nil, err
	}

	kind := events.KindShared
	if !created {
		kind = events.KindPermissionChanged
	}
	s.publish(ctx, events.Event{
		Kind:          kind,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		TargetGroupID: groupID,
		Payload:       map[string]any{"level": level.String()},
	})
	return share, nil
}

// UnshareGroup withdraws a group's link to the document.
func (s *Service) UnshareGroup(ctx context.Context, actorID, documentID, groupID string) error {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionUnshare); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.registry.RevokeGroup(ctx, tx, document.ID, groupID); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionUnshare,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("revoked group %s from document %q", groupID, document.Title),
			Severity:    audit.SeverityMedium,
			OldValues:   map[string]any{"group_id": groupID},
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindUnshared,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		TargetGroupID: groupID,
	})
	return nil
}

// liftToShared raises a private document to shared visibility once it has
// recipients. Public documents stay public.
func (s *Service) liftToShared(ctx context.Context, tx *gorm.DB, document *Document) error {
	if document.Visibility != access.VisibilityPrivate {
		return nil
	}
	document.Visibility = access.VisibilityShared
	document.UpdatedAt = s.now().UTC()
	err := tx.WithContext(ctx).Model(&Document{}).
		Where("id = ?", document.ID).
		Updates(map[string]any{"visibility": document.Visibility, "updated_at": document.UpdatedAt}).Error
	if err != nil {
		return apperr.Internal("visibility update failed", err)
	}
	return nil
}

// CommentOn adds a comment and bumps the document's denormalized count.
// Requires comment access.
func (s *Service) CommentOn(ctx context.Context, actorID, documentID, content string) (*Comment, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionComment); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, apperr.Invalid("comment content is required", nil)
	}

	identifier, err := s.ids.NewID()
	if err != nil {
		return nil, apperr.Internal("comment id generation failed", err)
	}
	now := s.now().UTC()
	comment := Comment{
		ID:         identifier,
		DocumentID: document.ID,
		AuthorID:   actorID,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&comment).Error; err != nil {
			return apperr.Internal("comment create failed", err)
		}
		err := tx.WithContext(ctx).Model(&Document{}).
			Where("id = ?", document.ID).
			Update("comment_count", gorm.Expr("comment_count + 1")).Error
		if err != nil {
			return apperr.Internal("comment count update failed", err)
		}
		return s.audit.Append(ctx, tx, audit.Entry{
			ActorID:     actorID,
			Action:      audit.ActionComment,
			EntityKind:  entityKindDocument,
			EntityID:    document.ID,
			Description: fmt.Sprintf("commented on document %q", document.Title),
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Kind:          events.KindCommented,
		DocumentID:    document.ID,
		DocumentTitle: document.Title,
		AuthorID:      document.AuthorID,
		ActorID:       actorID,
		Payload:       map[string]any{"comment_id": comment.ID},
	})
	return &comment, nil
}

// Comments lists a document's comments, oldest first. Requires view access.
func (s *Service) Comments(ctx context.Context, actorID, documentID string) ([]Comment, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionView); err != nil {
		return nil, err
	}
	var records []Comment
	err = s.db.WithContext(ctx).
		Where("document_id = ?", document.ID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, apperr.Internal("comment list failed", err)
	}
	return records, nil
}

// Collaborators lists the active direct grants on a document. Requires
// admin access: the share list reveals who else can see the document.
func (s *Service) Collaborators(ctx context.Context, actorID, documentID string) ([]sharing.AccessGrant, error) {
	document, err := s.load(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, document, actorID, access.ActionShare); err != nil {
		return nil, err
	}
	return s.registry.Collaborators(ctx, document.ID)
}
