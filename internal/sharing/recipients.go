package sharing

import (
	"context"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/events"
)

// Recipients resolves who should hear about a document event from the live
// sharing state, satisfying the event bus resolver contract. Targeted
// events (a grant given or taken away) narrow to the affected user or the
// affected group's members; everything else fans out to the author, every
// active collaborator and every member reachable through an active group
// share. The bus removes the actor and duplicates.
func (r *Registry) Recipients(ctx context.Context, event events.Event) ([]string, error) {
	switch event.Kind {
	case events.KindShared, events.KindUnshared, events.KindPermissionChanged:
		if event.TargetUserID != "" {
			return []string{event.TargetUserID}, nil
		}
		if event.TargetGroupID != "" {
			return r.groupMemberIDs(ctx, event.TargetGroupID)
		}
		return nil, nil
	}

	recipients := make([]string, 0, 8)
	if event.AuthorID != "" {
		recipients = append(recipients, event.AuthorID)
	}

	grants, err := r.Collaborators(ctx, event.DocumentID)
	if err != nil {
		return nil, err
	}
	for _, grant := range grants {
		recipients = append(recipients, grant.UserID)
	}

	var memberIDs []string
	err = r.db.WithContext(ctx).
		Table("group_memberships").
		Joins("JOIN document_group_shares ON document_group_shares.group_id = group_memberships.group_id").
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("document_group_shares.document_id = ? AND document_group_shares.active = ?", event.DocumentID, true).
		Where("group_memberships.active = ?", true).
		Where("groups.active = ?", true).
		Pluck("group_memberships.user_id", &memberIDs).Error
	if err != nil {
		return nil, apperr.Internal("failed to resolve group recipients", err)
	}
	return append(recipients, memberIDs...), nil
}

func (r *Registry) groupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var memberIDs []string
	err := r.db.WithContext(ctx).
		Table("group_memberships").
		Where("group_id = ? AND active = ?", groupID, true).
		Pluck("user_id", &memberIDs).Error
	if err != nil {
		return nil, apperr.Internal("failed to resolve group members", err)
	}
	return memberIDs, nil
}
