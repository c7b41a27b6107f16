package sharing

import (
	"context"
	"sort"
	"testing"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/events"
)

func TestRecipientsFanOutToAuthorCollaboratorsAndGroups(t *testing.T) {
	db := newRegistryTestDB(t)
	registry := newTestRegistry(t, db)
	ctx := context.Background()

	seedGroup(t, db, "group-1", map[string]access.Level{
		"user-3": access.LevelView,
		"user-4": access.LevelComment,
	})
	if _, _, err := registry.Grant(ctx, nil, "doc-1", "user-2", access.LevelEdit, "user-1"); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}
	if _, _, err := registry.ShareWithGroup(ctx, nil, "doc-1", "group-1", access.LevelView, "user-1"); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}
	// A revoked grant contributes nothing.
	if _, _, err := registry.Grant(ctx, nil, "doc-1", "user-5", access.LevelView, "user-1"); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}
	if _, err := registry.Revoke(ctx, nil, "doc-1", "user-5"); err != nil {
		t.Fatalf("unexpected revoke error: %v", err)
	}

	recipients, err := registry.Recipients(ctx, events.Event{
		Kind:       events.KindUpdated,
		DocumentID: "doc-1",
		AuthorID:   "user-1",
		ActorID:    "user-2",
	})
	if err != nil {
		t.Fatalf("unexpected resolver error: %v", err)
	}

	sort.Strings(recipients)
	expected := []string{"user-1", "user-2", "user-3", "user-4"}
	if len(recipients) != len(expected) {
		t.Fatalf("unexpected recipients: %v", recipients)
	}
	for i, want := range expected {
		if recipients[i] != want {
			t.Fatalf("unexpected recipients: %v", recipients)
		}
	}
}

func TestRecipientsForTargetedEvents(t *testing.T) {
	db := newRegistryTestDB(t)
	registry := newTestRegistry(t, db)
	ctx := context.Background()

	seedGroup(t, db, "group-1", map[string]access.Level{
		"user-3": access.LevelView,
		"user-4": access.LevelView,
	})

	// A direct share notifies only the affected user.
	recipients, err := registry.Recipients(ctx, events.Event{
		Kind:         events.KindShared,
		DocumentID:   "doc-1",
		AuthorID:     "user-1",
		ActorID:      "user-1",
		TargetUserID: "user-2",
	})
	if err != nil {
		t.Fatalf("unexpected resolver error: %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "user-2" {
		t.Fatalf("expected only the target user, got %v", recipients)
	}

	// A group share notifies the group's active members.
	recipients, err = registry.Recipients(ctx, events.Event{
		Kind:          events.KindShared,
		DocumentID:    "doc-1",
		AuthorID:      "user-1",
		ActorID:       "user-1",
		TargetGroupID: "group-1",
	})
	if err != nil {
		t.Fatalf("unexpected resolver error: %v", err)
	}
	sort.Strings(recipients)
	if len(recipients) != 2 || recipients[0] != "user-3" || recipients[1] != "user-4" {
		t.Fatalf("expected the group members, got %v", recipients)
	}

	// An unshare notifies the user who lost access.
	recipients, err = registry.Recipients(ctx, events.Event{
		Kind:         events.KindUnshared,
		DocumentID:   "doc-1",
		AuthorID:     "user-1",
		ActorID:      "user-1",
		TargetUserID: "user-2",
	})
	if err != nil {
		t.Fatalf("unexpected resolver error: %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "user-2" {
		t.Fatalf("expected only the revoked user, got %v", recipients)
	}
}
