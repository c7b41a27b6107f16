package groups

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groups.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Group{}, &Membership{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: ids.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestCreateGroupAddsOwnerMembership(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, "owner-1", "research", "", access.LevelComment)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	members, err := service.ActiveMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected members error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].Role != RoleOwner || members[0].Level != access.LevelAdmin {
		t.Fatalf("unexpected owner membership %+v", members[0])
	}
}

func TestAddMemberRequiresManagerRole(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, "owner-1", "research", "", access.LevelView)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.AddMember(ctx, group.ID, "owner-1", "member-1", RoleMember, access.LevelEdit); err != nil {
		t.Fatalf("owner should be able to add members: %v", err)
	}

	_, err = service.AddMember(ctx, group.ID, "member-1", "member-2", RoleMember, access.LevelView)
	if !apperr.IsForbidden(err) {
		t.Fatalf("expected forbidden for plain member, got %v", err)
	}

	_, err = service.AddMember(ctx, group.ID, "owner-1", "member-1", RoleMember, access.LevelView)
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate member, got %v", err)
	}
}

func TestRemoveMemberDeactivates(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	group, err := service.CreateGroup(ctx, "owner-1", "research", "", access.LevelView)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.AddMember(ctx, group.ID, "owner-1", "member-1", RoleMember, access.LevelEdit); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := service.RemoveMember(ctx, group.ID, "owner-1", "member-1"); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	members, err := service.ActiveMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("unexpected members error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected only the owner to remain active, got %d members", len(members))
	}

	if err := service.RemoveMember(ctx, group.ID, "owner-1", "member-1"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for second removal, got %v", err)
	}
	if err := service.RemoveMember(ctx, group.ID, "owner-1", "owner-1"); !apperr.IsForbidden(err) {
		t.Fatalf("expected forbidden when removing the owner, got %v", err)
	}

	// A removed member can be re-added and comes back active.
	membership, err := service.AddMember(ctx, group.ID, "owner-1", "member-1", RoleModerator, access.LevelComment)
	if err != nil {
		t.Fatalf("unexpected re-add error: %v", err)
	}
	if !membership.Active || membership.Role != RoleModerator {
		t.Fatalf("unexpected reactivated membership %+v", membership)
	}
}
