package versions

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/apperr"
	"github.com/quillstone/backend/internal/ids"
)

func newStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "versions.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Version{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, db *gorm.DB, retention int) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Database:       db,
		IDProvider:     ids.NewUUIDProvider(),
		Clock:          func() time.Time { return time.Unix(1700000000, 0) },
		RetentionLimit: retention,
	})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func mustCommit(t *testing.T, store *Store, db *gorm.DB, params CommitParams) *Version {
	t.Helper()
	var committed *Version
	err := db.Transaction(func(tx *gorm.DB) error {
		version, err := store.Commit(context.Background(), tx, params)
		if err != nil {
			return err
		}
		committed = version
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	return committed
}

func TestCommitAssignsGaplessNumbers(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 0)

	first := mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "hello world", ChangedByID: "user-1"})
	if first.Number != 1 {
		t.Fatalf("expected first version number 1, got %d", first.Number)
	}
	if first.CharsAdded != 0 || first.WordsAdded != 0 {
		t.Fatalf("expected zero diff stats on the first version, got %+v", first)
	}

	second := mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "hello world again", ChangedByID: "user-1"})
	if second.Number != 2 {
		t.Fatalf("expected second version number 2, got %d", second.Number)
	}
	if second.CharsAdded != 17 || second.CharsRemoved != 11 {
		t.Fatalf("unexpected char stats: %+v", second)
	}
	if second.WordsAdded != 3 || second.WordsRemoved != 2 {
		t.Fatalf("unexpected word stats: %+v", second)
	}

	// Versions of other documents do not interfere with numbering.
	other := mustCommit(t, store, db, CommitParams{DocumentID: "doc-2", Title: "Other", Content: "x", ChangedByID: "user-1"})
	if other.Number != 1 {
		t.Fatalf("expected independent numbering per document, got %d", other.Number)
	}
}

func TestCommitConflictsOnDuplicateNumber(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 0)

	mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "a", ChangedByID: "user-1"})

	// A racing writer already claimed version number 2.
	racer := Version{ID: "racer", DocumentID: "doc-1", Number: 2, Title: "Draft", Content: "b", CreatedByID: "user-racer", CreatedAt: time.Now()}
	if err := db.Create(&racer).Error; err != nil {
		t.Fatalf("failed to seed racing version: %v", err)
	}

	// Scope the handle so the latest-version read cannot see the racer's
	// row, reproducing the stale snapshot a losing transaction observes.
	stale := db.Where("created_by_id <> ?", "user-racer")
	_, err := store.Commit(context.Background(), stale, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "c", ChangedByID: "user-1"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCommitPrunesBeyondRetention(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 3)

	for i := 1; i <= 5; i++ {
		mustCommit(t, store, db, CommitParams{
			DocumentID:  "doc-1",
			Title:       "Draft",
			Content:     fmt.Sprintf("revision %d", i),
			ChangedByID: "user-1",
		})
	}

	records, err := store.List(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 surviving versions, got %d", len(records))
	}
	// Survivors keep their original numbers, newest first.
	for i, wantNumber := range []int64{5, 4, 3} {
		if records[i].Number != wantNumber {
			t.Fatalf("expected version %d at position %d, got %d", wantNumber, i, records[i].Number)
		}
	}
}

func TestGetMasksForeignVersions(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 0)

	mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "a", ChangedByID: "user-1"})
	mustCommit(t, store, db, CommitParams{DocumentID: "doc-2", Title: "Other", Content: "b", ChangedByID: "user-2"})

	if _, err := store.Get(context.Background(), "doc-1", 1); err != nil {
		t.Fatalf("expected own version to resolve: %v", err)
	}
	_, err := store.Get(context.Background(), "doc-1", 99)
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for missing version, got %v", err)
	}
}

func TestLatestWithoutHistory(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 0)

	_, err := store.Latest(context.Background(), "doc-absent")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteForDocumentClearsHistory(t *testing.T) {
	db := newStoreTestDB(t)
	store := newTestStore(t, db, 0)

	mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "a", ChangedByID: "user-1"})
	mustCommit(t, store, db, CommitParams{DocumentID: "doc-1", Title: "Draft", Content: "b", ChangedByID: "user-1"})

	if err := store.DeleteForDocument(context.Background(), nil, "doc-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	records, err := store.List(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}
}
