package database

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/access"
	"github.com/quillstone/backend/internal/documents"
)

func TestApplyMigrationsBackfillsWordCounts(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&documents.Document{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	now := time.Unix(1700000000, 0)
	legacy := documents.Document{
		ID:         "doc-legacy",
		Title:      "Legacy",
		Content:    "one two three",
		AuthorID:   "user-1",
		Status:     access.StatusDraft,
		Visibility: access.VisibilityPrivate,
		WordCount:  0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert document: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored documents.Document
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload document: %v", err)
	}
	if stored.WordCount != 3 {
		testContext.Fatalf("expected word count 3, got %d", stored.WordCount)
	}
	if stored.ReadTime != 1 {
		testContext.Fatalf("expected read time 1, got %d", stored.ReadTime)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillWordCounts).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	// A second run is a no-op.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected idempotent migrations: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected empty path to be rejected")
	}
}

func TestOpenSQLiteInitializesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "app.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if !database.Migrator().HasTable("documents") {
		testContext.Fatalf("expected documents table to exist")
	}
	if !database.Migrator().HasTable("document_versions") {
		testContext.Fatalf("expected document_versions table to exist")
	}
	if !database.Migrator().HasTable("audit_records") {
		testContext.Fatalf("expected audit_records table to exist")
	}
}
