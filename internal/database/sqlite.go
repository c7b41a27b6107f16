// Package database opens the SQLite store and keeps its schema current:
// GORM auto-migration for tables and indexes, plus named one-shot data
// migrations tracked in their own table.
package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/documents"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/groups"
	"github.com/quillstone/backend/internal/sharing"
	"github.com/quillstone/backend/internal/users"
	"github.com/quillstone/backend/internal/versions"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// TranslateError lets unique-index violations surface as
// gorm.ErrDuplicatedKey, which the version store relies on for its
// optimistic lock.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&documents.Document{},
		&documents.Comment{},
		&versions.Version{},
		&sharing.AccessGrant{},
		&sharing.GroupShare{},
		&groups.Group{},
		&groups.Membership{},
		&events.Notification{},
		&audit.Record{},
		&users.Identity{},
		&migrationRecord{},
	)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
