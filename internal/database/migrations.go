package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillWordCounts = "2026-07-18_backfill_document_word_counts"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillWordCounts, apply: backfillDocumentWordCounts},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillDocumentWordCounts recomputes the derived word count and read
// time for rows written before those columns existed. SQLite has no split
// function, so the count approximates by collapsing runs of spaces; the
// next content edit recomputes exactly.
func backfillDocumentWordCounts(db *gorm.DB) error {
	const backfill = `
UPDATE documents
SET word_count = CASE
        WHEN trim(content) = '' THEN 0
        ELSE length(trim(replace(replace(content, char(10), ' '), '  ', ' ')))
             - length(replace(trim(replace(replace(content, char(10), ' '), '  ', ' ')), ' ', ''))
             + 1
    END
WHERE word_count = 0 AND content <> '';`
	if err := db.Exec(backfill).Error; err != nil {
		return err
	}
	const readTime = `
UPDATE documents
SET read_time = CASE WHEN word_count / 200 < 1 THEN 1 ELSE word_count / 200 END
WHERE word_count > 0;`
	return db.Exec(readTime).Error
}
