package versions

import "time"

// Version is one immutable snapshot in a document's history. Numbers start
// at 1, increase strictly without gaps, and survivors are never renumbered
// when older versions are pruned. The unique (document_id, version_number)
// index doubles as the optimistic lock for concurrent commits.
type Version struct {
	ID            string    `gorm:"column:id;primaryKey;size:36;not null"`
	DocumentID    string    `gorm:"column:document_id;size:36;not null;uniqueIndex:idx_versions_doc_number,priority:1"`
	Number        int64     `gorm:"column:version_number;not null;uniqueIndex:idx_versions_doc_number,priority:2"`
	Title         string    `gorm:"column:title;size:255;not null"`
	Content       string    `gorm:"column:content;type:text"`
	ChangeSummary string    `gorm:"column:change_summary;type:text"`
	CreatedByID   string    `gorm:"column:created_by_id;size:190;not null"`
	CharsAdded    int64     `gorm:"column:chars_added;not null;default:0"`
	CharsRemoved  int64     `gorm:"column:chars_removed;not null;default:0"`
	WordsAdded    int64     `gorm:"column:words_added;not null;default:0"`
	WordsRemoved  int64     `gorm:"column:words_removed;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "document_versions"
}
