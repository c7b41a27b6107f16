// Package documents implements the document lifecycle: creation, editing
// with version history, the draft/published/archived status machine,
// sharing, comments and deletion. Every mutation runs its permission check,
// the change itself, the version commit and the audit record in one
// transaction; the matching event publishes only after the transaction
// commits.
package documents

import (
	"time"

	"github.com/quillstone/backend/internal/access"
)

// Document is the aggregate root. Word count, read time and excerpt are
// derived from the content on every write. CurrentVersion mirrors the
// newest committed version number. PublishedAt records the first time the
// document went public and never changes afterwards.
type Document struct {
	ID             string            `gorm:"column:id;primaryKey;size:36;not null"`
	Title          string            `gorm:"column:title;size:255;not null"`
	Content        string            `gorm:"column:content;type:text"`
	Excerpt        string            `gorm:"column:excerpt;size:500"`
	AuthorID       string            `gorm:"column:author_id;size:190;not null;index"`
	Status         access.Status     `gorm:"column:status;size:20;not null;index"`
	Visibility     access.Visibility `gorm:"column:visibility;size:20;not null;index"`
	WordCount      int64             `gorm:"column:word_count;not null;default:0"`
	ReadTime       int64             `gorm:"column:read_time;not null;default:1"`
	CommentCount   int64             `gorm:"column:comment_count;not null;default:0"`
	CurrentVersion int64             `gorm:"column:current_version;not null;default:0"`
	PublishedAt    *time.Time        `gorm:"column:published_at"`
	ArchivedAt     *time.Time        `gorm:"column:archived_at"`
	CreatedAt      time.Time         `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Comment is one remark on a document. The document row carries a
// denormalized count.
type Comment struct {
	ID         string    `gorm:"column:id;primaryKey;size:36;not null"`
	DocumentID string    `gorm:"column:document_id;size:36;not null;index"`
	AuthorID   string    `gorm:"column:author_id;size:190;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "document_comments"
}
