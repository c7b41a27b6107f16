// Package sharing persists who a document has been shared with. Direct
// grants and group shares are stored as rows; a user's effective permission
// is never materialized, it is recomputed from these rows at check time.
// Revocation is soft so the audit trail survives.
package sharing

import (
	"time"

	"github.com/quillstone/backend/internal/access"
)

// AccessGrant shares a document directly with one user at a permission
// level. At most one row exists per (document, user); re-granting updates
// the row in place.
type AccessGrant struct {
	ID          string       `gorm:"column:id;primaryKey;size:36;not null"`
	DocumentID  string       `gorm:"column:document_id;size:36;not null;uniqueIndex:idx_grants_doc_user,priority:1"`
	UserID      string       `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_grants_doc_user,priority:2"`
	Level       access.Level `gorm:"column:level;not null"`
	GrantedByID string       `gorm:"column:granted_by_id;size:190;not null"`
	Active      bool         `gorm:"column:active;not null;default:true;index"`
	RevokedAt   *time.Time   `gorm:"column:revoked_at"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AccessGrant) TableName() string {
	return "document_access_grants"
}

// GroupShare links a document to a group at a permission level. Members
// reach the document through the link; each member's effective level is
// capped by both the link level and their own membership level.
type GroupShare struct {
	ID         string       `gorm:"column:id;primaryKey;size:36;not null"`
	DocumentID string       `gorm:"column:document_id;size:36;not null;uniqueIndex:idx_group_shares_doc_group,priority:1"`
	GroupID    string       `gorm:"column:group_id;size:36;not null;uniqueIndex:idx_group_shares_doc_group,priority:2"`
	Level      access.Level `gorm:"column:level;not null"`
	SharedByID string       `gorm:"column:shared_by_id;size:190;not null"`
	Active     bool         `gorm:"column:active;not null;default:true;index"`
	RevokedAt  *time.Time   `gorm:"column:revoked_at"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time    `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (GroupShare) TableName() string {
	return "document_group_shares"
}
