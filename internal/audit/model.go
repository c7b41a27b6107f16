package audit

import "time"

// Action names the operation an audit record captures.
type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionShare            Action = "share"
	ActionUnshare          Action = "unshare"
	ActionComment          Action = "comment"
	ActionPublish          Action = "publish"
	ActionArchive          Action = "archive"
	ActionUnarchive        Action = "unarchive"
	ActionRestore          Action = "restore"
	ActionPermissionChange Action = "permission_change"
)

// Severity ranks how security-relevant a record is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Record is one append-only audit row. Entity references are held by id,
// never by foreign key, so records outlive the rows they describe. The
// engine never updates or deletes records.
type Record struct {
	ID            string    `gorm:"column:id;primaryKey;size:36;not null"`
	ActorID       string    `gorm:"column:actor_id;size:190;index:idx_audit_actor_time,priority:1"`
	Action        Action    `gorm:"column:action;size:32;not null;index"`
	EntityKind    string    `gorm:"column:entity_kind;size:64;not null"`
	EntityID      string    `gorm:"column:entity_id;size:190;not null;index"`
	Description   string    `gorm:"column:description;type:text"`
	Severity      Severity  `gorm:"column:severity;size:16;not null"`
	OldValues     string    `gorm:"column:old_values;type:text"`
	NewValues     string    `gorm:"column:new_values;type:text"`
	ChangedFields string    `gorm:"column:changed_fields;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_audit_actor_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "audit_records"
}
