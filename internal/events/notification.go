package events

import "time"

// DeliveryStatus tracks the outcome of the delivery attempt for one
// notification row.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Notification is the durable per-recipient record of a published event.
// Rows are written before any delivery attempt, so an event is never lost
// to a sink failure; only the status changes afterwards.
type Notification struct {
	ID          string         `gorm:"column:id;primaryKey;size:36;not null"`
	RecipientID string         `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient_time,priority:1"`
	SenderID    string         `gorm:"column:sender_id;size:190"`
	Kind        Kind           `gorm:"column:kind;size:32;not null"`
	DocumentID  string         `gorm:"column:document_id;size:36;not null;index"`
	Payload     string         `gorm:"column:payload;type:text"`
	Status      DeliveryStatus `gorm:"column:status;size:16;not null;index"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index:idx_notifications_recipient_time,priority:2"`
	SentAt      *time.Time     `gorm:"column:sent_at"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}
