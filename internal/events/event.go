// Package events fans domain events out to interested users: it resolves
// the recipient set, persists one notification per recipient before any
// delivery attempt, and dispatches deliveries on a bounded worker pool to
// an external pub/sub boundary.
package events

import "time"

// Kind classifies a domain event.
type Kind string

const (
	KindCreated           Kind = "created"
	KindUpdated           Kind = "updated"
	KindShared            Kind = "shared"
	KindUnshared          Kind = "unshared"
	KindCommented         Kind = "commented"
	KindDeleted           Kind = "deleted"
	KindPermissionChanged Kind = "permission_changed"
)

// Event is one immutable fact about a document. Events reference documents
// by id only; delivery attempts are tracked separately on the notification
// rows, never by retrying the event itself.
type Event struct {
	Kind          Kind
	DocumentID    string
	DocumentTitle string
	AuthorID      string
	ActorID       string

	// TargetUserID is set for shared, unshared and permission_changed
	// events and narrows the fan-out to that user.
	TargetUserID string
	// TargetGroupID is set when a share targets a group; the fan-out then
	// covers the group's active members at event time.
	TargetGroupID string

	// Recipients overrides live resolution when set. Deletion events use
	// it: their recipient set must be captured before the grant rows are
	// removed.
	Recipients []string

	Payload    map[string]any
	OccurredAt time.Time
}
