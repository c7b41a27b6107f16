// Package access computes a user's effective permission on a document from
// the sharing mechanisms that may overlap: authorship, direct grants, group
// membership and public visibility. Resolution is pure with respect to the
// supplied snapshot; callers assemble the snapshot from live grant state at
// check time.
package access

import (
	"fmt"

	"github.com/quillstone/backend/internal/apperr"
)

// Status is a document lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Visibility controls who may discover a document.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// GroupPath is one group-mediated route to a document: the level the
// document-to-group link authorizes and the member's own level within the
// group. Both ends cap the contribution.
type GroupPath struct {
	ShareLevel  Level
	MemberLevel Level
}

// Snapshot is the grant state for one (user, document) pair at resolution
// time. Direct must be LevelNone unless an active direct grant exists;
// Groups must contain only paths through active shares and active
// memberships. Revoked rows never appear here.
type Snapshot struct {
	AuthorID   string
	Status     Status
	Visibility Visibility
	Direct     Level
	Groups     []GroupPath
}

// PubliclyReadable reports whether the document is readable without any
// grant at all.
func (s Snapshot) PubliclyReadable() bool {
	return s.Visibility == VisibilityPublic && s.Status == StatusPublished
}

// Resolve computes the effective permission level for userID. The author
// always resolves to admin. Otherwise the result is the maximum over the
// direct grant, every group path capped at min(share level, member level),
// and view for public published documents. There is no precedence between
// sources other than magnitude.
func Resolve(userID string, snapshot Snapshot) Level {
	if userID != "" && userID == snapshot.AuthorID {
		return LevelAdmin
	}

	level := snapshot.Direct
	for _, path := range snapshot.Groups {
		level = MaxLevel(level, MinLevel(path.ShareLevel, path.MemberLevel))
	}
	if snapshot.PubliclyReadable() {
		level = MaxLevel(level, LevelView)
	}
	return level
}

// Authorize checks whether userID may perform action given the snapshot.
// A nil return means allowed. Denials distinguish Forbidden from NotFound:
// a caller with no access to a private document learns nothing about its
// existence.
func Authorize(userID string, action Action, snapshot Snapshot) error {
	// Public published documents are readable by anyone, including
	// unauthenticated callers.
	if action == ActionView && snapshot.PubliclyReadable() {
		return nil
	}

	level := Resolve(userID, snapshot)

	if action == ActionDelete {
		// Only the author may delete; an admin-level collaborator may not.
		if userID == snapshot.AuthorID {
			return nil
		}
		return deny(level, snapshot, fmt.Sprintf("action %s requires authorship", action))
	}

	required, err := RequiredLevel(action)
	if err != nil {
		return apperr.Invalid("unknown action", err)
	}
	if level.AtLeast(required) {
		return nil
	}
	return deny(level, snapshot, fmt.Sprintf("action %s requires %s access", action, required))
}

func deny(level Level, snapshot Snapshot, reason string) error {
	if level == LevelNone && snapshot.Visibility == VisibilityPrivate {
		return apperr.NotFound("document not found", nil)
	}
	return apperr.Forbidden(reason, nil)
}
