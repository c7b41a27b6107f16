package access

import (
	"errors"
	"fmt"
)

// ErrUnknownAction indicates an action outside the known set.
var ErrUnknownAction = errors.New("access: unknown action")

// Action names an operation subject to an access check.
type Action string

const (
	ActionView      Action = "view"
	ActionComment   Action = "comment"
	ActionEdit      Action = "edit"
	ActionPublish   Action = "publish"
	ActionArchive   Action = "archive"
	ActionUnarchive Action = "unarchive"
	ActionRestore   Action = "restore"
	ActionShare     Action = "share"
	ActionUnshare   Action = "unshare"
	ActionDelete    Action = "delete"
)

// RequiredLevel maps an action to the minimum permission level it demands.
// Share, unshare and delete carry extra rules beyond the minimum level; see
// Authorize.
func RequiredLevel(action Action) (Level, error) {
	switch action {
	case ActionView:
		return LevelView, nil
	case ActionComment:
		return LevelComment, nil
	case ActionEdit, ActionRestore, ActionPublish, ActionArchive, ActionUnarchive:
		return LevelEdit, nil
	case ActionShare, ActionUnshare:
		return LevelAdmin, nil
	case ActionDelete:
		return LevelAdmin, nil
	default:
		return LevelNone, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
