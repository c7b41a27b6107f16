package access

import (
	"errors"
	"fmt"
)

// ErrInvalidLevel indicates a permission level outside the known set.
var ErrInvalidLevel = errors.New("access: invalid permission level")

// Level is an ordered capability tier. Higher levels include every
// capability of the levels below them.
type Level int

const (
	LevelNone Level = iota
	LevelView
	LevelComment
	LevelEdit
	LevelAdmin
)

var levelNames = map[Level]string{
	LevelNone:    "none",
	LevelView:    "view",
	LevelComment: "comment",
	LevelEdit:    "edit",
	LevelAdmin:   "admin",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// AtLeast reports whether l grants everything required of other.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// ParseLevel converts a stored or user-supplied level name.
func ParseLevel(raw string) (Level, error) {
	for level, name := range levelNames {
		if name == raw {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// MinLevel returns the lower of two levels.
func MinLevel(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}
