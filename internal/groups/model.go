package groups

import (
	"time"

	"github.com/quillstone/backend/internal/access"
)

// Role governs what a member may do to the group itself; it is distinct
// from the document-level permission a membership carries.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// CanManageMembers reports whether the role may invite or remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleModerator
}

func validRole(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember:
		return true
	default:
		return false
	}
}

// Group is a named collection of users that documents can be shared into.
type Group struct {
	ID                 string       `gorm:"column:id;primaryKey;size:36;not null"`
	Name               string       `gorm:"column:name;size:100;not null;index"`
	Description        string       `gorm:"column:description;type:text"`
	OwnerID            string       `gorm:"column:owner_id;size:190;not null;index"`
	DefaultMemberLevel access.Level `gorm:"column:default_member_level;not null"`
	Active             bool         `gorm:"column:active;not null;default:true"`
	CreatedAt          time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time    `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "groups"
}

// Membership links a user to a group. Role controls group management;
// Level is the permission ceiling the member gets on documents shared with
// the group. Revocation is soft so the trail survives.
type Membership struct {
	ID          string       `gorm:"column:id;primaryKey;size:36;not null"`
	GroupID     string       `gorm:"column:group_id;size:36;not null;uniqueIndex:idx_memberships_group_user,priority:1"`
	UserID      string       `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_memberships_group_user,priority:2"`
	Role        Role         `gorm:"column:role;size:20;not null"`
	Level       access.Level `gorm:"column:level;not null"`
	InvitedByID string       `gorm:"column:invited_by_id;size:190"`
	Active      bool         `gorm:"column:active;not null;default:true;index"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "group_memberships"
}
