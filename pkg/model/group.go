package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxGroupNameLength = 32

var ErrGroupNameEmpty = errors.New("group name must not be empty")
var ErrGroupNameTooLong = errors.New("group name too long")
var ErrGroupInvalidType = errors.New("invalid group type")

// Group describes a channel group: a named position with a permission set.
// A group row may override one of the server-wide default groups, in which
// case Overrides is set.
type Group struct {
	ChannelID   int64        `json:"channel_id" yaml:"channel_id"`
	ID          int64        `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	Type        GroupType    `json:"type" yaml:"type"`
	Icon        string       `json:"icon" yaml:"icon"`
	Overrides   bool         `json:"overrides" yaml:"overrides"`
}

// Validate checks the group is acceptable for a group update.
func (g *Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrGroupNameEmpty
	}
	if utf8.RuneCountInString(g.Name) > MaxGroupNameLength {
		return ErrGroupNameTooLong
	}
	if !g.Type.Valid() {
		return ErrGroupInvalidType
	}
	return nil
}

// HasPermission reports whether the group's permission set contains p.
// Groups holding PermAll implicitly hold every permission.
func (g *Group) HasPermission(p Permission) bool {
	for _, held := range g.Permissions {
		if held == p || held == PermAll {
			return true
		}
	}
	return false
}

// DefaultGroups returns the server-wide group definitions every channel
// starts with. Channels may override individual entries.
func DefaultGroups() []Group {
	return []Group{
		{ID: GuestGroup, Name: "Guest", Type: GroupTypeGuest,
			Permissions: []Permission{PermJoin, PermTalk}},
		{ID: DefaultGroup, Name: "Rank one", Type: GroupTypeNormal,
			Permissions: []Permission{PermJoin, PermTalk}},
		{ID: ModGroup, Name: "Moderator", Type: GroupTypeModerator,
			Permissions: []Permission{PermJoin, PermTalk, PermKick, PermTempBan, PermPermBan, PermReset, PermLockChannel}},
		{ID: AdminGroup, Name: "Administrator", Type: GroupTypeAdmin,
			Permissions: []Permission{PermJoin, PermTalk, PermKick, PermTempBan, PermPermBan, PermReset, PermLockChannel, PermMemberEdit, PermGroupEdit, PermDetailEdit}},
		{ID: OwnerGroup, Name: "Owner", Type: GroupTypeOwner,
			Permissions: []Permission{PermAll}},
	}
}
