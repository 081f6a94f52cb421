// Package model defines the core domain types for chanserv.
package model

// GroupType classifies a channel group by the privileges it implies.
type GroupType int

const (
	GroupTypeGuest     GroupType = iota - 1 // users not on the member list
	GroupTypeNormal                         // ordinary members
	GroupTypeModerator                      // can kick and ban
	GroupTypeAdmin                          // can edit members, groups and details
	GroupTypeOwner                          // a single user with every permission
	GroupTypeSystem                         // reserved for server-managed groups
)

func (t GroupType) String() string {
	switch t {
	case GroupTypeGuest:
		return "guest"
	case GroupTypeNormal:
		return "normal"
	case GroupTypeModerator:
		return "moderator"
	case GroupTypeAdmin:
		return "admin"
	case GroupTypeOwner:
		return "owner"
	case GroupTypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseGroupType converts a stored type name to a GroupType.
// Unrecognized names map to GroupTypeNormal.
func ParseGroupType(s string) GroupType {
	switch s {
	case "guest":
		return GroupTypeGuest
	case "moderator":
		return GroupTypeModerator
	case "admin":
		return GroupTypeAdmin
	case "owner":
		return GroupTypeOwner
	case "system":
		return GroupTypeSystem
	default:
		return GroupTypeNormal
	}
}

// Valid reports whether t is one of the defined group types.
func (t GroupType) Valid() bool {
	return t >= GroupTypeGuest && t <= GroupTypeSystem
}

// Well-known group IDs. Every channel carries these five system positions;
// the remaining IDs up to TotalRanks-1 are free-form member ranks.
const (
	GuestGroup   int64 = 0  // users who are not channel members
	DefaultGroup int64 = 1  // assigned when a user is first added as a member
	ModGroup     int64 = 5  // channel moderator position
	AdminGroup   int64 = 9  // channel administrator position
	OwnerGroup   int64 = 11 // held by exactly one user per channel

	// TotalRanks is the number of rank slots in a channel's rank-name table.
	TotalRanks = 12
)

// Permission identifies a single action a group may be allowed to perform.
// Values are stable: they are persisted as single bytes in permission blobs.
type Permission byte

const (
	PermJoin        Permission = 0
	PermTalk        Permission = 1
	PermKick        Permission = 2
	PermTempBan     Permission = 3
	PermPermBan     Permission = 4
	PermReset       Permission = 5
	PermMemberEdit  Permission = 6
	PermGroupEdit   Permission = 7
	PermDetailEdit  Permission = 8
	PermLockChannel Permission = 9
	PermAll         Permission = 10
)

func (p Permission) String() string {
	switch p {
	case PermJoin:
		return "join"
	case PermTalk:
		return "talk"
	case PermKick:
		return "kick"
	case PermTempBan:
		return "tempban"
	case PermPermBan:
		return "permban"
	case PermReset:
		return "reset"
	case PermMemberEdit:
		return "memberedit"
	case PermGroupEdit:
		return "groupedit"
	case PermDetailEdit:
		return "detailedit"
	case PermLockChannel:
		return "lockchannel"
	case PermAll:
		return "all"
	default:
		return "unknown"
	}
}

// DefaultRankNames returns the rank-name table a channel starts with.
// Ranks 0 through 11 are always present; channels may rename them.
func DefaultRankNames() map[byte]string {
	return map[byte]string{
		0:  "Guest",
		1:  "Rank one",
		2:  "Rank two",
		3:  "Rank three",
		4:  "Rank four",
		5:  "Moderator",
		6:  "Rank six",
		7:  "Rank seven",
		8:  "Rank eight",
		9:  "Administrator",
		10: "Rank ten",
		11: "Owner",
	}
}
