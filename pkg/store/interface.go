// Package store defines the persistence contracts for channel data.
// Implementations include the SQLite backend, the YAML file backend, and an
// in-memory store for tests; the commit engine is written against the
// narrow Backend capability rather than any concrete implementation.
package store

import (
	"errors"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/pending"
)

// ErrNotFound is returned by reads and lifecycle operations that target a
// channel the backing store does not contain.
var ErrNotFound = errors.New("store: channel not found")

// ErrUnsupported is returned by operations a backend deliberately does not
// implement, so callers can tell "not implemented" from "did nothing".
var ErrUnsupported = errors.New("store: operation not supported by this backend")

// ChannelStore is the full persistence contract consumed by the live
// channel layer. Mutation methods return immediately; whether a mutation is
// buffered until the next CommitChanges or applied at once is up to the
// implementation.
type ChannelStore interface {
	Lifecycle
	Mutator
	Reader

	// CommitChanges flushes buffered mutations to the backing store. It is
	// invoked by an external periodic scheduler and is safe to call when
	// nothing is pending.
	CommitChanges() error

	Close() error
}

// Lifecycle creates and destroys whole channels. Both operations are
// all-or-nothing against the backing store.
type Lifecycle interface {
	// CreateChannel creates a channel from the given details and seeds the
	// owner's membership row. It returns the newly assigned channel ID.
	CreateChannel(details model.ChannelDetails) (int64, error)

	// RemoveChannel deletes the channel's detail, member, ban, group and
	// attribute rows. Returns ErrNotFound if the channel does not exist.
	RemoveChannel(channelID int64) error
}

// Mutator is the mutation intake from the live channel object. Calls return
// immediately and never fail for ordinary input.
type Mutator interface {
	AddMember(channelID, userID, groupID int64) error
	UpdateMember(channelID, userID, groupID int64) error
	RemoveMember(channelID, userID int64) error

	AddBan(channelID, userID int64) error
	RemoveBan(channelID, userID int64) error

	// AddGroup and RemoveGroup are part of the contract but unsupported by
	// every current backend; they return ErrUnsupported.
	AddGroup(channelID int64, group model.Group) error
	UpdateGroup(channelID int64, group model.Group) error
	RemoveGroup(channelID, groupID int64) error

	UpdateDetails(channelID int64, details model.ChannelDetails) error

	AddAttribute(channelID int64, key, value string) error
	UpdateAttribute(channelID int64, key, value string) error
	ClearAttribute(channelID int64, key string) error
}

// Reader serves direct read queries. Reads go straight to the backing store
// and never reflect buffered, uncommitted mutations.
type Reader interface {
	// ChannelDetails returns the channel's header record, or ErrNotFound.
	ChannelDetails(channelID int64) (*model.ChannelDetails, error)

	// ChannelAttributes returns the channel's attribute key/value pairs.
	ChannelAttributes(channelID int64) (map[string]string, error)

	// ChannelMembers returns a map of member user IDs to group IDs.
	ChannelMembers(channelID int64) (map[int64]int64, error)

	// ChannelBans returns the user IDs banned from the channel.
	ChannelBans(channelID int64) ([]int64, error)

	// ChannelGroups returns the channel's group definitions.
	ChannelGroups(channelID int64) ([]model.Group, error)

	// ChannelRankNames returns the channel's rank-name table, substituting
	// defaults when the stored table is absent or unreadable.
	ChannelRankNames(channelID int64) (map[byte]string, error)
}

// BatchApplier applies drained pending batches, one method per commit
// phase. A method returns an error only when the phase as a whole cannot
// run (for example the backing store is unreachable); failures of single
// items are logged by the implementation and do not stop the phase.
type BatchApplier interface {
	ApplyMemberAdditions(additions map[pending.Key]int64) error
	ApplyMemberUpdates(updates map[pending.Key]int64) error
	ApplyMemberRemovals(removals map[pending.Key]struct{}) error

	ApplyBanAdditions(additions map[pending.Key]struct{}) error
	ApplyBanRemovals(removals map[pending.Key]struct{}) error

	ApplyGroupUpdates(groups []model.Group) error

	ApplyDetailChanges(details map[int64]model.ChannelDetails) error

	ApplyAttrAdditions(additions map[pending.Key]string) error
	ApplyAttrUpdates(updates map[pending.Key]string) error
	ApplyAttrRemovals(removals map[pending.Key]struct{}) error
}

// Backend is everything the commit engine needs from a durable store:
// lifecycle and read passthrough plus batch application.
type Backend interface {
	Lifecycle
	Reader
	BatchApplier
	Close() error
}

// SearchMode selects how the index matches a search term.
type SearchMode int

const (
	SearchAll      SearchMode = iota // every channel, term ignored
	SearchContains                   // name contains the term
)

// ChannelIndex resolves channel identity. Lookups are served through
// bounded read-through caches; a hit never reflects pending, uncommitted
// mutations. A nil summary with a nil error means the channel does not
// exist (and that negative result is itself cached).
type ChannelIndex interface {
	LookupByName(name string) (*model.ChannelSummary, error)
	LookupByUUID(id uuid.UUID) (*model.ChannelSummary, error)
	LookupByID(id int64) (*model.ChannelSummary, error)

	Search(term string, mode SearchMode, limit int) ([]model.ChannelSummary, error)

	Close() error
}
