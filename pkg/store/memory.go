package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/pending"
)

// MemoryStore is an in-memory Backend implementation for tests. It mirrors
// the SQLite backend's behavior for constraint violations (duplicate rows
// are skipped with a warning, updates of missing rows affect nothing) and
// records every write attempt so tests can assert on call order.
type MemoryStore struct {
	mu sync.Mutex

	nextChannelID int64
	channels      map[int64]*memChannel

	// PhaseErrors maps a phase name (for example "member_additions") to an
	// error that phase should fail with before applying anything. Used by
	// tests to simulate a backing store that is unreachable for one phase.
	PhaseErrors map[string]error

	calls []Call
}

// Call records one write attempt against the store.
type Call struct {
	Op      string
	Channel int64
	User    int64
	Group   int64
	Attr    string
	Value   string
}

type memChannel struct {
	details   model.ChannelDetails
	attrs     map[string]string
	members   map[int64]int64
	bans      map[int64]struct{}
	groups    map[int64]model.Group
	rankNames map[byte]string
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextChannelID: 1,
		channels:      make(map[int64]*memChannel),
		PhaseErrors:   make(map[string]error),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Calls returns the write attempts recorded so far, in order.
func (s *MemoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallOps returns just the operation names of the recorded calls.
func (s *MemoryStore) CallOps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.calls))
	for i, c := range s.calls {
		ops[i] = c.Op
	}
	return ops
}

// ---- Lifecycle ----

// CreateChannel creates a channel, assigns an ID and UUID, and seeds the
// owner membership row, the default groups and the default rank names.
func (s *MemoryStore) CreateChannel(details model.ChannelDetails) (int64, error) {
	if err := details.Validate(); err != nil {
		return 0, fmt.Errorf("store: create channel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextChannelID
	s.nextChannelID++
	details.ID = id
	if details.UUID == uuid.Nil {
		details.UUID = uuid.New()
	}

	ch := &memChannel{
		details:   details,
		attrs:     make(map[string]string),
		members:   map[int64]int64{details.Owner: model.OwnerGroup},
		bans:      make(map[int64]struct{}),
		groups:    make(map[int64]model.Group),
		rankNames: model.DefaultRankNames(),
	}
	for _, g := range model.DefaultGroups() {
		g.ChannelID = id
		ch.groups[g.ID] = g
	}
	s.channels[id] = ch
	s.calls = append(s.calls, Call{Op: "createChannel", Channel: id, User: details.Owner})
	return id, nil
}

// RemoveChannel deletes all state for the channel.
func (s *MemoryStore) RemoveChannel(channelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(s.channels, channelID)
	s.calls = append(s.calls, Call{Op: "removeChannel", Channel: channelID})
	return nil
}

// ---- Reader ----

func (s *MemoryStore) ChannelDetails(channelID int64) (*model.ChannelDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	details := ch.details
	return &details, nil
}

func (s *MemoryStore) ChannelAttributes(channelID int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	attrs := make(map[string]string, len(ch.attrs))
	for k, v := range ch.attrs {
		attrs[k] = v
	}
	return attrs, nil
}

func (s *MemoryStore) ChannelMembers(channelID int64) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	members := make(map[int64]int64, len(ch.members))
	for u, g := range ch.members {
		members[u] = g
	}
	return members, nil
}

func (s *MemoryStore) ChannelBans(channelID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	bans := make([]int64, 0, len(ch.bans))
	for u := range ch.bans {
		bans = append(bans, u)
	}
	sort.Slice(bans, func(i, j int) bool { return bans[i] < bans[j] })
	return bans, nil
}

func (s *MemoryStore) ChannelGroups(channelID int64) ([]model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	groups := make([]model.Group, 0, len(ch.groups))
	for _, g := range ch.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *MemoryStore) ChannelRankNames(channelID int64) (map[byte]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	names := make(map[byte]string, len(ch.rankNames))
	for r, n := range ch.rankNames {
		names[r] = n
	}
	return names, nil
}

// ---- BatchApplier ----

func (s *MemoryStore) phaseError(phase string) error {
	if err, ok := s.PhaseErrors[phase]; ok {
		return err
	}
	return nil
}

func (s *MemoryStore) ApplyMemberAdditions(additions map[pending.Key]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("member_additions"); err != nil {
		return err
	}
	for key, groupID := range additions {
		s.calls = append(s.calls, Call{Op: "addMember", Channel: key.Channel, User: key.User, Group: groupID})
		ch, ok := s.channels[key.Channel]
		if !ok {
			slog.Warn("member addition references missing channel", "channel", key.Channel, "user", key.User)
			continue
		}
		if _, exists := ch.members[key.User]; exists {
			slog.Warn("member addition for existing row skipped", "channel", key.Channel, "user", key.User)
			continue
		}
		ch.members[key.User] = groupID
	}
	return nil
}

func (s *MemoryStore) ApplyMemberUpdates(updates map[pending.Key]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("member_updates"); err != nil {
		return err
	}
	for key, groupID := range updates {
		s.calls = append(s.calls, Call{Op: "updateMember", Channel: key.Channel, User: key.User, Group: groupID})
		if ch, ok := s.channels[key.Channel]; ok {
			if _, exists := ch.members[key.User]; exists {
				ch.members[key.User] = groupID
			}
		}
	}
	return nil
}

func (s *MemoryStore) ApplyMemberRemovals(removals map[pending.Key]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("member_removals"); err != nil {
		return err
	}
	for key := range removals {
		s.calls = append(s.calls, Call{Op: "removeMember", Channel: key.Channel, User: key.User})
		if ch, ok := s.channels[key.Channel]; ok {
			delete(ch.members, key.User)
		}
	}
	return nil
}

func (s *MemoryStore) ApplyBanAdditions(additions map[pending.Key]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("ban_additions"); err != nil {
		return err
	}
	for key := range additions {
		s.calls = append(s.calls, Call{Op: "addBan", Channel: key.Channel, User: key.User})
		ch, ok := s.channels[key.Channel]
		if !ok {
			slog.Warn("ban addition references missing channel", "channel", key.Channel, "user", key.User)
			continue
		}
		if _, exists := ch.bans[key.User]; exists {
			slog.Warn("ban addition for existing row skipped", "channel", key.Channel, "user", key.User)
			continue
		}
		ch.bans[key.User] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) ApplyBanRemovals(removals map[pending.Key]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("ban_removals"); err != nil {
		return err
	}
	for key := range removals {
		s.calls = append(s.calls, Call{Op: "removeBan", Channel: key.Channel, User: key.User})
		if ch, ok := s.channels[key.Channel]; ok {
			delete(ch.bans, key.User)
		}
	}
	return nil
}

func (s *MemoryStore) ApplyGroupUpdates(groups []model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("group_updates"); err != nil {
		return err
	}
	for _, group := range groups {
		s.calls = append(s.calls, Call{Op: "updateGroup", Channel: group.ChannelID, Group: group.ID, Value: group.Name})
		ch, ok := s.channels[group.ChannelID]
		if !ok {
			slog.Warn("group update references missing channel", "channel", group.ChannelID, "group", group.ID)
			continue
		}
		// An update for a group the channel has no row for yet creates the
		// row; that is how a channel overrides a server-wide default group.
		ch.groups[group.ID] = group
	}
	return nil
}

func (s *MemoryStore) ApplyDetailChanges(details map[int64]model.ChannelDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("detail_changes"); err != nil {
		return err
	}
	for channelID, d := range details {
		s.calls = append(s.calls, Call{Op: "syncDetails", Channel: channelID, Value: d.Name})
		if ch, ok := s.channels[channelID]; ok {
			// The stored identity fields are immutable; only header fields
			// follow the sync.
			d.ID = ch.details.ID
			d.UUID = ch.details.UUID
			ch.details = d
		}
	}
	return nil
}

func (s *MemoryStore) ApplyAttrAdditions(additions map[pending.Key]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("attr_additions"); err != nil {
		return err
	}
	for key, value := range additions {
		s.calls = append(s.calls, Call{Op: "addAttribute", Channel: key.Channel, Attr: key.Attr, Value: value})
		ch, ok := s.channels[key.Channel]
		if !ok {
			slog.Warn("attribute addition references missing channel", "channel", key.Channel, "key", key.Attr)
			continue
		}
		if _, exists := ch.attrs[key.Attr]; exists {
			slog.Warn("attribute addition for existing row skipped", "channel", key.Channel, "key", key.Attr)
			continue
		}
		ch.attrs[key.Attr] = value
	}
	return nil
}

func (s *MemoryStore) ApplyAttrUpdates(updates map[pending.Key]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("attr_updates"); err != nil {
		return err
	}
	for key, value := range updates {
		s.calls = append(s.calls, Call{Op: "updateAttribute", Channel: key.Channel, Attr: key.Attr, Value: value})
		if ch, ok := s.channels[key.Channel]; ok {
			if _, exists := ch.attrs[key.Attr]; exists {
				ch.attrs[key.Attr] = value
			}
		}
	}
	return nil
}

func (s *MemoryStore) ApplyAttrRemovals(removals map[pending.Key]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phaseError("attr_removals"); err != nil {
		return err
	}
	for key := range removals {
		s.calls = append(s.calls, Call{Op: "clearAttribute", Channel: key.Channel, Attr: key.Attr})
		if ch, ok := s.channels[key.Channel]; ok {
			delete(ch.attrs, key.Attr)
		}
	}
	return nil
}

// Compile-time check: *MemoryStore implements Backend.
var _ Backend = (*MemoryStore)(nil)
