// Package engine implements the persistence synchronization engine: it
// buffers mutation intents in coalescing queues and flushes them to a
// durable backend on a periodic commit cycle.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/pending"
	"github.com/fgalloway/chanserv/pkg/store"
)

// Engine buffers channel mutations and applies them to a Backend in batches.
// Mutation methods only enqueue and return immediately; reads and lifecycle
// operations pass straight through to the backend.
type Engine struct {
	backend store.Backend

	members *pending.MemberQueue
	bans    *pending.BanQueue
	groups  *pending.GroupQueue
	details *pending.DetailQueue
	attrs   *pending.AttrQueue

	// commitMu serializes commit cycles: a new cycle cannot start while a
	// previous snapshot is being drained.
	commitMu sync.Mutex
}

// New creates an Engine flushing to the given backend.
func New(backend store.Backend) *Engine {
	return &Engine{
		backend: backend,
		members: pending.NewMemberQueue(),
		bans:    pending.NewBanQueue(),
		groups:  pending.NewGroupQueue(),
		details: pending.NewDetailQueue(),
		attrs:   pending.NewAttrQueue(),
	}
}

// Compile-time check: *Engine implements ChannelStore.
var _ store.ChannelStore = (*Engine)(nil)

// ---- Mutation intake ----

func (e *Engine) AddMember(channelID, userID, groupID int64) error {
	e.members.Add(channelID, userID, groupID)
	return nil
}

func (e *Engine) UpdateMember(channelID, userID, groupID int64) error {
	e.members.Update(channelID, userID, groupID)
	return nil
}

func (e *Engine) RemoveMember(channelID, userID int64) error {
	e.members.Remove(channelID, userID)
	return nil
}

func (e *Engine) AddBan(channelID, userID int64) error {
	e.bans.Add(channelID, userID)
	return nil
}

func (e *Engine) RemoveBan(channelID, userID int64) error {
	e.bans.Remove(channelID, userID)
	return nil
}

// AddGroup is part of the contract but not supported: groups are created
// with the channel and only updated afterwards.
func (e *Engine) AddGroup(channelID int64, group model.Group) error {
	return store.ErrUnsupported
}

func (e *Engine) UpdateGroup(channelID int64, group model.Group) error {
	if err := group.Validate(); err != nil {
		return fmt.Errorf("engine: update group: %w", err)
	}
	group.ChannelID = channelID
	e.groups.Update(group)
	return nil
}

// RemoveGroup is part of the contract but not supported; see AddGroup.
func (e *Engine) RemoveGroup(channelID, groupID int64) error {
	return store.ErrUnsupported
}

func (e *Engine) UpdateDetails(channelID int64, details model.ChannelDetails) error {
	if err := details.Validate(); err != nil {
		return fmt.Errorf("engine: update details: %w", err)
	}
	details.ID = channelID
	e.details.Sync(channelID, details)
	return nil
}

func (e *Engine) AddAttribute(channelID int64, key, value string) error {
	if err := validateAttribute(key, value); err != nil {
		return fmt.Errorf("engine: add attribute: %w", err)
	}
	e.attrs.Add(channelID, key, value)
	return nil
}

func (e *Engine) UpdateAttribute(channelID int64, key, value string) error {
	if err := validateAttribute(key, value); err != nil {
		return fmt.Errorf("engine: update attribute: %w", err)
	}
	e.attrs.Update(channelID, key, value)
	return nil
}

func (e *Engine) ClearAttribute(channelID int64, key string) error {
	if err := model.ValidateAttributeKey(key); err != nil {
		return fmt.Errorf("engine: clear attribute: %w", err)
	}
	e.attrs.Remove(channelID, key)
	return nil
}

func validateAttribute(key, value string) error {
	if err := model.ValidateAttributeKey(key); err != nil {
		return err
	}
	return model.ValidateAttributeValue(value)
}

// ---- Commit cycle ----

// CommitChanges snapshots and drains every pending queue, then applies the
// batches in a fixed phase order: member additions, member updates, member
// removals, ban additions, ban removals, group updates, detail changes,
// then attribute additions, updates and removals. Additions must land
// before updates and removals so later phases never target rows the same
// cycle has not created yet.
//
// A failed phase is logged and its remaining items dropped; the other
// phases still run. Failed items are not requeued.
func (e *Engine) CommitChanges() error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	memberBatch := e.members.Snapshot()
	banBatch := e.bans.Snapshot()
	groupBatch := e.groups.Snapshot()
	detailBatch := e.details.Snapshot()
	attrBatch := e.attrs.Snapshot()

	if len(memberBatch.Additions) > 0 {
		if err := e.backend.ApplyMemberAdditions(memberBatch.Additions); err != nil {
			slog.Error("failed to commit member additions", "count", len(memberBatch.Additions), "err", err)
		}
	}
	if len(memberBatch.Updates) > 0 {
		if err := e.backend.ApplyMemberUpdates(memberBatch.Updates); err != nil {
			slog.Error("failed to commit member updates", "count", len(memberBatch.Updates), "err", err)
		}
	}
	if len(memberBatch.Removals) > 0 {
		if err := e.backend.ApplyMemberRemovals(memberBatch.Removals); err != nil {
			slog.Error("failed to commit member removals", "count", len(memberBatch.Removals), "err", err)
		}
	}

	if len(banBatch.Additions) > 0 {
		if err := e.backend.ApplyBanAdditions(banBatch.Additions); err != nil {
			slog.Error("failed to commit ban additions", "count", len(banBatch.Additions), "err", err)
		}
	}
	if len(banBatch.Removals) > 0 {
		if err := e.backend.ApplyBanRemovals(banBatch.Removals); err != nil {
			slog.Error("failed to commit ban removals", "count", len(banBatch.Removals), "err", err)
		}
	}

	if len(groupBatch) > 0 {
		if err := e.backend.ApplyGroupUpdates(groupBatch); err != nil {
			slog.Error("failed to commit group updates", "count", len(groupBatch), "err", err)
		}
	}

	if len(detailBatch) > 0 {
		if err := e.backend.ApplyDetailChanges(detailBatch); err != nil {
			slog.Error("failed to commit detail changes", "count", len(detailBatch), "err", err)
		}
	}

	if len(attrBatch.Additions) > 0 {
		if err := e.backend.ApplyAttrAdditions(attrBatch.Additions); err != nil {
			slog.Error("failed to commit attribute additions", "count", len(attrBatch.Additions), "err", err)
		}
	}
	if len(attrBatch.Updates) > 0 {
		if err := e.backend.ApplyAttrUpdates(attrBatch.Updates); err != nil {
			slog.Error("failed to commit attribute updates", "count", len(attrBatch.Updates), "err", err)
		}
	}
	if len(attrBatch.Removals) > 0 {
		if err := e.backend.ApplyAttrRemovals(attrBatch.Removals); err != nil {
			slog.Error("failed to commit attribute removals", "count", len(attrBatch.Removals), "err", err)
		}
	}

	return nil
}

// ---- Lifecycle and reads: direct passthrough ----

func (e *Engine) CreateChannel(details model.ChannelDetails) (int64, error) {
	return e.backend.CreateChannel(details)
}

func (e *Engine) RemoveChannel(channelID int64) error {
	return e.backend.RemoveChannel(channelID)
}

func (e *Engine) ChannelDetails(channelID int64) (*model.ChannelDetails, error) {
	return e.backend.ChannelDetails(channelID)
}

func (e *Engine) ChannelAttributes(channelID int64) (map[string]string, error) {
	return e.backend.ChannelAttributes(channelID)
}

func (e *Engine) ChannelMembers(channelID int64) (map[int64]int64, error) {
	return e.backend.ChannelMembers(channelID)
}

func (e *Engine) ChannelBans(channelID int64) ([]int64, error) {
	return e.backend.ChannelBans(channelID)
}

func (e *Engine) ChannelGroups(channelID int64) ([]model.Group, error) {
	return e.backend.ChannelGroups(channelID)
}

func (e *Engine) ChannelRankNames(channelID int64) (map[byte]string, error) {
	return e.backend.ChannelRankNames(channelID)
}

// Close closes the underlying backend. Pending mutations that have not been
// committed are lost.
func (e *Engine) Close() error {
	return e.backend.Close()
}
