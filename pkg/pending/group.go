package pending

import (
	"sync"

	"github.com/fgalloway/chanserv/pkg/model"
)

// GroupQueue deduplicates pending group updates by group identity: the
// latest queued update for a (channel, group) pair wins. Groups are not
// added or removed through the pending queues, so there is no cancellation
// against other operation kinds.
type GroupQueue struct {
	mu      sync.Mutex
	updates map[groupIdentity]model.Group
}

type groupIdentity struct {
	channel int64
	group   int64
}

func NewGroupQueue() *GroupQueue {
	return &GroupQueue{updates: make(map[groupIdentity]model.Group)}
}

// Update queues a group update, replacing any earlier update for the same
// group.
func (q *GroupQueue) Update(group model.Group) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates[groupIdentity{channel: group.ChannelID, group: group.ID}] = group
}

// Snapshot atomically copies the queued updates and clears the live queue.
func (q *GroupQueue) Snapshot() []model.Group {
	q.mu.Lock()
	defer q.mu.Unlock()

	groups := make([]model.Group, 0, len(q.updates))
	for _, group := range q.updates {
		groups = append(groups, group)
	}
	q.updates = make(map[groupIdentity]model.Group)
	return groups
}
