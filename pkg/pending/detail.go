package pending

import (
	"sync"

	"github.com/fgalloway/chanserv/pkg/model"
)

// DetailQueue holds pending whole-record detail syncs keyed by channel. The
// latest snapshot submitted before a commit wins; there is no per-field
// coalescing.
type DetailQueue struct {
	mu      sync.Mutex
	changes map[int64]model.ChannelDetails
}

func NewDetailQueue() *DetailQueue {
	return &DetailQueue{changes: make(map[int64]model.ChannelDetails)}
}

// Sync queues a full detail snapshot for the channel.
func (q *DetailQueue) Sync(channelID int64, details model.ChannelDetails) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changes[channelID] = details
}

// Snapshot atomically copies the queued detail changes and clears the live
// queue.
func (q *DetailQueue) Snapshot() map[int64]model.ChannelDetails {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes := q.changes
	q.changes = make(map[int64]model.ChannelDetails)
	return changes
}
