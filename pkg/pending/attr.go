package pending

import "sync"

// AttrQueue coalesces pending attribute mutations. It has the same shape as
// MemberQueue with the attribute value in place of the member group.
type AttrQueue struct {
	mu        sync.Mutex
	additions map[Key]string
	updates   map[Key]string
	removals  map[Key]struct{}
}

// AttrBatch is a drained snapshot of an AttrQueue.
type AttrBatch struct {
	Additions map[Key]string
	Updates   map[Key]string
	Removals  map[Key]struct{}
}

func NewAttrQueue() *AttrQueue {
	return &AttrQueue{
		additions: make(map[Key]string),
		updates:   make(map[Key]string),
		removals:  make(map[Key]struct{}),
	}
}

// Add queues the addition of an attribute.
func (q *AttrQueue) Add(channelID int64, attr, value string) {
	key := AttrKey(channelID, attr)
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.additions[key]; ok {
		// Addition already queued.
		return
	}
	if _, ok := q.removals[key]; ok {
		// A removal was queued beforehand. The row still exists durably, so
		// the addition is replaced with a value update.
		delete(q.removals, key)
		q.updateLocked(key, value)
		return
	}
	q.additions[key] = value
}

// Update queues a value change for an existing attribute. A later update
// for the same key replaces an earlier one.
func (q *AttrQueue) Update(channelID int64, attr, value string) {
	key := AttrKey(channelID, attr)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updateLocked(key, value)
}

func (q *AttrQueue) updateLocked(key Key, value string) {
	if _, ok := q.removals[key]; ok {
		// A removal was queued beforehand and takes priority.
		return
	}
	q.updates[key] = value
}

// Remove queues the removal of an attribute.
func (q *AttrQueue) Remove(channelID int64, attr string) {
	key := AttrKey(channelID, attr)
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.removals[key]; ok {
		// Removal already queued.
		return
	}
	if _, ok := q.additions[key]; ok {
		// An addition was queued beforehand. The row was never durably
		// created, so cancelling the addition is sufficient.
		delete(q.additions, key)
		return
	}
	if _, ok := q.updates[key]; ok {
		delete(q.updates, key)
	}
	q.removals[key] = struct{}{}
}

// Snapshot atomically copies the queue contents into a batch and clears the
// live queues.
func (q *AttrQueue) Snapshot() AttrBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := AttrBatch{
		Additions: q.additions,
		Updates:   q.updates,
		Removals:  q.removals,
	}
	q.additions = make(map[Key]string)
	q.updates = make(map[Key]string)
	q.removals = make(map[Key]struct{})
	return batch
}

// Empty reports whether the batch holds no operations.
func (b AttrBatch) Empty() bool {
	return len(b.Additions) == 0 && len(b.Updates) == 0 && len(b.Removals) == 0
}
