package pending

import "sync"

// MemberQueue coalesces pending membership mutations. A (channel, user) key
// is present in at most one of the addition, update and removal queues at
// any instant.
type MemberQueue struct {
	mu        sync.Mutex
	additions map[Key]int64
	updates   map[Key]int64
	removals  map[Key]struct{}
}

// MemberBatch is a drained snapshot of a MemberQueue. Additions and updates
// map member keys to the group the member is assigned to.
type MemberBatch struct {
	Additions map[Key]int64
	Updates   map[Key]int64
	Removals  map[Key]struct{}
}

func NewMemberQueue() *MemberQueue {
	return &MemberQueue{
		additions: make(map[Key]int64),
		updates:   make(map[Key]int64),
		removals:  make(map[Key]struct{}),
	}
}

// Add queues the addition of a member with the given group.
func (q *MemberQueue) Add(channelID, userID, groupID int64) {
	key := MemberKey(channelID, userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.additions[key]; ok {
		// Addition already queued.
		return
	}
	if _, ok := q.removals[key]; ok {
		// A removal was queued beforehand. The row still exists durably, so
		// the addition is replaced with a group update.
		delete(q.removals, key)
		q.updateLocked(key, groupID)
		return
	}
	q.additions[key] = groupID
}

// Update queues a group change for an existing member. A later update for
// the same key replaces an earlier one.
func (q *MemberQueue) Update(channelID, userID, groupID int64) {
	key := MemberKey(channelID, userID)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updateLocked(key, groupID)
}

func (q *MemberQueue) updateLocked(key Key, groupID int64) {
	if _, ok := q.removals[key]; ok {
		// A removal was queued beforehand and takes priority.
		return
	}
	q.updates[key] = groupID
}

// Remove queues the removal of a member.
func (q *MemberQueue) Remove(channelID, userID int64) {
	key := MemberKey(channelID, userID)
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
func (q *MemberQueue) Snapshot() MemberBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := MemberBatch{
		Additions: q.additions,
		Updates:   q.updates,
		Removals:  q.removals,
	}
	q.additions = make(map[Key]int64)
	q.updates = make(map[Key]int64)
	q.removals = make(map[Key]struct{})
	return batch
}

// Empty reports whether the batch holds no operations.
func (b MemberBatch) Empty() bool {
	return len(b.Additions) == 0 && len(b.Updates) == 0 && len(b.Removals) == 0
}
