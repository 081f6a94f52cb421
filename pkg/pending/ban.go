package pending

import "sync"

// BanQueue coalesces pending ban mutations. Bans carry no payload, so an
// addition cancelled against a queued removal needs no replacement entry.
type BanQueue struct {
	mu        sync.Mutex
	additions map[Key]struct{}
	removals  map[Key]struct{}
}

// BanBatch is a drained snapshot of a BanQueue.
type BanBatch struct {
	Additions map[Key]struct{}
	Removals  map[Key]struct{}
}

func NewBanQueue() *BanQueue {
	return &BanQueue{
		additions: make(map[Key]struct{}),
		removals:  make(map[Key]struct{}),
	}
}

// Add queues the addition of a ban.
func (q *BanQueue) Add(channelID, userID int64) {
	key := MemberKey(channelID, userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.additions[key]; ok {
		// Addition already queued.
		return
	}
	if _, ok := q.removals[key]; ok {
		// A removal was queued beforehand. The two requests cancel out.
		delete(q.removals, key)
		return
	}
	q.additions[key] = struct{}{}
}

// Remove queues the removal of a ban.
func (q *BanQueue) Remove(channelID, userID int64) {
	key := MemberKey(channelID, userID)
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.removals[key]; ok {
		// Removal already queued.
		return
	}
	if _, ok := q.additions[key]; ok {
		// An addition was queued beforehand. The two requests cancel out.
		delete(q.additions, key)
		return
	}
	q.removals[key] = struct{}{}
}

// Snapshot atomically copies the queue contents into a batch and clears the
// live queues.
func (q *BanQueue) Snapshot() BanBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := BanBatch{Additions: q.additions, Removals: q.removals}
	q.additions = make(map[Key]struct{})
	q.removals = make(map[Key]struct{})
	return batch
}

// Empty reports whether the batch holds no operations.
func (b BanBatch) Empty() bool {
	return len(b.Additions) == 0 && len(b.Removals) == 0
}
