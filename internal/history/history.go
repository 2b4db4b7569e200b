// Package history keeps a bounded, capture-ordered log of process snapshots.
package history

import (
	"slices"
	"sync"

	"codeberg.org/mutker/procwatch/internal/process"
)

// DefaultCapacity is the number of snapshots retained when no size is configured.
const DefaultCapacity = 500

// Buffer is a fixed-capacity ring of snapshots. One goroutine appends;
// any number may read. A snapshot becomes visible to readers only once it
// is fully stored.
type Buffer struct {
	mu    sync.RWMutex
	ring  []process.Snapshot
	start int
	size  int
	seq   uint64
}

// New returns an empty buffer holding at most capacity snapshots.
// Non-positive capacities fall back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]process.Snapshot, capacity)}
}

// Append stores snap as the newest entry, evicting the oldest one when the
// buffer is full. It assigns the next sequence number and returns the
// stored snapshot. The buffer takes ownership of snap.Records.
func (b *Buffer) Append(snap process.Snapshot) process.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	snap.Seq = b.seq

	if b.size < len(b.ring) {
		b.ring[(b.start+b.size)%len(b.ring)] = snap
		b.size++
		return snap
	}

	b.ring[b.start] = snap
	b.start = (b.start + 1) % len(b.ring)
	return snap
}

// Latest returns the newest snapshot, or false if nothing was appended yet.
// The returned Records are a copy; changing them does not affect history.
func (b *Buffer) Latest() (process.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return process.Snapshot{}, false
	}
	return b.at(b.size - 1), true
}

// Recent returns up to the k newest snapshots, oldest first. Like Latest,
// it hands out copies of the stored records.
func (b *Buffer) Recent(k int) []process.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	k = min(k, b.size)
	if k <= 0 {
		return []process.Snapshot{}
	}

	out := make([]process.Snapshot, 0, k)
	for i := b.size - k; i < b.size; i++ {
		out = append(out, b.at(i))
	}
	return out
}

// Len returns the number of stored snapshots.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// at returns a copy of the i-th oldest stored snapshot. Callers hold mu.
func (b *Buffer) at(i int) process.Snapshot {
	snap := b.ring[(b.start+i)%len(b.ring)]
	snap.Records = slices.Clone(snap.Records)
	return snap
}
