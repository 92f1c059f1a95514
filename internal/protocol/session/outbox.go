package session

import (
	"sort"
	"sync"
	"time"
)

// PendingChunk tracks one dispatched chunk awaiting its ack.
type PendingChunk struct {
	Index       uint64
	Attempts    int
	FirstSentAt time.Time
	LastSentAt  time.Time
}

// ChunkOutbox stores in-flight chunks by index. Each entry is written by the
// worker that owns the chunk; readers take snapshots.
type ChunkOutbox struct {
	mu    sync.RWMutex
	items map[uint64]PendingChunk
}

func NewChunkOutbox() *ChunkOutbox {
	return &ChunkOutbox{
		items: make(map[uint64]PendingChunk),
	}
}

// Dispatch records the first send of index.
func (o *ChunkOutbox) Dispatch(index uint64, at time.Time) PendingChunk {
	item := PendingChunk{Index: index, Attempts: 1, FirstSentAt: at, LastSentAt: at}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[index] = item
	return item
}

func (o *ChunkOutbox) MarkAttempt(index uint64, at time.Time) (PendingChunk, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[index]
	if !ok {
		return PendingChunk{}, false
	}
	item.Attempts++
	item.LastSentAt = at
	o.items[index] = item
	return item, true
}

func (o *ChunkOutbox) Remove(index uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, index)
}

func (o *ChunkOutbox) Get(index uint64) (PendingChunk, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[index]
	return item, ok
}

func (o *ChunkOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *ChunkOutbox) List() []PendingChunk {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingChunk, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Index < out[j].Index
	})
	return out
}
