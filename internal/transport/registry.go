package transport

import (
	"sort"
	"sync"
)

// AckRegistry is the set of acknowledged indices. It only grows.
type AckRegistry struct {
	mu    sync.RWMutex
	acked map[uint64]struct{}
}

func NewAckRegistry() *AckRegistry {
	return &AckRegistry{acked: make(map[uint64]struct{})}
}

// Add inserts index and reports whether it was new.
func (r *AckRegistry) Add(index uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acked[index]; ok {
		return false
	}
	r.acked[index] = struct{}{}
	return true
}

func (r *AckRegistry) Has(index uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.acked[index]
	return ok
}

func (r *AckRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.acked)
}

// Missing lists indices in [0,count) not yet acknowledged.
func (r *AckRegistry) Missing(count int) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uint64
	for i := 0; i < count; i++ {
		if _, ok := r.acked[uint64(i)]; !ok {
			out = append(out, uint64(i))
		}
	}
	return out
}

func (r *AckRegistry) List() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.acked))
	for idx := range r.acked {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
