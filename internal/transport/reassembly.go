package transport

import "bytes"

// UpsertResult describes what Upsert did with a chunk.
type UpsertResult int

const (
	UpsertInserted UpsertResult = iota
	UpsertDuplicate
	// UpsertConflict means the index was already held with different bytes.
	// The first payload stays. Only reachable when the digest does not cover
	// the payload.
	UpsertConflict
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertDuplicate:
		return "duplicate"
	case UpsertConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Reassembly maps chunk index to payload and tracks the observed index range.
// It is owned by the receiver loop and is not safe for concurrent use.
type Reassembly struct {
	chunkSize int
	chunks    map[uint64][]byte
	minIndex  uint64
	maxIndex  uint64
	seen      bool
}

func NewReassembly(chunkSize int) *Reassembly {
	return &Reassembly{
		chunkSize: chunkSize,
		chunks:    make(map[uint64][]byte),
	}
}

// Upsert stores a copy of payload at index. A known index is never
// overwritten: identical bytes are a duplicate, different bytes a conflict.
func (r *Reassembly) Upsert(index uint64, payload []byte) UpsertResult {
	if prev, ok := r.chunks[index]; ok {
		if bytes.Equal(prev, payload) {
			return UpsertDuplicate
		}
		return UpsertConflict
	}
	r.chunks[index] = clone(payload)
	if !r.seen || index < r.minIndex {
		r.minIndex = index
	}
	if !r.seen || index > r.maxIndex {
		r.maxIndex = index
	}
	r.seen = true
	return UpsertInserted
}

func (r *Reassembly) Len() int {
	return len(r.chunks)
}

// Bounds returns the smallest and largest index stored; ok is false when empty.
func (r *Reassembly) Bounds() (minIndex, maxIndex uint64, ok bool) {
	return r.minIndex, r.maxIndex, r.seen
}

func (r *Reassembly) Get(index uint64) ([]byte, bool) {
	p, ok := r.chunks[index]
	return p, ok
}

// Gaps lists indices missing from [0,max]. The index space always starts at
// zero, so a min above zero is itself a gap.
func (r *Reassembly) Gaps() []uint64 {
	if !r.seen {
		return nil
	}
	var out []uint64
	for i := uint64(0); i <= r.maxIndex; i++ {
		if _, ok := r.chunks[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Assemble lays chunks 0..max out at ChunkSize stride, so each chunk sits at
// index*ChunkSize. The final length is trimmed to the last chunk's true size.
// Missing slots, leading ones included, are zero-filled and reported as a
// *GapError.
func (r *Reassembly) Assemble() ([]byte, error) {
	if !r.seen {
		return []byte{}, nil
	}
	size := int(r.maxIndex)*r.chunkSize + len(r.chunks[r.maxIndex])
	out := make([]byte, size)
	for idx, payload := range r.chunks {
		copy(out[int(idx)*r.chunkSize:], payload)
	}
	if gaps := r.Gaps(); len(gaps) > 0 {
		return out, &GapError{Missing: gaps}
	}
	return out, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
