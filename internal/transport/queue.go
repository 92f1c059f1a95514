package transport

import "sync/atomic"

// WorkQueue is the FIFO of indices awaiting dispatch. It is filled once and
// closed, so each index is handed to exactly one worker and an empty queue
// means there is no more work.
type WorkQueue struct {
	ch         chan uint64
	dispatched atomic.Int64
}

func NewWorkQueue(count int) *WorkQueue {
	q := &WorkQueue{ch: make(chan uint64, count)}
	for i := 0; i < count; i++ {
		q.ch <- uint64(i)
	}
	close(q.ch)
	return q
}

// Next hands out the next index; ok is false once the queue is drained.
func (q *WorkQueue) Next() (uint64, bool) {
	idx, ok := <-q.ch
	if ok {
		q.dispatched.Add(1)
	}
	return idx, ok
}

func (q *WorkQueue) Len() int {
	return len(q.ch)
}

func (q *WorkQueue) Dispatched() int {
	return int(q.dispatched.Load())
}
