package channel

import (
	"context"
	"sync"
	"time"
)

// Pipe is one end of an in-memory datagram link. A full peer queue drops the
// message, as a saturated socket buffer would.
type Pipe struct {
	inbound chan []byte
	peer    *Pipe
	maxSize int

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipe returns two connected ends. depth is the per-direction queue length.
func NewPipe(depth, maxSize int) (*Pipe, *Pipe) {
	if depth <= 0 {
		depth = 1024
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	a := &Pipe{inbound: make(chan []byte, depth), maxSize: maxSize, closed: make(chan struct{})}
	b := &Pipe{inbound: make(chan []byte, depth), maxSize: maxSize, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (p *Pipe) Send(msg []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	if len(msg) > p.maxSize {
		return ErrMessageTooLarge
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	select {
	case p.peer.inbound <- out:
	default:
	}
	return nil
}

func (p *Pipe) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return await(ctx, timeout, p.inbound, p.closed)
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
