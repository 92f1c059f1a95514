// Package channel provides the unreliable datagram collaborators the transport
// runs over.
//
// Implementations deliver whole messages or nothing, may drop, corrupt or
// duplicate them, and must tolerate concurrent Send and Receive calls.
package channel

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTimeout         = errors.New("channel: inactivity timeout")
	ErrClosed          = errors.New("channel: closed")
	ErrMessageTooLarge = errors.New("channel: message exceeds max size")
)

// DefaultMaxMessageSize matches the default packet profile (988 + 4 + 32).
const DefaultMaxMessageSize = 1024

// Channel is one endpoint of a datagram link.
type Channel interface {
	// Send transmits msg. Delivery is not guaranteed.
	Send(msg []byte) error
	// Receive blocks for the next message. It returns ErrTimeout when nothing
	// arrives within timeout, and ctx.Err() when ctx ends first.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// await is the shared Receive body for implementations backed by a Go channel.
func await(ctx context.Context, timeout time.Duration, inbound <-chan []byte, closed <-chan struct{}) ([]byte, error) {
	// drain anything already queued before honoring close
	select {
	case msg := <-inbound:
		return msg, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-inbound:
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-closed:
		return nil, ErrClosed
	}
}
