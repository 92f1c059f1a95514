package channel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Impairment sets per-message probabilities applied on Send.
type Impairment struct {
	Loss      float64
	Corrupt   float64
	Duplicate float64
	Seed      int64
}

func (i Impairment) Validate() error {
	for name, p := range map[string]float64{"loss": i.Loss, "corrupt": i.Corrupt, "duplicate": i.Duplicate} {
		if p < 0 || p >= 1 {
			return fmt.Errorf("channel: %s probability must be in [0,1), got %v", name, p)
		}
	}
	return nil
}

func (i Impairment) Active() bool {
	return i.Loss > 0 || i.Corrupt > 0 || i.Duplicate > 0
}

// ImpairmentStats counts what the wrapper did to outbound traffic.
type ImpairmentStats struct {
	Sent       int
	Dropped    int
	Corrupted  int
	Duplicated int
}

// Impaired wraps a Channel and damages outbound messages.
type Impaired struct {
	inner Channel
	cfg   Impairment
	// DropFunc, when set, is consulted before the random policy; returning
	// true drops msg.
	DropFunc func(msg []byte) bool

	mu    sync.Mutex
	rng   *rand.Rand
	stats ImpairmentStats
}

func NewImpaired(inner Channel, cfg Impairment) (*Impaired, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Impaired{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

func (c *Impaired) Send(msg []byte) error {
	if c.DropFunc != nil && c.DropFunc(msg) {
		c.count(func(s *ImpairmentStats) { s.Dropped++ })
		return nil
	}

	c.mu.Lock()
	drop := c.rng.Float64() < c.cfg.Loss
	corrupt := c.rng.Float64() < c.cfg.Corrupt
	dup := c.rng.Float64() < c.cfg.Duplicate
	var flipAt int
	var flipMask byte
	if corrupt && len(msg) > 0 {
		flipAt = c.rng.Intn(len(msg))
		flipMask = byte(1 + c.rng.Intn(255))
	}
	c.mu.Unlock()

	if drop {
		c.count(func(s *ImpairmentStats) { s.Dropped++ })
		return nil
	}
	out := msg
	if corrupt && len(msg) > 0 {
		out = make([]byte, len(msg))
		copy(out, msg)
		out[flipAt] ^= flipMask
		c.count(func(s *ImpairmentStats) { s.Corrupted++ })
	}
	if err := c.inner.Send(out); err != nil {
		return err
	}
	c.count(func(s *ImpairmentStats) { s.Sent++ })
	if dup {
		c.count(func(s *ImpairmentStats) { s.Duplicated++ })
		return c.inner.Send(out)
	}
	return nil
}

func (c *Impaired) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return c.inner.Receive(ctx, timeout)
}

func (c *Impaired) Close() error {
	return c.inner.Close()
}

func (c *Impaired) Stats() ImpairmentStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Impaired) count(fn func(*ImpairmentStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
