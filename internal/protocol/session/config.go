package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines how the ack wait grows across resends of one chunk.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transfer reliability defaults.
type Config struct {
	// IdleTimeout is the receiver inactivity window once traffic has started.
	IdleTimeout time.Duration
	// StartTimeout bounds the receiver wait for the first message.
	StartTimeout time.Duration
	// TerminationWait is how long the sender waits for the sentinel echo per round.
	TerminationWait time.Duration
	// TerminationRounds caps sentinel rounds; zero retries until the context ends.
	TerminationRounds int
	SentinelBurst     int
	// Backoff.InitialDelay is the ack wait for the first send of a chunk.
	Backoff BackoffConfig
}

// IdleQuietRatio is how many of the sender's longest silent gaps must fit in
// the receiver idle window.
const IdleQuietRatio = 3

// DefaultConfig keeps the receiver idle window at ten times the longest
// silence the sender can produce: a 200ms ack wait and a 500ms echo wait
// against 5s of idle.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:       5 * time.Second,
		StartTimeout:      30 * time.Second,
		TerminationWait:   500 * time.Millisecond,
		TerminationRounds: 10,
		SentinelBurst:     3,
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Multiplier:   1.0,
			MaxDelay:     time.Second,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = c.IdleTimeout
	}
	if c.TerminationWait <= 0 {
		c.TerminationWait = def.TerminationWait
	}
	if c.TerminationRounds < 0 {
		c.TerminationRounds = 0
	}
	if c.SentinelBurst <= 0 {
		c.SentinelBurst = def.SentinelBurst
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = 1.0
	}
	if c.Backoff.Multiplier > 1.0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = max(def.Backoff.MaxDelay, c.Backoff.InitialDelay)
	}
	return c
}

// QuietBound is the longest the sender can leave the link silent while the
// receiver still waits on it: one full ack wait or one sentinel echo wait.
// ok is false when the ack wait has no ceiling.
func (c Config) QuietBound() (time.Duration, bool) {
	ack, ok := MaxBackoffDelay(c.Backoff)
	if !ok {
		return 0, false
	}
	return max(ack, c.TerminationWait), true
}

func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive", ErrInvalidConfig)
	}
	if c.TerminationWait <= 0 {
		return fmt.Errorf("%w: termination wait must be positive", ErrInvalidConfig)
	}
	if c.SentinelBurst <= 0 {
		return fmt.Errorf("%w: sentinel burst must be positive", ErrInvalidConfig)
	}
	if c.Backoff.InitialDelay <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidConfig)
	}
	if c.Backoff.MaxDelay > 0 && c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		return fmt.Errorf("%w: max ack timeout %v below initial %v", ErrInvalidConfig, c.Backoff.MaxDelay, c.Backoff.InitialDelay)
	}
	quiet, ok := c.QuietBound()
	if !ok {
		return fmt.Errorf("%w: ack backoff %v needs a max ack timeout", ErrInvalidConfig, c.Backoff.Multiplier)
	}
	if c.IdleTimeout < IdleQuietRatio*quiet {
		return fmt.Errorf("%w: idle timeout %v must be at least %dx the longest sender silence %v",
			ErrInvalidConfig, c.IdleTimeout, IdleQuietRatio, quiet)
	}
	return nil
}
