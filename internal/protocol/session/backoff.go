package session

import (
	"math"
	"math/rand"
	"time"
)

// Jittered waits are scaled by a factor in [jitterFloor, jitterFloor+1).
const jitterFloor = 0.5

// NextBackoffDelay returns the ack wait before resend N of a chunk. Attempt 1
// is the first send and always waits exactly InitialDelay.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return max(cfg.InitialDelay, 0)
	}
	growth := max(cfg.Multiplier, 1.0)
	wait := float64(cfg.InitialDelay) * math.Pow(growth, float64(attempt-1))
	if cfg.MaxDelay > 0 {
		wait = math.Min(wait, float64(cfg.MaxDelay))
	}
	if !cfg.Jitter {
		return time.Duration(wait)
	}
	scale := jitterFloor
	if rng != nil {
		scale += rng.Float64()
	}
	return time.Duration(wait * scale)
}

// MaxBackoffDelay is the longest wait NextBackoffDelay can hand out for cfg.
// ok is false when the wait grows without a ceiling.
func MaxBackoffDelay(cfg BackoffConfig) (d time.Duration, ok bool) {
	d = cfg.InitialDelay
	if cfg.Multiplier > 1.0 {
		if cfg.MaxDelay <= 0 {
			return 0, false
		}
		d = max(cfg.MaxDelay, cfg.InitialDelay)
	}
	if cfg.Jitter {
		d = time.Duration(float64(d) * (jitterFloor + 1))
	}
	return d, true
}
