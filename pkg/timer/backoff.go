package timer

import (
	"math/rand/v2"
	"time"
)

// Retransmission pacing defaults.
const (
	// InitialInterval is the first retransmission delay of a flight.
	InitialInterval = 1 * time.Second

	// MaxInterval caps the retransmission delay.
	MaxInterval = 60 * time.Second

	// Multiplier is the factor applied after each retransmission.
	Multiplier = 2.0
)

// BackoffConfig customizes Backoff.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the maximum extra delay as a fraction of the base delay.
	Jitter float64
}

// Backoff yields exponentially growing retransmission delays.
// It is owned by a single session and not safe for concurrent use.
type Backoff struct {
	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int
}

// NewBackoff returns the default 1s..60s doubling schedule without jitter.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig returns a Backoff using cfg, filling zero fields
// with the defaults.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialInterval
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxInterval
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
	}
}

// Next returns the current delay (with jitter) and advances the schedule.
func (b *Backoff) Next() time.Duration {
	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Current returns the current base delay without advancing.
func (b *Backoff) Current() time.Duration { return b.current }

// Reset restarts the schedule. Call it whenever a new flight is sent.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of Next calls since the last Reset.
func (b *Backoff) Attempts() int { return b.attempts }

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*rand.Float64())
}
