package session

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls the delay between session open attempts.
type BackoffConfig struct {
	Initial    time.Duration // first retry delay
	Max        time.Duration // delay ceiling
	Multiplier float64       // growth factor per attempt
	JitterPct  float64       // total jitter band as a fraction of the delay
}

// DefaultBackoffConfig returns the retry timing used when the caller does not
// override it: 250ms growing 1.7x up to 5s, with a ±20% jitter band.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Backoff produces exponentially growing, jittered retry delays. One Backoff
// belongs to one session instance; seeding by instance keeps concurrent
// sessions from retrying in lockstep.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a delay calculator seeded from the instance ID and a
// run-level seed, so a given run replays the same retry timing.
func NewBackoff(instanceID int, configSeed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(int64(instanceID) ^ configSeed)),
	}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := b.Calculate()
	b.attempts++
	return d
}

// Calculate returns the delay for the current attempt without advancing.
func (b *Backoff) Calculate() time.Duration {
	d := math.Min(
		float64(b.config.Initial)*math.Pow(b.config.Multiplier, float64(b.attempts)),
		float64(b.config.Max),
	)

	if band := d * b.config.JitterPct; band > 0 {
		// Centered jitter: delay ± band/2.
		d += band * (b.rng.Float64() - 0.5)
	}

	return time.Duration(math.Max(d, 0))
}

// Reset rewinds the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns how many delays have been handed out.
func (b *Backoff) Attempts() int {
	return b.attempts
}
