// Package orchestrator coordinates the full run: preflight, metrics,
// session ramp-up, periodic aggregation, and shutdown.
package orchestrator

import (
	"context"
	"time"
)

// RampScheduler paces session starts so a run never opens all its sessions
// in the same instant. Each start waits one rate interval plus a
// per-instance jitter so restarted runs keep the same spread.
type RampScheduler struct {
	rate      int // sessions per second, 0 = unpaced
	maxJitter time.Duration
	jitter    *JitterSource
}

// NewRampScheduler paces at the given rate with time-seeded jitter.
func NewRampScheduler(rate int, maxJitter time.Duration) *RampScheduler {
	return NewRampSchedulerWithSeed(rate, maxJitter, time.Now().UnixNano())
}

// NewRampSchedulerWithSeed creates a scheduler with a specific seed for reproducibility.
func NewRampSchedulerWithSeed(rate int, maxJitter time.Duration, seed int64) *RampScheduler {
	return &RampScheduler{
		rate:      rate,
		maxJitter: maxJitter,
		jitter:    NewJitterSource(seed),
	}
}

// Schedule blocks until instance N may start, or until the context ends.
func (r *RampScheduler) Schedule(ctx context.Context, instanceID int) error {
	delay := r.jitter.InstanceJitter(instanceID, r.maxJitter)
	if r.rate > 0 {
		delay += time.Second / time.Duration(r.rate)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EstimatedRampDuration returns the expected time to start all sessions:
// the paced portion plus the mean jitter.
func (r *RampScheduler) EstimatedRampDuration(totalSessions int) time.Duration {
	if r.rate <= 0 {
		return 0
	}
	return time.Duration(totalSessions)*time.Second/time.Duration(r.rate) + r.maxJitter/2
}

// Rate returns the configured sessions per second.
func (r *RampScheduler) Rate() int {
	return r.rate
}

// MaxJitter returns the configured jitter ceiling.
func (r *RampScheduler) MaxJitter() time.Duration {
	return r.maxJitter
}
