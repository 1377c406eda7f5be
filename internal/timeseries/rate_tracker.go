// Package timeseries provides time-windowed metric tracking for telemetry
// delivery.
//
// This is an internal library designed for simplicity and testability.
// It tracks a cumulative event count and computes rolling rates over
// configurable time windows (1s, 30s, 60s, 300s).
//
// Thread-safe: Increment() uses atomic int64, GetStats() acquires read lock.
// Memory: ~10KB for 300 samples (5 minute window at 1 sample/sec).
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	// Window durations for rolling rates
	window1s   = 1 * time.Second
	window30s  = 30 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample represents a point-in-time snapshot of the cumulative count.
type sample struct {
	timestamp time.Time
	count     int64
}

// EventRateTracker tracks a cumulative event count and computes rolling
// rates over configurable time windows.
//
// Usage:
//
//	tracker := NewEventRateTracker()
//	tracker.Increment()  // Called per classified event (thread-safe, lock-free)
//	// ... periodic sampling (e.g., every 1s via ticker)
//	tracker.RecordSample()
//	// ... get stats for TUI/Prometheus
//	stats := tracker.GetStats()
type EventRateTracker struct {
	// totalEvents is the cumulative count (atomic for lock-free Increment)
	totalEvents atomic.Int64

	// Ring buffer of samples for rolling rate calculation
	samples  []sample
	writeIdx int // Next write position in ring buffer
	mu       sync.RWMutex

	// Start time for overall rate calculation
	startTime time.Time

	// Clock for testability
	clock Clock
}

// RateStats contains computed rolling rates at a point in time.
type RateStats struct {
	// TotalEvents is the cumulative count since start
	TotalEvents int64

	// Rolling rates (events per second)
	Rate1s   float64 // Rate over last 1 second
	Rate30s  float64 // Rate over last 30 seconds
	Rate60s  float64 // Rate over last 60 seconds
	Rate300s float64 // Rate over last 300 seconds (5 minutes)

	// RateOverall is the average rate since tracking started
	RateOverall float64
}

// NewEventRateTracker creates a new tracker with real clock.
func NewEventRateTracker() *EventRateTracker {
	return NewEventRateTrackerWithClock(realClock{})
}

// NewEventRateTrackerWithClock creates a tracker with custom clock for testing.
func NewEventRateTrackerWithClock(clock Clock) *EventRateTracker {
	now := clock.Now()
	t := &EventRateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	// Record initial sample at t=0 with 0 events
	t.samples = append(t.samples, sample{timestamp: now, count: 0})
	return t
}

// Increment adds one event to the cumulative total.
// Thread-safe and lock-free (uses atomic int64).
func (t *EventRateTracker) Increment() {
	t.totalEvents.Add(1)
}

// Add adds n events to the cumulative total.
func (t *EventRateTracker) Add(n int64) {
	if n > 0 {
		t.totalEvents.Add(n)
	}
}

// RecordSample records the current cumulative count with a timestamp.
// Call this periodically (e.g., every 1 second via ticker).
// Thread-safe (acquires write lock on ring buffer only).
func (t *EventRateTracker) RecordSample() {
	now := t.clock.Now()
	current := t.totalEvents.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	newSample := sample{timestamp: now, count: current}

	if len(t.samples) < ringBufferSize {
		// Buffer not yet full - append
		t.samples = append(t.samples, newSample)
	} else {
		// Buffer full - overwrite oldest
		t.samples[t.writeIdx] = newSample
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// GetStats computes and returns current rate statistics.
// Thread-safe (acquires read lock). Always returns valid data
// (never returns "no data" - uses available history).
func (t *EventRateTracker) GetStats() RateStats {
	now := t.clock.Now()
	current := t.totalEvents.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{
		TotalEvents: current,
	}

	// Calculate overall rate
	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.RateOverall = float64(current) / elapsed
	}

	// Calculate rolling rates for each window
	stats.Rate1s = t.rateOverWindow(now, current, window1s)
	stats.Rate30s = t.rateOverWindow(now, current, window30s)
	stats.Rate60s = t.rateOverWindow(now, current, window60s)
	stats.Rate300s = t.rateOverWindow(now, current, window300s)

	return stats
}

// rateOverWindow calculates events/sec over the specified window.
// Must be called with mu held (at least RLock).
func (t *EventRateTracker) rateOverWindow(now time.Time, current int64, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	targetTime := now.Add(-window)

	// Find the sample closest to (but not after) targetTime
	var bestSample *sample
	var bestDiff time.Duration = -1

	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue // Sample is within the window, skip
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			bestSample = s
			bestDiff = diff
		}
	}

	// If no sample before targetTime, use the oldest sample we have
	if bestSample == nil {
		bestSample = t.oldestSample()
	}

	if bestSample == nil {
		return 0
	}

	delta := current - bestSample.count
	actualElapsed := now.Sub(bestSample.timestamp).Seconds()

	if actualElapsed <= 0 {
		return 0 // Avoid division by zero
	}

	return float64(delta) / actualElapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *EventRateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}

	if len(t.samples) < ringBufferSize {
		// Buffer not full yet - oldest is at index 0
		return &t.samples[0]
	}

	// Buffer full - oldest is at writeIdx (next to be overwritten)
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
// Thread-safe.
func (t *EventRateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalEvents.Store(0)
	t.samples = t.samples[:0]
	t.samples = append(t.samples, sample{timestamp: now, count: 0})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
// Useful for testing.
func (t *EventRateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
