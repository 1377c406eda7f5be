// Package stats provides per-session and aggregated QoE statistics for
// playback sessions.
//
// This file implements Registry which aggregates metrics across all
// sessions:
// - Event totals and instantaneous event rates
// - Buffering time and window percentiles (T-Digest)
// - Startup latency percentiles (T-Digest)
// - Error and quality-switch totals
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// AggregatedQoE holds metrics across all sessions.
//
// This is a snapshot - values are computed at the time of Aggregate() call.
type AggregatedQoE struct {
	// Timestamp when this snapshot was taken
	Timestamp time.Time

	// Session counts
	TotalSessions  int
	EndedSessions  int
	ActiveSessions int

	// Event totals
	TotalEvents int64

	// Instantaneous rate (per second) - calculated from last snapshot
	InstantEventRate float64

	// Buffering
	TotalBufferingSeconds float64
	BufferingWindows      int64
	SessionsBuffering     int

	// Buffering window duration percentiles (seconds)
	BufferingP50 float64
	BufferingP95 float64
	BufferingP99 float64

	// Startup latency percentiles (seconds)
	StartupP50 float64
	StartupP95 float64

	// Playback
	TotalPlayedSeconds float64
	QualitySwitches    int64
	Seeks              int64

	// Errors
	MediaErrors  int64
	EngineErrors int64

	// Per-session summaries (optional, for detailed TUI view)
	PerSessionSummaries []SessionSummary
}

// Registry tracks all live sessions and merges their measurement windows
// into constant-memory percentile digests.
//
// Thread-safe: all methods can be called concurrently. Registry implements
// WindowObserver so sessions can feed it directly.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[int]*SessionStats
	startTime time.Time

	// For rate calculations (atomic.Value for lock-free access)
	prevSnapshot atomic.Value // *rateSnapshot

	// T-Digests are not safe for concurrent use; guarded separately so
	// window observations never contend with the session map.
	digestMu      sync.Mutex
	bufferDigest  *tdigest.TDigest
	startupDigest *tdigest.TDigest
}

// rateSnapshot holds values for calculating instantaneous rates
type rateSnapshot struct {
	timestamp   time.Time
	totalEvents int64
}

// NewRegistry creates a new registry.
func NewRegistry() *Registry {
	r := &Registry{
		sessions:      make(map[int]*SessionStats),
		startTime:     time.Now(),
		bufferDigest:  tdigest.New(),
		startupDigest: tdigest.New(),
	}
	r.prevSnapshot.Store(&rateSnapshot{timestamp: time.Now()})
	return r
}

// NewSession creates per-session stats wired to this registry's digests and
// registers them.
func (r *Registry) NewSession(instanceID int, startedAt time.Time) *SessionStats {
	s := NewSessionStats(instanceID, startedAt, r)
	r.Add(s)
	return s
}

// Add registers a session for aggregation.
func (r *Registry) Add(s *SessionStats) {
	r.mu.Lock()
	r.sessions[s.InstanceID] = s
	r.mu.Unlock()
}

// Remove unregisters a session. Its windows stay in the digests.
func (r *Registry) Remove(instanceID int) {
	r.mu.Lock()
	delete(r.sessions, instanceID)
	r.mu.Unlock()
}

// Get returns the SessionStats for a specific session.
func (r *Registry) Get(instanceID int) *SessionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[instanceID]
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ObserveBufferingWindow implements WindowObserver.
func (r *Registry) ObserveBufferingWindow(d time.Duration) {
	r.digestMu.Lock()
	r.bufferDigest.Add(d.Seconds(), 1)
	r.digestMu.Unlock()
}

// ObserveStartupLatency implements WindowObserver.
func (r *Registry) ObserveStartupLatency(d time.Duration) {
	r.digestMu.Lock()
	r.startupDigest.Add(d.Seconds(), 1)
	r.digestMu.Unlock()
}

// Aggregate computes aggregated statistics across all sessions.
//
// This creates a snapshot of current metrics. The returned struct is
// safe to use after the call returns.
func (r *Registry) Aggregate() *AggregatedQoE {
	r.mu.RLock()

	now := time.Now()
	result := &AggregatedQoE{
		Timestamp:     now,
		TotalSessions: len(r.sessions),
	}

	summaries := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		summaries = append(summaries, s.Summary())
	}
	r.mu.RUnlock()

	for _, sum := range summaries {
		result.TotalEvents += sum.TotalEvents
		result.TotalBufferingSeconds += sum.BufferingTotal.Seconds()
		result.BufferingWindows += sum.BufferWindows
		result.TotalPlayedSeconds += sum.PlayedTime.Seconds()
		result.QualitySwitches += sum.QualitySwitches
		result.Seeks += sum.Seeks
		result.MediaErrors += sum.MediaErrors
		result.EngineErrors += sum.EngineErrors

		if sum.Ended {
			result.EndedSessions++
		} else {
			result.ActiveSessions++
		}
		if sum.BufferOpen {
			result.SessionsBuffering++
		}
	}
	result.PerSessionSummaries = summaries

	// Instantaneous event rate from the previous snapshot
	if prev, ok := r.prevSnapshot.Load().(*rateSnapshot); ok && prev != nil {
		elapsed := now.Sub(prev.timestamp).Seconds()
		if elapsed > 0 {
			result.InstantEventRate = float64(result.TotalEvents-prev.totalEvents) / elapsed
		}
	}
	r.prevSnapshot.Store(&rateSnapshot{timestamp: now, totalEvents: result.TotalEvents})

	// Percentiles from the digests
	r.digestMu.Lock()
	if r.bufferDigest.Count() > 0 {
		result.BufferingP50 = r.bufferDigest.Quantile(0.50)
		result.BufferingP95 = r.bufferDigest.Quantile(0.95)
		result.BufferingP99 = r.bufferDigest.Quantile(0.99)
	}
	if r.startupDigest.Count() > 0 {
		result.StartupP50 = r.startupDigest.Quantile(0.50)
		result.StartupP95 = r.startupDigest.Quantile(0.95)
	}
	r.digestMu.Unlock()

	return result
}

// StartTime returns when the registry was created.
func (r *Registry) StartTime() time.Time {
	return r.startTime
}

// Elapsed returns the duration since the registry was created.
func (r *Registry) Elapsed() time.Duration {
	return time.Since(r.startTime)
}

// ForEach calls the provided function for each session.
// The function is called while holding the read lock.
func (r *Registry) ForEach(fn func(instanceID int, s *SessionStats)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.sessions {
		fn(id, s)
	}
}

// Summaries returns snapshots for all sessions.
func (r *Registry) Summaries() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		summaries = append(summaries, s.Summary())
	}
	return summaries
}
