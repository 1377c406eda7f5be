// Package stats provides per-session and aggregated QoE statistics for
// playback sessions.
//
// This file implements SessionStats which tracks metrics for a single
// playback session:
// - Event counts by kind
// - Startup latency (session open to stream ready)
// - Played time and buffering time (wall clock, from event timestamps)
// - Buffering window pairing (at most one open window)
// - Quality switches and error counts
package stats

import (
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// WindowObserver receives completed measurement windows for cross-session
// percentile tracking. Implementations must be safe for concurrent use.
type WindowObserver interface {
	ObserveBufferingWindow(d time.Duration)
	ObserveStartupLatency(d time.Duration)
}

// SessionStats holds QoE metrics for one playback session.
//
// All derivations use event timestamps, never the local clock, so replaying
// the same event sequence always produces the same aggregates.
//
// Thread-safe: Record and the read methods may be called concurrently.
type SessionStats struct {
	InstanceID int

	// StartedAt anchors startup latency; set to the session open time.
	StartedAt time.Time

	observer WindowObserver

	mu sync.Mutex

	eventCounts map[telemetry.Kind]int64
	totalEvents int64

	// Startup
	ready          bool
	startupLatency time.Duration

	// Played time accrual. Stalls suspend accrual without counting as pause.
	playing          bool
	playAccrualFrom  time.Time
	playedTime       time.Duration
	resumeAfterStall bool

	// Buffering window pairing. At most one window is open; a start while
	// open and an end without a start are both no-ops.
	bufferOpen     bool
	bufferOpenedAt time.Time
	bufferingTotal time.Duration
	bufferWindows  int64
	lastWindow     time.Duration

	// Quality
	qualitySwitches int64
	currentLevel    int
	currentBitrate  int64

	// Errors
	mediaErrors  int64
	engineErrors int64

	seeks        int64
	lastPosition float64
	maxPosition  float64
	ended        bool
}

// NewSessionStats creates stats for one session. observer may be nil.
func NewSessionStats(instanceID int, startedAt time.Time, observer WindowObserver) *SessionStats {
	return &SessionStats{
		InstanceID:  instanceID,
		StartedAt:   startedAt,
		observer:    observer,
		eventCounts: make(map[telemetry.Kind]int64),
	}
}

// Record folds one classified event into the aggregates.
func (s *SessionStats) Record(ev telemetry.Event) {
	s.mu.Lock()

	s.eventCounts[ev.Kind]++
	s.totalEvents++

	s.lastPosition = ev.Envelope.Position
	if ev.Envelope.Position > s.maxPosition {
		s.maxPosition = ev.Envelope.Position
	}

	var closedWindow time.Duration
	var windowClosed bool
	var becameReady bool
	var startup time.Duration

	switch ev.Kind {
	case telemetry.KindVideoReady:
		if !s.ready {
			s.ready = true
			s.startupLatency = ev.OccurredAt.Sub(s.StartedAt)
			if s.startupLatency < 0 {
				s.startupLatency = 0
			}
			becameReady = true
			startup = s.startupLatency
		}

	case telemetry.KindPlay:
		if !s.playing {
			s.playing = true
			s.playAccrualFrom = ev.OccurredAt
		}

	case telemetry.KindPause:
		s.suspendPlayLocked(ev.OccurredAt)
		s.resumeAfterStall = false

	case telemetry.KindEnded:
		s.suspendPlayLocked(ev.OccurredAt)
		s.resumeAfterStall = false
		s.ended = true

	case telemetry.KindBufferingStart:
		if !s.bufferOpen {
			s.bufferOpen = true
			s.bufferOpenedAt = ev.OccurredAt
			if s.playing {
				s.suspendPlayLocked(ev.OccurredAt)
				s.resumeAfterStall = true
			}
		}

	case telemetry.KindBufferingEnd:
		if s.bufferOpen {
			s.bufferOpen = false
			d := ev.OccurredAt.Sub(s.bufferOpenedAt)
			if d < 0 {
				d = 0
			}
			s.bufferingTotal += d
			s.bufferWindows++
			s.lastWindow = d
			closedWindow = d
			windowClosed = true
			if s.resumeAfterStall {
				s.resumeAfterStall = false
				s.playing = true
				s.playAccrualFrom = ev.OccurredAt
			}
		}

	case telemetry.KindSeeking:
		s.seeks++

	case telemetry.KindQualityChange:
		s.qualitySwitches++
		if level, ok := ev.Extra["level"].(int); ok {
			s.currentLevel = level
		}
		if bitrate, ok := ev.Extra["bitrate"].(int64); ok {
			s.currentBitrate = bitrate
		}

	case telemetry.KindVideoError:
		s.mediaErrors++

	case telemetry.KindError:
		s.engineErrors++
	}

	s.mu.Unlock()

	// Observer callbacks run outside the lock.
	if s.observer != nil {
		if windowClosed {
			s.observer.ObserveBufferingWindow(closedWindow)
		}
		if becameReady {
			s.observer.ObserveStartupLatency(startup)
		}
	}
}

// suspendPlayLocked accrues played time up to now and stops the clock.
// Caller holds mu.
func (s *SessionStats) suspendPlayLocked(at time.Time) {
	if !s.playing {
		return
	}
	d := at.Sub(s.playAccrualFrom)
	if d > 0 {
		s.playedTime += d
	}
	s.playing = false
}

// SessionSummary is a point-in-time snapshot of one session's aggregates.
type SessionSummary struct {
	InstanceID      int
	TotalEvents     int64
	EventCounts     map[telemetry.Kind]int64
	Ready           bool
	StartupLatency  time.Duration
	PlayedTime      time.Duration
	BufferingTotal  time.Duration
	BufferWindows   int64
	LastWindow      time.Duration
	BufferOpen      bool
	QualitySwitches int64
	CurrentLevel    int
	CurrentBitrate  int64
	MediaErrors     int64
	EngineErrors    int64
	Seeks           int64
	LastPosition    float64
	MaxPosition     float64
	Ended           bool
}

// Summary returns a snapshot of the session's aggregates.
func (s *SessionStats) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[telemetry.Kind]int64, len(s.eventCounts))
	for k, v := range s.eventCounts {
		counts[k] = v
	}

	return SessionSummary{
		InstanceID:      s.InstanceID,
		TotalEvents:     s.totalEvents,
		EventCounts:     counts,
		Ready:           s.ready,
		StartupLatency:  s.startupLatency,
		PlayedTime:      s.playedTime,
		BufferingTotal:  s.bufferingTotal,
		BufferWindows:   s.bufferWindows,
		LastWindow:      s.lastWindow,
		BufferOpen:      s.bufferOpen,
		QualitySwitches: s.qualitySwitches,
		CurrentLevel:    s.currentLevel,
		CurrentBitrate:  s.currentBitrate,
		MediaErrors:     s.mediaErrors,
		EngineErrors:    s.engineErrors,
		Seeks:           s.seeks,
		LastPosition:    s.lastPosition,
		MaxPosition:     s.maxPosition,
		Ended:           s.ended,
	}
}

// FinalData renders the aggregates as the payload extras for the terminal
// session event. An open buffering window is closed against endedAt so the
// report never undercounts an in-progress stall.
func (s *SessionStats) FinalData(endedAt time.Time) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffering := s.bufferingTotal
	windows := s.bufferWindows
	if s.bufferOpen {
		if d := endedAt.Sub(s.bufferOpenedAt); d > 0 {
			buffering += d
		}
		windows++
	}

	played := s.playedTime
	if s.playing {
		if d := endedAt.Sub(s.playAccrualFrom); d > 0 {
			played += d
		}
	}

	return map[string]any{
		"total_events":         s.totalEvents,
		"total_buffering_time": buffering.Seconds(),
		"buffering_windows":    windows,
		"total_play_time":      played.Seconds(),
		"startup_latency_ms":   s.startupLatency.Milliseconds(),
		"quality_switches":     s.qualitySwitches,
		"seeks":                s.seeks,
		"media_errors":         s.mediaErrors,
		"engine_errors":        s.engineErrors,
		"max_position":         s.maxPosition,
		"completed":            s.ended,
	}
}

// TotalEvents returns the number of events recorded so far.
func (s *SessionStats) TotalEvents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalEvents
}

// Ended reports whether the session observed natural end of media.
func (s *SessionStats) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
