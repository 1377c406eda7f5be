package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
	"github.com/randomizedcoder/go-hls-qoe/internal/metrics"
	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// DefaultPendingSize bounds the pre-session event queue.
const DefaultPendingSize = 64

// ManagerConfig configures one session manager.
type ManagerConfig struct {
	InstanceID int
	AssetID    string
	ViewerID   string

	// PendingSize bounds the queue of events classified before the session
	// identity exists. Overflow evicts the oldest entry.
	PendingSize int

	// DispatchBuffer is the delivery queue depth once the session is active.
	DispatchBuffer int

	// OpenRetries is how many times a failed session create is retried.
	OpenRetries int

	Backoff     BackoffConfig
	BackoffSeed int64
}

// Manager owns the session lifecycle for one playback instance.
//
// Events flow in through HandleEvent from the classifier. Before the
// session is active they are held in a bounded pending queue; once active
// they are folded into the QoE aggregates and queued for async delivery.
// Close reports the terminal event exactly once, with the final aggregates,
// regardless of how many paths race into it.
type Manager struct {
	cfg      ManagerConfig
	client   *api.Client
	registry *stats.Registry
	coll     *metrics.Collector
	logger   *slog.Logger

	mu       sync.Mutex
	status   Status
	disabled bool
	session  *api.Session
	openedAt time.Time

	pending        []telemetry.Event
	pendingDropped int64

	sessionStats *stats.SessionStats
	dispatcher   *Dispatcher

	endOnce   sync.Once
	endReason string
	endErr    error
}

// windowFanout forwards completed measurement windows to the aggregation
// digests and mirrors startup latency into the Prometheus histogram.
type windowFanout struct {
	registry *stats.Registry
	coll     *metrics.Collector
}

func (w windowFanout) ObserveBufferingWindow(d time.Duration) {
	w.registry.ObserveBufferingWindow(d)
}

func (w windowFanout) ObserveStartupLatency(d time.Duration) {
	w.registry.ObserveStartupLatency(d)
	if w.coll != nil {
		w.coll.ObserveStartupLatency(d)
	}
}

// NewManager creates a manager in the uninitialized state. coll may be nil.
func NewManager(cfg ManagerConfig, client *api.Client, registry *stats.Registry, coll *metrics.Collector, logger *slog.Logger) *Manager {
	if cfg.PendingSize < 1 {
		cfg.PendingSize = DefaultPendingSize
	}
	return &Manager{
		cfg:      cfg,
		client:   client,
		registry: registry,
		coll:     coll,
		logger:   logger,
		status:   StatusUninitialized,
	}
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID returns the backend identity, empty until active.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

// Stats returns the session's QoE aggregates, nil until active.
func (m *Manager) Stats() *stats.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionStats
}

// Open acquires a session identity from the backend, retrying failed
// attempts with backoff. On success the manager becomes active and flushes
// the pending queue into the delivery path. On exhausted retries the
// manager disables delivery permanently; playback is unaffected.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if !m.status.CanTransition(StatusOpening) {
		status := m.status
		m.mu.Unlock()
		return fmt.Errorf("session open from %s", status)
	}
	m.status = StatusOpening
	m.mu.Unlock()

	backoff := NewBackoff(m.cfg.InstanceID, m.cfg.BackoffSeed, m.cfg.Backoff)
	attempts := m.cfg.OpenRetries + 1

	var sess *api.Session
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		sess, err = m.client.CreateSession(ctx, m.cfg.AssetID, m.cfg.ViewerID)
		if err == nil {
			break
		}

		m.logger.Warn("session_open_failed",
			"instance_id", m.cfg.InstanceID,
			"attempt", attempt,
			"error", err,
		)

		if attempt == attempts || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(backoff.Next()):
		}
	}

	if err != nil {
		m.mu.Lock()
		// A Close that raced the failing open already moved the manager to
		// ended; that state stands.
		if m.status == StatusOpening {
			m.status = StatusUninitialized
		}
		m.disabled = true
		m.pending = nil
		m.mu.Unlock()

		if m.coll != nil {
			m.coll.SessionOpenFailed()
		}
		return fmt.Errorf("session open: %w", err)
	}

	now := time.Now()
	dispatcher := NewDispatcher(m.client, sess.ID, m.cfg.DispatchBuffer, m.logger)

	m.mu.Lock()
	if m.status != StatusOpening {
		// Close landed while the create round-trip was in flight. Ended is
		// absorbing: the acquired identity is discarded without activating,
		// its dispatcher never started, its stats never registered.
		status := m.status
		m.mu.Unlock()
		m.logger.Info("session_open_discarded",
			"instance_id", m.cfg.InstanceID,
			"session_id", sess.ID,
			"status", status.String(),
		)
		return fmt.Errorf("session open: manager %s during open", status)
	}
	sessionStats := stats.NewSessionStats(m.cfg.InstanceID, now, windowFanout{m.registry, m.coll})
	m.registry.Add(sessionStats)
	m.session = sess
	m.openedAt = now
	m.sessionStats = sessionStats
	m.dispatcher = dispatcher
	m.status = StatusActive
	flush := m.pending
	m.pending = nil
	m.mu.Unlock()

	go dispatcher.Run(ctx)

	// Replay queued pre-session events in arrival order.
	for _, ev := range flush {
		m.deliver(ev)
	}

	if m.coll != nil {
		m.coll.SessionOpened()
	}
	m.logger.Info("session_opened",
		"instance_id", m.cfg.InstanceID,
		"session_id", sess.ID,
		"queued_events", len(flush),
	)
	return nil
}

// HandleEvent routes one classified event by lifecycle state: dropped after
// end, queued before active, aggregated and dispatched while active.
// Safe for concurrent use with Close.
func (m *Manager) HandleEvent(ev telemetry.Event) {
	m.mu.Lock()

	switch {
	case m.status == StatusEnded:
		m.mu.Unlock()
		return

	case m.disabled:
		m.mu.Unlock()
		return

	case m.status != StatusActive:
		// Queue until the identity exists, evicting the oldest on overflow.
		if len(m.pending) >= m.cfg.PendingSize {
			m.pending = m.pending[1:]
			m.pendingDropped++
			if m.coll != nil {
				m.coll.PendingDropped()
			}
		}
		m.pending = append(m.pending, ev)
		m.mu.Unlock()
		return
	}

	m.mu.Unlock()
	m.deliver(ev)
}

// deliver folds an event into the aggregates and queues it for delivery.
func (m *Manager) deliver(ev telemetry.Event) {
	m.sessionStats.Record(ev)

	if m.coll != nil {
		m.coll.EventClassified(ev.Kind.String())
		if !m.dispatcher.Enqueue(ev) {
			m.coll.EventDropped()
		}
		return
	}
	m.dispatcher.Enqueue(ev)
}

// Close ends the session exactly once. The dispatcher is drained, then the
// terminal event with the final aggregates is posted synchronously. Later
// calls return the first call's outcome.
func (m *Manager) Close(ctx context.Context, reason string) error {
	m.endOnce.Do(func() {
		m.closeLocked(ctx, reason)
	})
	return m.endErr
}

// closeLocked performs the single teardown. Runs inside endOnce.
func (m *Manager) closeLocked(ctx context.Context, reason string) {
	m.mu.Lock()
	wasActive := m.status == StatusActive
	m.status = StatusEnded
	m.endReason = reason
	dispatcher := m.dispatcher
	sess := m.session
	sessionStats := m.sessionStats
	openedAt := m.openedAt
	m.pending = nil
	m.mu.Unlock()

	if !wasActive {
		// Nothing was ever reported for this session; nothing to end.
		m.logger.Debug("session_closed_inactive",
			"instance_id", m.cfg.InstanceID,
			"reason", reason,
		)
		return
	}

	// Flush queued events before the terminal report so the backend sees
	// them in order.
	dispatcher.Close()

	endedAt := time.Now()
	data := sessionStats.FinalData(endedAt)
	data["reason"] = reason

	record := api.EventRecord{
		SessionID: sess.ID,
		EventType: telemetry.KindSessionEnd.String(),
		Data:      data,
	}
	if err := m.client.TrackEvent(ctx, record); err != nil {
		m.endErr = fmt.Errorf("session end report: %w", err)
		if m.coll != nil {
			m.coll.DeliveryFailed()
		}
		m.logger.Warn("session_end_report_failed",
			"instance_id", m.cfg.InstanceID,
			"session_id", sess.ID,
			"error", err,
		)
	}

	if m.coll != nil {
		m.coll.SessionEnded(reason, endedAt.Sub(openedAt))
	}

	_, dropped, delivered, failed := dispatcher.Stats()
	m.logger.Info("session_ended",
		"instance_id", m.cfg.InstanceID,
		"session_id", sess.ID,
		"reason", reason,
		"delivered", delivered,
		"dropped", dropped,
		"failed", failed,
	)
}

// NoteRecovery counts an engine error absorbed by in-place recovery.
func (m *Manager) NoteRecovery() {
	if m.coll != nil {
		m.coll.MediaRecovered()
	}
}

// PendingDropped returns how many pre-session events were evicted.
func (m *Manager) PendingDropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingDropped
}

// Dispatcher returns the delivery queue, nil until active.
func (m *Manager) Dispatcher() *Dispatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatcher
}
