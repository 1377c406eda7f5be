package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// drainTimeout bounds how long a closing dispatcher keeps posting queued
// events before giving up.
const drainTimeout = 3 * time.Second

// Dispatcher delivers classified events to the backend, lossy by design.
//
// Telemetry must never stall playback: Enqueue is non-blocking and drops
// when the buffer is full, and delivery failures are counted and logged but
// never propagated. The consumer goroutine posts events one at a time in
// queue order.
type Dispatcher struct {
	client    *api.Client
	sessionID string
	logger    *slog.Logger

	// closeMu guards the events channel close against concurrent Enqueue.
	closeMu   sync.RWMutex
	closed    bool
	events    chan telemetry.Event
	closeOnce sync.Once
	done      chan struct{}

	// Delivery health (atomic for concurrent access)
	enqueued  atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher creates a dispatcher for one session's event stream.
func NewDispatcher(client *api.Client, sessionID string, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Dispatcher{
		client:    client,
		sessionID: sessionID,
		logger:    logger,
		events:    make(chan telemetry.Event, bufferSize),
		done:      make(chan struct{}),
	}
}

// Enqueue queues an event for delivery. Returns true if queued, false if
// dropped (buffer full or dispatcher closed). Never blocks.
func (d *Dispatcher) Enqueue(ev telemetry.Event) bool {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.events <- ev:
		d.enqueued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Run consumes and posts events until the queue is closed and drained or
// the context is cancelled. Must run in a dedicated goroutine; Close()
// signals it to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			// Count whatever remains as dropped so the totals reconcile.
			for len(d.events) > 0 {
				<-d.events
				d.dropped.Add(1)
			}
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.post(ctx, ev)
		}
	}
}

// post delivers one event. Failures are absorbed.
func (d *Dispatcher) post(ctx context.Context, ev telemetry.Event) {
	record := api.EventRecord{
		SessionID: d.sessionID,
		EventType: ev.Kind.String(),
		Data:      ev.Data(),
	}

	if err := d.client.TrackEvent(ctx, record); err != nil {
		d.failed.Add(1)
		d.logger.Warn("event_delivery_failed",
			"session_id", d.sessionID,
			"event_type", record.EventType,
			"error", err,
		)
		return
	}

	d.delivered.Add(1)
}

// Close stops intake and waits for the queue to drain, up to drainTimeout.
// Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closeMu.Lock()
		d.closed = true
		close(d.events)
		d.closeMu.Unlock()
	})

	select {
	case <-d.done:
	case <-time.After(drainTimeout):
		d.logger.Warn("dispatcher_drain_timeout", "session_id", d.sessionID)
	}
}

// Stats returns delivery health counters.
func (d *Dispatcher) Stats() (enqueued, dropped, delivered, failed int64) {
	return d.enqueued.Load(), d.dropped.Load(), d.delivered.Load(), d.failed.Load()
}
