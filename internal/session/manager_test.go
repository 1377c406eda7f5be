package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
	"github.com/randomizedcoder/go-hls-qoe/internal/logging"
	"github.com/randomizedcoder/go-hls-qoe/internal/metrics"
	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

func newTestManager(t *testing.T, backend *fakeBackend, cfg ManagerConfig) *Manager {
	t.Helper()

	client := api.New(backend.srv.URL, "", 2*time.Second, logging.NewNop())
	if cfg.AssetID == "" {
		cfg.AssetID = "asset-1"
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = "viewer-1"
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2.0,
			JitterPct:  0,
		}
	}
	return NewManager(cfg, client, stats.NewRegistry(), nil, logging.NewNop())
}

func TestManager_OpenActivates(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	if m.Status() != StatusUninitialized {
		t.Fatalf("initial status = %s, want uninitialized", m.Status())
	}

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if m.Status() != StatusActive {
		t.Errorf("status = %s, want active", m.Status())
	}
	if got := m.SessionID(); got != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", got)
	}
	if m.Stats() == nil {
		t.Error("Stats() = nil after open")
	}

	if err := m.Close(ctx, "shutdown"); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestManager_OpenRetriesThenSucceeds(t *testing.T) {
	backend := newFakeBackend(t)
	backend.setCreateFails(2)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1, OpenRetries: 3})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v, want success after retries", err)
	}
	if m.Status() != StatusActive {
		t.Errorf("status = %s, want active", m.Status())
	}

	_ = m.Close(ctx, "shutdown")
}

func TestManager_OpenExhaustedDisablesDelivery(t *testing.T) {
	backend := newFakeBackend(t)
	backend.setCreateFails(10)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1, OpenRetries: 1})

	ctx := context.Background()

	// Queue something before the open so the failure path has state to drop.
	m.HandleEvent(testEvent(telemetry.KindPlay, 0))

	if err := m.Open(ctx); err == nil {
		t.Fatal("Open() = nil, want error after exhausted retries")
	}
	if m.Status() != StatusUninitialized {
		t.Errorf("status = %s, want uninitialized after failed open", m.Status())
	}

	// Delivery is permanently disabled: events vanish without queueing.
	m.HandleEvent(testEvent(telemetry.KindHeartbeat, 10))
	m.mu.Lock()
	queued := len(m.pending)
	m.mu.Unlock()
	if queued != 0 {
		t.Errorf("pending = %d events after disable, want 0", queued)
	}

	if err := m.Close(ctx, "shutdown"); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if n := backend.countByType("session_end"); n != 0 {
		t.Errorf("session_end count = %d, want 0 for a session that never opened", n)
	}
}

func TestManager_PendingFlushedInOrder(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	m.HandleEvent(testEvent(telemetry.KindVideoReady, 0))
	m.HandleEvent(testEvent(telemetry.KindPlay, 0))
	m.HandleEvent(testEvent(telemetry.KindHeartbeat, 10))

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Close(ctx, "shutdown"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := backend.recorded()
	want := []string{"video_ready", "play", "heartbeat", "session_end"}
	if len(events) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.EventType != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, ev.EventType, want[i])
		}
	}
}

func TestManager_PendingOverflowEvictsOldest(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1, PendingSize: 2})

	m.HandleEvent(testEvent(telemetry.KindVideoReady, 0))
	m.HandleEvent(testEvent(telemetry.KindPlay, 0))
	m.HandleEvent(testEvent(telemetry.KindHeartbeat, 10)) // evicts video_ready

	if got := m.PendingDropped(); got != 1 {
		t.Errorf("PendingDropped = %d, want 1", got)
	}

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Close(ctx, "shutdown"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := backend.recorded()
	want := []string{"play", "heartbeat", "session_end"}
	if len(events) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.EventType != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, ev.EventType, want[i])
		}
	}
}

func TestManager_EventsAfterCloseDropped(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Close(ctx, "completed"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	before := len(backend.recorded())
	m.HandleEvent(testEvent(telemetry.KindHeartbeat, 30))
	if after := len(backend.recorded()); after != before {
		t.Errorf("events after close reached backend: %d -> %d", before, after)
	}
}

func TestManager_CloseReportsExactlyOnce(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Race several teardown paths into Close. Only the first should report.
	reasons := []string{"completed", "fatal_error", "shutdown", "duration_limit"}
	var wg sync.WaitGroup
	for _, reason := range reasons {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			_ = m.Close(ctx, r)
		}(reason)
	}
	wg.Wait()

	if n := backend.countByType("session_end"); n != 1 {
		t.Errorf("session_end count = %d, want exactly 1", n)
	}
	if m.Status() != StatusEnded {
		t.Errorf("status = %s, want ended", m.Status())
	}
}

func TestManager_SessionEndPayload(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	base := time.Unix(1700000000, 0)
	play := telemetry.Event{Kind: telemetry.KindPlay, OccurredAt: base,
		Envelope: telemetry.Envelope{Position: 0, Duration: 120}}
	pause := telemetry.Event{Kind: telemetry.KindPause, OccurredAt: base.Add(10 * time.Second),
		Envelope: telemetry.Envelope{Position: 10, Duration: 120}}
	m.HandleEvent(play)
	m.HandleEvent(pause)

	if err := m.Close(ctx, "completed"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var end *api.EventRecord
	for _, ev := range backend.recorded() {
		if ev.EventType == "session_end" {
			ev := ev
			end = &ev
		}
	}
	if end == nil {
		t.Fatal("no session_end recorded")
	}

	if got := end.Data["reason"]; got != "completed" {
		t.Errorf("reason = %v, want completed", got)
	}
	// JSON round-trips numbers as float64.
	if got, ok := end.Data["total_events"].(float64); !ok || got != 2 {
		t.Errorf("total_events = %v, want 2", end.Data["total_events"])
	}
	if got, ok := end.Data["total_play_time"].(float64); !ok || got != 10 {
		t.Errorf("total_play_time = %v, want 10", end.Data["total_play_time"])
	}
}

func TestManager_EndReportFailureSurfaced(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	backend.setTrackFails(1)
	err := m.Close(ctx, "shutdown")
	if err == nil {
		t.Fatal("Close() = nil, want error when the end report fails")
	}

	// Later calls return the first outcome without re-reporting.
	if again := m.Close(ctx, "completed"); again != err {
		t.Errorf("second Close() = %v, want first outcome %v", again, err)
	}
	if n := backend.countByType("session_end"); n != 0 {
		t.Errorf("session_end count = %d, want 0 after failed report", n)
	}
}

func TestManager_CloseDuringOpenStaysEnded(t *testing.T) {
	backend := newFakeBackend(t)
	backend.setCreateDelay(60 * time.Millisecond)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	openErr := make(chan error, 1)
	go func() { openErr <- m.Open(ctx) }()

	// Let the create round-trip get in flight, then end the session.
	time.Sleep(20 * time.Millisecond)
	if err := m.Close(ctx, "shutdown"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := <-openErr; err == nil {
		t.Error("Open() = nil, want error when close landed mid-open")
	}
	if m.Status() != StatusEnded {
		t.Errorf("status = %s, want ended after close raced the open", m.Status())
	}

	// The discarded identity must never deliver anything, now or later.
	m.HandleEvent(testEvent(telemetry.KindHeartbeat, 10))
	if err := m.Close(ctx, "completed"); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if m.Status() != StatusEnded {
		t.Errorf("status = %s, want ended to stay absorbing", m.Status())
	}
	if got := len(backend.recorded()); got != 0 {
		t.Errorf("backend recorded %d events, want 0", got)
	}
}

func TestManager_StartupLatencyExported(t *testing.T) {
	backend := newFakeBackend(t)
	promReg := prometheus.NewRegistry()
	coll := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{TargetSessions: 1}, promReg)

	client := api.New(backend.srv.URL, "", 2*time.Second, logging.NewNop())
	m := NewManager(ManagerConfig{
		InstanceID: 1,
		AssetID:    "asset-1",
		ViewerID:   "viewer-1",
		Backoff: BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2.0,
		},
	}, client, stats.NewRegistry(), coll, logging.NewNop())

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	before := startupSampleCount(t, promReg)
	m.HandleEvent(testEvent(telemetry.KindVideoReady, 0))
	after := startupSampleCount(t, promReg)
	if after-before != 1 {
		t.Errorf("startup latency samples delta = %d, want 1", after-before)
	}

	_ = m.Close(ctx, "shutdown")
}

// startupSampleCount reads the startup latency histogram's sample count.
func startupSampleCount(t *testing.T, g prometheus.Gatherer) uint64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "hls_qoe_startup_latency_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if h := metric.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func TestManager_OpenTwiceRejected(t *testing.T) {
	backend := newFakeBackend(t)
	m := newTestManager(t, backend, ManagerConfig{InstanceID: 1})

	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Open(ctx); err == nil {
		t.Error("second Open() = nil, want error")
	}

	_ = m.Close(ctx, "shutdown")
}
