// Package metrics provides Prometheus metrics for go-hls-qoe.
//
// Metrics cover the playback session lifecycle, the classified event stream,
// QoE aggregates (buffering, startup latency), and delivery-path health.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Panel 1: Run Overview ---
var (
	qoeInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hls_qoe_info",
			Help: "Information about the run (value always 1)",
		},
		[]string{"version", "api_url", "asset_id"},
	)

	qoeTargetSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_target_sessions",
			Help: "Target number of playback sessions",
		},
	)

	qoeActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_active_sessions",
			Help: "Sessions currently in the active state",
		},
	)

	qoeRampProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_ramp_progress",
			Help: "Session ramp-up progress (0.0 to 1.0)",
		},
	)

	qoeRunElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_run_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)
)

// --- Panel 2: Session Lifecycle ---
var (
	qoeSessionsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_sessions_opened_total",
			Help: "Total sessions opened against the backend",
		},
	)

	qoeSessionOpenFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_session_open_failures_total",
			Help: "Session open attempts that failed after retries",
		},
	)

	qoeSessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_qoe_sessions_ended_total",
			Help: "Sessions ended, by teardown reason",
		},
		[]string{"reason"},
	)

	qoeSessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_qoe_session_duration_seconds",
			Help:    "Wall-clock session duration at teardown",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		},
	)
)

// --- Panel 3: Event Stream ---
var (
	qoeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_qoe_events_total",
			Help: "Classified analytics events by kind",
		},
		[]string{"kind"},
	)

	qoeEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_events_dropped_total",
			Help: "Events shed by the full dispatch queue",
		},
	)

	qoePendingDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_pending_dropped_total",
			Help: "Pre-session events evicted from the bounded pending queue",
		},
	)

	qoeDeliveryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_delivery_failures_total",
			Help: "Analytics posts that failed after reaching the backend path",
		},
	)

	qoeEventRate1s = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_event_rate_1s",
			Help: "Classified events per second averaged over the last 1 second",
		},
	)

	qoeEventRate30s = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_event_rate_30s",
			Help: "Classified events per second averaged over the last 30 seconds",
		},
	)

	qoeEventRate60s = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_event_rate_60s",
			Help: "Classified events per second averaged over the last 60 seconds",
		},
	)

	qoeEventRate300s = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_event_rate_300s",
			Help: "Classified events per second averaged over the last 5 minutes",
		},
	)
)

// --- Panel 4: QoE ---
var (
	qoeBufferingSecondsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_buffering_seconds_total",
			Help: "Cumulative buffering time across all sessions",
		},
	)

	qoeBufferingWindowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_buffering_windows_total",
			Help: "Completed buffering windows across all sessions",
		},
	)

	qoeSessionsBuffering = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_sessions_buffering",
			Help: "Sessions currently inside an open buffering window",
		},
	)

	qoeBufferingP50Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_buffering_window_p50_seconds",
			Help: "Buffering window duration 50th percentile",
		},
	)

	qoeBufferingP95Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_buffering_window_p95_seconds",
			Help: "Buffering window duration 95th percentile",
		},
	)

	qoeBufferingP99Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_buffering_window_p99_seconds",
			Help: "Buffering window duration 99th percentile",
		},
	)

	qoeStartupLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_qoe_startup_latency_seconds",
			Help:    "Time from session open to stream ready",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	qoeStartupP50Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_startup_latency_p50_seconds",
			Help: "Startup latency 50th percentile",
		},
	)

	qoeStartupP95Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_qoe_startup_latency_p95_seconds",
			Help: "Startup latency 95th percentile",
		},
	)

	qoeQualitySwitchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_quality_switches_total",
			Help: "Total rendition switches across all sessions",
		},
	)
)

// --- Panel 5: Errors ---
var (
	qoeMediaErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_media_errors_total",
			Help: "Element-level playback errors",
		},
	)

	qoeEngineErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_engine_errors_total",
			Help: "Stream-engine errors, fatal and recovered",
		},
	)

	qoeRecoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_qoe_media_recoveries_total",
			Help: "Engine errors absorbed by in-place recovery",
		},
	)
)

// Collector manages all Prometheus metrics for the run.
type Collector struct {
	targetSessions int
	startTime      time.Time

	// Internal tracking for delta calculations against QoE snapshots
	mu                  sync.Mutex
	prevBufferingSec    float64
	prevBufferWindows   int64
	prevQualitySwitches int64
	prevMediaErrors     int64
	prevEngineErrors    int64

	// Local mirrors for the exit summary
	deliveryFailures int64
	droppedEvents    int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	TargetSessions int
	APIBaseURL     string
	AssetID        string
	Version        string
}

// defaultRegisterOnce guards default-registry registration: the metric
// variables are package level, so a second collector must not re-register.
var defaultRegisterOnce sync.Once

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	defaultRegisterOnce.Do(func() {
		registerAll(prometheus.DefaultRegisterer)
	})
	return newCollector(cfg)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	registerAll(registry)
	return newCollector(cfg)
}

// registerAll registers every metric with the registry.
func registerAll(registry prometheus.Registerer) {
	registry.MustRegister(
		// Panel 1: Run Overview
		qoeInfo,
		qoeTargetSessions,
		qoeActiveSessions,
		qoeRampProgress,
		qoeRunElapsedSeconds,

		// Panel 2: Session Lifecycle
		qoeSessionsOpenedTotal,
		qoeSessionOpenFailuresTotal,
		qoeSessionsEndedTotal,
		qoeSessionDurationSeconds,

		// Panel 3: Event Stream
		qoeEventsTotal,
		qoeEventsDroppedTotal,
		qoePendingDroppedTotal,
		qoeDeliveryFailuresTotal,
		qoeEventRate1s,
		qoeEventRate30s,
		qoeEventRate60s,
		qoeEventRate300s,

		// Panel 4: QoE
		qoeBufferingSecondsTotal,
		qoeBufferingWindowsTotal,
		qoeSessionsBuffering,
		qoeBufferingP50Seconds,
		qoeBufferingP95Seconds,
		qoeBufferingP99Seconds,
		qoeStartupLatencySeconds,
		qoeStartupP50Seconds,
		qoeStartupP95Seconds,
		qoeQualitySwitchesTotal,

		// Panel 5: Errors
		qoeMediaErrorsTotal,
		qoeEngineErrorsTotal,
		qoeRecoveriesTotal,
	)
}

// newCollector builds the collector and seeds the run-info gauges.
func newCollector(cfg CollectorConfig) *Collector {
	c := &Collector{
		targetSessions: cfg.TargetSessions,
		startTime:      time.Now(),
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	qoeInfo.WithLabelValues(version, cfg.APIBaseURL, cfg.AssetID).Set(1)
	qoeTargetSessions.Set(float64(cfg.TargetSessions))

	return c
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// SessionOpened records a successful session open.
func (c *Collector) SessionOpened() {
	qoeSessionsOpenedTotal.Inc()
}

// SessionOpenFailed records an open that failed after retries.
func (c *Collector) SessionOpenFailed() {
	qoeSessionOpenFailuresTotal.Inc()
}

// SessionEnded records a teardown with its reason and wall-clock duration.
func (c *Collector) SessionEnded(reason string, duration time.Duration) {
	qoeSessionsEndedTotal.WithLabelValues(reason).Inc()
	qoeSessionDurationSeconds.Observe(duration.Seconds())
}

// SetActiveSessions updates the active session count.
func (c *Collector) SetActiveSessions(n int) {
	qoeActiveSessions.Set(float64(n))
}

// SetRampProgress updates the ramp-up progress (0.0 to 1.0).
func (c *Collector) SetRampProgress(progress float64) {
	qoeRampProgress.Set(progress)
}

// =============================================================================
// Event Stream
// =============================================================================

// EventClassified counts one classified event by wire kind.
func (c *Collector) EventClassified(kind string) {
	qoeEventsTotal.WithLabelValues(kind).Inc()
}

// EventDropped counts an event shed by the full dispatch queue.
func (c *Collector) EventDropped() {
	qoeEventsDroppedTotal.Inc()

	c.mu.Lock()
	c.droppedEvents++
	c.mu.Unlock()
}

// PendingDropped counts a pre-session event evicted by the pending queue.
func (c *Collector) PendingDropped() {
	qoePendingDroppedTotal.Inc()
}

// DeliveryFailed counts an analytics post that failed.
func (c *Collector) DeliveryFailed() {
	qoeDeliveryFailuresTotal.Inc()

	c.mu.Lock()
	c.deliveryFailures++
	c.mu.Unlock()
}

// SetEventRates updates the rolling event-rate gauges.
func (c *Collector) SetEventRates(r1, r30, r60, r300 float64) {
	qoeEventRate1s.Set(r1)
	qoeEventRate30s.Set(r30)
	qoeEventRate60s.Set(r60)
	qoeEventRate300s.Set(r300)
}

// =============================================================================
// QoE Snapshots
// =============================================================================

// QoEUpdate holds the aggregate snapshot for updating metrics.
// This is a subset of stats.AggregatedQoE to avoid circular imports.
type QoEUpdate struct {
	ActiveSessions        int
	SessionsBuffering     int
	TotalBufferingSeconds float64
	BufferingWindows      int64
	BufferingP50          float64
	BufferingP95          float64
	BufferingP99          float64
	StartupP50            float64
	StartupP95            float64
	QualitySwitches       int64
	MediaErrors           int64
	EngineErrors          int64
}

// RecordQoE updates metrics from an aggregated snapshot. Counters advance by
// delta so repeated snapshots never double-count.
func (c *Collector) RecordQoE(u *QoEUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qoeActiveSessions.Set(float64(u.ActiveSessions))
	qoeSessionsBuffering.Set(float64(u.SessionsBuffering))
	qoeRunElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	if d := u.TotalBufferingSeconds - c.prevBufferingSec; d > 0 {
		qoeBufferingSecondsTotal.Add(d)
	}
	c.prevBufferingSec = u.TotalBufferingSeconds

	if d := u.BufferingWindows - c.prevBufferWindows; d > 0 {
		qoeBufferingWindowsTotal.Add(float64(d))
	}
	c.prevBufferWindows = u.BufferingWindows

	if d := u.QualitySwitches - c.prevQualitySwitches; d > 0 {
		qoeQualitySwitchesTotal.Add(float64(d))
	}
	c.prevQualitySwitches = u.QualitySwitches

	if d := u.MediaErrors - c.prevMediaErrors; d > 0 {
		qoeMediaErrorsTotal.Add(float64(d))
	}
	c.prevMediaErrors = u.MediaErrors

	if d := u.EngineErrors - c.prevEngineErrors; d > 0 {
		qoeEngineErrorsTotal.Add(float64(d))
	}
	c.prevEngineErrors = u.EngineErrors

	qoeBufferingP50Seconds.Set(u.BufferingP50)
	qoeBufferingP95Seconds.Set(u.BufferingP95)
	qoeBufferingP99Seconds.Set(u.BufferingP99)
	qoeStartupP50Seconds.Set(u.StartupP50)
	qoeStartupP95Seconds.Set(u.StartupP95)

	rampProgress := float64(0)
	if c.targetSessions > 0 {
		rampProgress = float64(u.ActiveSessions) / float64(c.targetSessions)
		if rampProgress > 1.0 {
			rampProgress = 1.0
		}
	}
	qoeRampProgress.Set(rampProgress)
}

// ObserveStartupLatency records one startup latency observation.
func (c *Collector) ObserveStartupLatency(d time.Duration) {
	qoeStartupLatencySeconds.Observe(d.Seconds())
}

// MediaRecovered counts an engine error absorbed by in-place recovery.
func (c *Collector) MediaRecovered() {
	qoeRecoveriesTotal.Inc()
}

// =============================================================================
// Exit Summary Accessors
// =============================================================================

// DeliveryFailures returns how many analytics posts failed.
func (c *Collector) DeliveryFailures() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveryFailures
}

// DroppedEvents returns how many events the dispatch queue shed.
func (c *Collector) DroppedEvents() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedEvents
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}
