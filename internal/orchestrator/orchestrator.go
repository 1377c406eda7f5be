package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
	"github.com/randomizedcoder/go-hls-qoe/internal/config"
	"github.com/randomizedcoder/go-hls-qoe/internal/engine"
	"github.com/randomizedcoder/go-hls-qoe/internal/metrics"
	"github.com/randomizedcoder/go-hls-qoe/internal/player"
	"github.com/randomizedcoder/go-hls-qoe/internal/preflight"
	"github.com/randomizedcoder/go-hls-qoe/internal/session"
	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
	"github.com/randomizedcoder/go-hls-qoe/internal/timeseries"
)

// sampleInterval is how often aggregates and event rates are refreshed.
const sampleInterval = time.Second

// Orchestrator coordinates all components for a QoE measurement run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	client        *api.Client
	registry      *stats.Registry
	playerManager *PlayerManager
	rampScheduler *RampScheduler
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	eventLog      *telemetry.EventLog
	rateTracker   *timeseries.EventRateTracker

	asset     *api.Asset
	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	client := api.New(cfg.APIBaseURL, cfg.APIKey, cfg.Timeout, logger)

	collector := metrics.NewCollector(metrics.CollectorConfig{
		TargetSessions: cfg.Sessions,
		APIBaseURL:     cfg.APIBaseURL,
		AssetID:        cfg.AssetID,
	})

	return &Orchestrator{
		config:        cfg,
		logger:        logger,
		client:        client,
		registry:      stats.NewRegistry(),
		playerManager: NewPlayerManager(logger),
		rampScheduler: NewRampScheduler(cfg.RampRate, cfg.RampJitter),
		metrics:       collector,
		metricsServer: metrics.NewServer(cfg.MetricsAddr, logger),
		eventLog:      telemetry.NewEventLog(),
		rateTracker:   timeseries.NewEventRateTracker(),
	}
}

// Run executes the measurement run. It blocks until all sessions end,
// a signal arrives, or the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, o.client, o.config.AssetID, o.config.Sessions)
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
		}

		asset, err := preflight.WaitAssetReady(ctx, o.client, o.config.AssetID,
			o.config.AssetPollInterval, o.config.AssetPollTimeout)
		if err != nil {
			return err
		}
		o.asset = asset
	} else {
		// Best effort: the duration hint improves the run but is not required.
		if asset, err := o.client.GetAsset(ctx, o.config.AssetID); err == nil {
			o.asset = asset
		} else {
			o.logger.Warn("asset_metadata_unavailable", "error", err)
			o.asset = &api.Asset{ID: o.config.AssetID}
		}
	}

	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	o.logger.Info("ramp_starting",
		"sessions", o.config.Sessions,
		"rate", o.rampScheduler.Rate(),
		"estimated_duration", o.rampScheduler.EstimatedRampDuration(o.config.Sessions).String(),
	)

	allDone := make(chan struct{})
	go func() {
		defer close(allDone)
		o.rampUp(ctx)
		o.playerManager.Wait()
	}()

	go o.sampleLoop(ctx)

	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-allDone:
		o.logger.Info("all_sessions_ended")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := o.playerManager.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}
	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	fmt.Print(o.ExitSummary())
	return nil
}

// rampUp starts players at the configured rate.
func (o *Orchestrator) rampUp(ctx context.Context) {
	for i := 0; i < o.config.Sessions; i++ {
		select {
		case <-ctx.Done():
			o.logger.Info("ramp_cancelled", "started", i, "target", o.config.Sessions)
			return
		default:
		}

		// Don't wait for the first session.
		if i > 0 {
			if err := o.rampScheduler.Schedule(ctx, i); err != nil {
				return
			}
		}

		o.playerManager.StartPlayer(ctx, i, o.buildPlayer(i))
		o.metrics.SetRampProgress(float64(i+1) / float64(o.config.Sessions))

		if (i+1)%10 == 0 || i == o.config.Sessions-1 {
			o.logger.Info("ramp_progress",
				"started", i+1,
				"target", o.config.Sessions,
				"active", o.playerManager.ActiveCount(),
			)
		}
	}

	o.logger.Info("ramp_complete",
		"sessions", o.config.Sessions,
		"active", o.playerManager.ActiveCount(),
	)
}

// buildPlayer assembles one playback instance.
func (o *Orchestrator) buildPlayer(instanceID int) *player.Player {
	viewerID := o.config.ViewerID
	if viewerID == "" {
		viewerID = "anonymous-" + uuid.NewString()
	}

	manager := session.NewManager(session.ManagerConfig{
		InstanceID:     instanceID,
		AssetID:        o.config.AssetID,
		ViewerID:       viewerID,
		PendingSize:    o.config.PendingQueueSize,
		DispatchBuffer: o.config.DispatchBuffer,
		OpenRetries:    o.config.OpenRetries,
		Backoff: session.BackoffConfig{
			Initial:    o.config.BackoffInitial,
			Max:        o.config.BackoffMax,
			Multiplier: o.config.BackoffMultiply,
			JitterPct:  0.4,
		},
		BackoffSeed: o.startTime.UnixNano(),
	}, o.client, o.registry, o.metrics, o.logger)

	return player.New(player.Config{
		InstanceID:         instanceID,
		URI:                o.client.PlaybackURL(o.config.AssetID),
		AssetDuration:      o.asset.Duration,
		Duration:           o.config.Duration,
		TimeUpdateInterval: o.config.TimeUpdateInterval,
		PlaybackRate:       o.config.PlaybackRate,
		Volume:             o.config.Volume,
		Muted:              o.config.Muted,
		HeartbeatInterval:  o.config.HeartbeatInterval,
		HeartbeatPolicy:    o.config.HeartbeatPolicy,
		MaxRecoveries:      o.config.MaxRecoveries,
	}, o.buildEngine(), manager, o.eventLog, o.logger)
}

// buildEngine creates the configured engine flavor.
func (o *Orchestrator) buildEngine() engine.Engine {
	switch o.config.Engine {
	case "scripted":
		duration := o.asset.Duration
		if duration <= 0 {
			duration = 60
		}
		return engine.NewScriptedEngine(engine.ScriptedConfig{Duration: duration})
	default:
		return engine.NewProbeEngine(o.config.Timeout, o.asset.Duration, o.logger)
	}
}

// sampleLoop refreshes event rates and QoE aggregates once per second.
func (o *Orchestrator) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	var lastTotal int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := o.eventLog.Total()
			o.rateTracker.Add(total - lastTotal)
			lastTotal = total
			o.rateTracker.RecordSample()

			rates := o.rateTracker.GetStats()
			o.metrics.SetEventRates(rates.Rate1s, rates.Rate30s, rates.Rate60s, rates.Rate300s)
			o.metrics.SetActiveSessions(o.playerManager.ActiveCount())

			agg := o.registry.Aggregate()
			o.metrics.RecordQoE(&metrics.QoEUpdate{
				ActiveSessions:        o.playerManager.ActiveCount(),
				SessionsBuffering:     agg.SessionsBuffering,
				TotalBufferingSeconds: agg.TotalBufferingSeconds,
				BufferingWindows:      agg.BufferingWindows,
				BufferingP50:          agg.BufferingP50,
				BufferingP95:          agg.BufferingP95,
				BufferingP99:          agg.BufferingP99,
				StartupP50:            agg.StartupP50,
				StartupP95:            agg.StartupP95,
				QualitySwitches:       agg.QualitySwitches,
				MediaErrors:           agg.MediaErrors,
				EngineErrors:          agg.EngineErrors,
			})
		}
	}
}

// ExitSummary renders the end-of-run report.
func (o *Orchestrator) ExitSummary() string {
	agg := o.registry.Aggregate()
	return stats.FormatExitSummary(agg, stats.SummaryConfig{
		TargetSessions:   o.config.Sessions,
		Duration:         time.Since(o.startTime),
		MetricsAddr:      o.config.MetricsAddr,
		DeliveryFailures: o.metrics.DeliveryFailures(),
		DroppedEvents:    o.metrics.DroppedEvents(),
	})
}

// PlayerManager returns the player manager for external access.
func (o *Orchestrator) PlayerManager() *PlayerManager {
	return o.playerManager
}

// Registry returns the QoE stats registry.
func (o *Orchestrator) Registry() *stats.Registry {
	return o.registry
}

// EventLog returns the shared recent-event feed.
func (o *Orchestrator) EventLog() *telemetry.EventLog {
	return o.eventLog
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Asset returns the resolved asset metadata, nil before Run.
func (o *Orchestrator) Asset() *api.Asset {
	return o.asset
}

// StartTime returns when Run began.
func (o *Orchestrator) StartTime() time.Time {
	return o.startTime
}
