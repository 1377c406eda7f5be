// Package player runs one headless playback instance: a simulated media
// element bound to a stream, with every notification classified and fed into
// the session telemetry pipeline.
package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/binder"
	"github.com/randomizedcoder/go-hls-qoe/internal/engine"
	"github.com/randomizedcoder/go-hls-qoe/internal/media"
	"github.com/randomizedcoder/go-hls-qoe/internal/session"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// End reasons reported with the terminal session event.
const (
	ReasonCompleted     = "completed"
	ReasonFatalError    = "fatal_error"
	ReasonShutdown      = "shutdown"
	ReasonDurationLimit = "duration_limit"
)

// closeGrace bounds how long a player teardown may spend flushing telemetry
// after its run context is gone.
const closeGrace = 5 * time.Second

// Config configures one player instance.
type Config struct {
	InstanceID int

	// URI is the manifest location handed to the binder unopened.
	URI string

	// AssetDuration is the duration from backend metadata, in seconds. The
	// native fallback path uses it to load the element; the engine path
	// prefers the duration the engine reports.
	AssetDuration float64

	// Duration caps wall-clock playback time. Zero plays to the natural end.
	Duration time.Duration

	// TimeUpdateInterval is the decode-clock tick driving position updates.
	TimeUpdateInterval time.Duration

	PlaybackRate float64
	Volume       float64
	Muted        bool

	// HeartbeatInterval is whole seconds between heartbeats.
	HeartbeatInterval int
	// HeartbeatPolicy selects the gate: "position" or "wallclock".
	HeartbeatPolicy string

	MaxRecoveries int
}

// Player wires an element, an engine, a binder, and a classifier into one
// playback run whose telemetry flows through a session manager.
type Player struct {
	cfg     Config
	element *media.SimulatedElement
	bind    *binder.Binder
	manager *session.Manager
	log     *telemetry.EventLog
	logger  *slog.Logger

	ready chan binder.Readiness
	fatal chan error

	// unsubscribe detaches the classifier from the element at teardown.
	unsubscribe func()

	// openDone closes when the session open issued on readiness has
	// resolved, successfully or not. Nil until then.
	openDone chan struct{}
}

// New assembles a player. eng may be nil to force the native path; log may
// be nil when no event feed is wanted.
func New(cfg Config, eng engine.Engine, manager *session.Manager, log *telemetry.EventLog, logger *slog.Logger) *Player {
	if cfg.TimeUpdateInterval <= 0 {
		cfg.TimeUpdateInterval = 250 * time.Millisecond
	}

	p := &Player{
		cfg:     cfg,
		element: media.NewSimulatedElement(cfg.Volume, cfg.Muted, cfg.PlaybackRate),
		manager: manager,
		log:     log,
		logger:  logger,
		ready:   make(chan binder.Readiness, 1),
		fatal:   make(chan error, 1),
	}

	classifier := telemetry.NewClassifier(p.gate(), p.sink, logger)

	p.bind = binder.New(eng, p.element, cfg.MaxRecoveries, binder.Callbacks{
		OnReady: func(r binder.Readiness) {
			select {
			case p.ready <- r:
			default:
			}
		},
		OnFatalError: func(err error) {
			classifier.HandleEngineError(p.element.State(), err, true)
			select {
			case p.fatal <- err:
			default:
			}
		},
		OnRecoverableError: func(err error) {
			manager.NoteRecovery()
			classifier.HandleEngineError(p.element.State(), err, false)
		},
		OnLevelSwitch: func(level engine.QualityLevel) {
			classifier.HandleLevelSwitch(p.element.State(), level)
		},
	}, logger)

	p.unsubscribe = p.element.Subscribe(classifier.HandleNotification)
	return p
}

// gate builds the heartbeat gate from config.
func (p *Player) gate() telemetry.HeartbeatGate {
	if p.cfg.HeartbeatPolicy == "wallclock" {
		return telemetry.NewWallClockGate(time.Duration(p.cfg.HeartbeatInterval) * time.Second)
	}
	return telemetry.NewPositionGate(p.cfg.HeartbeatInterval)
}

// sink fans classified events into the event feed and the session manager.
func (p *Player) sink(ev telemetry.Event) {
	if p.log != nil {
		p.log.Append(ev)
	}
	p.manager.HandleEvent(ev)
}

// Element exposes the media element for scenario drivers and the TUI.
func (p *Player) Element() *media.SimulatedElement {
	return p.element
}

// Manager exposes the session manager.
func (p *Player) Manager() *session.Manager {
	return p.manager
}

// Run plays the stream to completion and returns the end reason. The session
// opens once the stream becomes playable; a fatal error before that point
// ends the run without a session ever existing. Events classified while the
// open round-trip is in flight queue in the manager and flush in order on
// activation. A failed open disables delivery but playback still runs.
func (p *Player) Run(ctx context.Context) (string, error) {
	if err := p.bind.Bind(ctx, p.cfg.URI); err != nil {
		p.close(ReasonFatalError)
		return ReasonFatalError, err
	}

	// Native playback has no manifest event; the element is loaded from
	// asset metadata and readiness comes back through the binder.
	if p.bind.Native() {
		p.element.LoadMetadata(p.cfg.AssetDuration)
	}

	select {
	case r := <-p.ready:
		if !r.Native {
			p.element.LoadMetadata(r.Duration)
		}
	case err := <-p.fatal:
		p.close(ReasonFatalError)
		return ReasonFatalError, err
	case <-ctx.Done():
		p.close(ReasonShutdown)
		return ReasonShutdown, ctx.Err()
	}

	// The stream is playable; acquire the session identity without blocking
	// playback.
	p.openDone = make(chan struct{})
	go func() {
		defer close(p.openDone)
		if err := p.manager.Open(ctx); err != nil {
			p.logger.Warn("telemetry_disabled",
				"instance_id", p.cfg.InstanceID,
				"error", err,
			)
		}
	}()

	p.element.Play()

	reason := p.playbackLoop(ctx)
	p.close(reason)
	return reason, nil
}

// playbackLoop drives the decode clock until the run ends.
func (p *Player) playbackLoop(ctx context.Context) string {
	ticker := time.NewTicker(p.cfg.TimeUpdateInterval)
	defer ticker.Stop()

	var limit <-chan time.Time
	if p.cfg.Duration > 0 {
		limit = time.After(p.cfg.Duration)
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-p.fatal:
			return ReasonFatalError
		case <-limit:
			return ReasonDurationLimit
		case now := <-ticker.C:
			p.element.Advance(now.Sub(last))
			last = now
			if p.element.Ended() {
				return ReasonCompleted
			}
		}
	}
}

// close tears the player down: listeners detach first so nothing classifies
// after the session has ended, then the session closes under its own
// deadline so a cancelled run context cannot strand the terminal report.
func (p *Player) close(reason string) {
	p.unsubscribe()
	p.bind.Release()

	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()

	// Let an in-flight open resolve so the terminal report carries the
	// session identity instead of racing it.
	if p.openDone != nil {
		select {
		case <-p.openDone:
		case <-ctx.Done():
		}
	}

	if err := p.manager.Close(ctx, reason); err != nil {
		p.logger.Warn("session_close_error",
			"instance_id", p.cfg.InstanceID,
			"reason", reason,
			"error", err,
		)
	}
}
