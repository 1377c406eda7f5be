// Package binder attaches a stream to a media element and normalizes the
// readiness and failure signals the session layer consumes.
//
// The binder picks the playback strategy: the adaptive engine when it is
// supported, otherwise native playback through the element itself. Whichever
// path is taken, the consumer sees exactly one readiness signal or exactly
// one fatal error, never both, never twice.
package binder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randomizedcoder/go-hls-qoe/internal/engine"
	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// Readiness describes a stream that became playable.
type Readiness struct {
	Duration float64
	Levels   []engine.QualityLevel

	// Native is true when the adaptive engine was unsupported and the
	// element loaded the source directly.
	Native bool
}

// Callbacks are the signals the binder raises. All are optional; nil
// callbacks are skipped. Callbacks may arrive on the engine's goroutine and
// must not block.
type Callbacks struct {
	// OnReady fires exactly once, when the stream becomes playable.
	OnReady func(Readiness)

	// OnFatalError fires exactly once, when playback cannot proceed.
	OnFatalError func(error)

	// OnRecoverableError fires for engine errors that were absorbed by
	// in-place recovery.
	OnRecoverableError func(error)

	// OnLevelSwitch fires on every rendition change.
	OnLevelSwitch func(engine.QualityLevel)
}

// Binder owns the engine/element attachment for one playback attempt.
type Binder struct {
	eng           engine.Engine
	el            media.Element
	cb            Callbacks
	maxRecoveries int
	logger        *slog.Logger

	readyOnce   sync.Once
	fatalOnce   sync.Once
	releaseOnce sync.Once

	mu         sync.Mutex
	bound      bool
	native     bool
	recoveries int
	unsub      func()
}

// New creates a binder. eng may be nil to force the native path.
// maxRecoveries bounds how many non-fatal engine errors are recovered in
// place before the next one escalates to fatal.
func New(eng engine.Engine, el media.Element, maxRecoveries int, cb Callbacks, logger *slog.Logger) *Binder {
	return &Binder{
		eng:           eng,
		el:            el,
		cb:            cb,
		maxRecoveries: maxRecoveries,
		logger:        logger,
	}
}

// Bind selects the playback strategy and starts loading the stream.
// It may be called once per binder.
func (b *Binder) Bind(ctx context.Context, uri string) error {
	b.mu.Lock()
	if b.bound {
		b.mu.Unlock()
		return fmt.Errorf("binder: already bound")
	}
	b.bound = true
	useEngine := b.eng != nil && b.eng.IsSupported()
	b.native = !useEngine
	b.mu.Unlock()

	if useEngine {
		return b.bindEngine(ctx, uri)
	}
	return b.bindNative(uri)
}

// Native reports whether the native fallback path was selected.
func (b *Binder) Native() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native
}

// bindEngine wires engine events and starts the adaptive load.
func (b *Binder) bindEngine(ctx context.Context, uri string) error {
	b.eng.On(engine.EventManifestParsed, func(ev engine.Event) {
		b.signalReady(Readiness{Duration: ev.Duration, Levels: ev.Levels})
	})

	b.eng.On(engine.EventError, func(ev engine.Event) {
		b.handleEngineError(ev)
	})

	b.eng.On(engine.EventLevelSwitched, func(ev engine.Event) {
		if b.cb.OnLevelSwitch != nil {
			b.cb.OnLevelSwitch(ev.Level)
		}
	})

	if err := b.eng.AttachMedia(b.el); err != nil {
		return fmt.Errorf("binder: attach media: %w", err)
	}
	if err := b.eng.LoadSource(ctx, uri); err != nil {
		return fmt.Errorf("binder: load source: %w", err)
	}

	b.logger.Debug("stream_bound", "strategy", "engine", "uri", uri)
	return nil
}

// bindNative points the element at the source directly and waits for its
// metadata notification.
func (b *Binder) bindNative(uri string) error {
	unsub := b.el.Subscribe(func(n media.Notification) {
		switch n.Kind {
		case media.NoteLoadedMetadata:
			b.signalReady(Readiness{Duration: n.State.Duration, Native: true})
		case media.NoteError:
			// No engine, no recovery capability.
			b.signalFatal(n.Err)
		}
	})

	b.mu.Lock()
	b.unsub = unsub
	b.mu.Unlock()

	b.el.SetSource(uri)
	b.logger.Debug("stream_bound", "strategy", "native", "uri", uri)
	return nil
}

// handleEngineError recovers non-fatal errors in place while the budget
// lasts, then escalates.
func (b *Binder) handleEngineError(ev engine.Event) {
	if ev.Fatal {
		b.signalFatal(ev.Err)
		return
	}

	rec, ok := b.eng.(engine.Recoverer)
	if !ok {
		b.signalFatal(fmt.Errorf("unrecoverable engine error: %w", ev.Err))
		return
	}

	b.mu.Lock()
	if b.recoveries >= b.maxRecoveries {
		b.mu.Unlock()
		b.signalFatal(fmt.Errorf("recovery budget exhausted: %w", ev.Err))
		return
	}
	b.recoveries++
	attempt := b.recoveries
	b.mu.Unlock()

	if err := rec.RecoverMediaError(); err != nil {
		b.signalFatal(fmt.Errorf("media error recovery failed: %w", err))
		return
	}

	b.logger.Warn("media_error_recovered", "attempt", attempt, "error", ev.Err)
	if b.cb.OnRecoverableError != nil {
		b.cb.OnRecoverableError(ev.Err)
	}
}

// signalReady delivers the readiness callback exactly once.
func (b *Binder) signalReady(r Readiness) {
	b.readyOnce.Do(func() {
		if b.cb.OnReady != nil {
			b.cb.OnReady(r)
		}
	})
}

// signalFatal delivers the fatal callback exactly once.
func (b *Binder) signalFatal(err error) {
	b.fatalOnce.Do(func() {
		if b.cb.OnFatalError != nil {
			b.cb.OnFatalError(err)
		}
	})
}

// Release detaches from the element and destroys the engine. Idempotent and
// safe to call concurrently with engine events.
func (b *Binder) Release() {
	b.releaseOnce.Do(func() {
		b.mu.Lock()
		unsub := b.unsub
		b.unsub = nil
		b.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		if b.eng != nil {
			b.eng.Destroy()
		}
	})
}
