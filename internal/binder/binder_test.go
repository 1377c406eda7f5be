package binder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/randomizedcoder/go-hls-qoe/internal/engine"
	"github.com/randomizedcoder/go-hls-qoe/internal/logging"
	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// signals records binder callbacks for assertions.
type signals struct {
	ready       atomic.Int64
	fatal       atomic.Int64
	recoverable atomic.Int64
	switches    atomic.Int64

	readiness Readiness
	lastErr   error
	lastLevel engine.QualityLevel
}

func (s *signals) callbacks() Callbacks {
	return Callbacks{
		OnReady: func(r Readiness) {
			s.readiness = r
			s.ready.Add(1)
		},
		OnFatalError: func(err error) {
			s.lastErr = err
			s.fatal.Add(1)
		},
		OnRecoverableError: func(err error) {
			s.recoverable.Add(1)
		},
		OnLevelSwitch: func(l engine.QualityLevel) {
			s.lastLevel = l
			s.switches.Add(1)
		},
	}
}

func TestBinder_EngineReady(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 120})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	if got := sig.ready.Load(); got != 1 {
		t.Fatalf("ready count = %d, want 1", got)
	}
	if sig.readiness.Duration != 120 {
		t.Errorf("Duration = %v, want 120", sig.readiness.Duration)
	}
	if sig.readiness.Native {
		t.Error("Native = true, want engine path")
	}
	if len(sig.readiness.Levels) != len(engine.DefaultLadder) {
		t.Errorf("Levels = %d, want %d", len(sig.readiness.Levels), len(engine.DefaultLadder))
	}
	if b.Native() {
		t.Error("Native() = true, want false")
	}
}

func TestBinder_NativeFallback(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 120, Unsupported: true})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/video.mp4"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	if !b.Native() {
		t.Fatal("Native() = false, want true")
	}
	if got := sig.ready.Load(); got != 0 {
		t.Fatalf("ready before metadata = %d, want 0", got)
	}

	el.LoadMetadata(90)

	if got := sig.ready.Load(); got != 1 {
		t.Fatalf("ready count = %d, want 1", got)
	}
	if !sig.readiness.Native {
		t.Error("Native = false, want native path")
	}
	if sig.readiness.Duration != 90 {
		t.Errorf("Duration = %v, want 90", sig.readiness.Duration)
	}
	if el.Source() != "http://origin/video.mp4" {
		t.Errorf("Source = %q, want the bound uri", el.Source())
	}
}

func TestBinder_NilEngineUsesNative(t *testing.T) {
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(nil, el, 0, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/video.mp4"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	if !b.Native() {
		t.Error("Native() = false, want true")
	}
}

func TestBinder_FatalErrorOnce(t *testing.T) {
	boom := errors.New("manifest load failed")
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{FailManifest: boom})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	// A second fatal injection must not re-signal.
	eng.InjectError(true, errors.New("again"))

	if got := sig.fatal.Load(); got != 1 {
		t.Fatalf("fatal count = %d, want 1", got)
	}
	if got := sig.ready.Load(); got != 0 {
		t.Errorf("ready count = %d, want 0", got)
	}
	if !errors.Is(sig.lastErr, boom) {
		t.Errorf("fatal error = %v, want %v", sig.lastErr, boom)
	}
}

func TestBinder_RecoveryThenEscalate(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 60, Recoveries: 10})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	mediaErr := errors.New("buffer stall")
	eng.InjectError(false, mediaErr)
	eng.InjectError(false, mediaErr)

	if got := sig.recoverable.Load(); got != 2 {
		t.Fatalf("recoverable count = %d, want 2", got)
	}
	if got := sig.fatal.Load(); got != 0 {
		t.Fatalf("fatal count = %d, want 0 before budget exhaustion", got)
	}

	// Third non-fatal error exceeds the budget and escalates.
	eng.InjectError(false, mediaErr)

	if got := sig.fatal.Load(); got != 1 {
		t.Fatalf("fatal count = %d, want 1 after escalation", got)
	}
	if got := sig.recoverable.Load(); got != 2 {
		t.Errorf("recoverable count = %d, want 2", got)
	}
}

func TestBinder_RecoveryFailureEscalates(t *testing.T) {
	// The engine allows zero recoveries, so the first attempt fails.
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 60, Recoveries: 0})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	eng.InjectError(false, errors.New("buffer stall"))

	if got := sig.fatal.Load(); got != 1 {
		t.Fatalf("fatal count = %d, want 1", got)
	}
	if got := sig.recoverable.Load(); got != 0 {
		t.Errorf("recoverable count = %d, want 0", got)
	}
}

func TestBinder_LevelSwitchForwarded(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 60})
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(eng, el, 2, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	if err := eng.SwitchLevel(2); err != nil {
		t.Fatalf("SwitchLevel: %v", err)
	}

	if got := sig.switches.Load(); got != 1 {
		t.Fatalf("switch count = %d, want 1", got)
	}
	if sig.lastLevel.Index != 2 {
		t.Errorf("level = %+v, want index 2", sig.lastLevel)
	}
}

func TestBinder_BindTwice(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 60})
	el := media.NewSimulatedElement(1.0, true, 1.0)

	b := New(eng, el, 2, Callbacks{}, logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err == nil {
		t.Error("second Bind should fail")
	}
}

func TestBinder_ReleaseIdempotent(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.ScriptedConfig{Duration: 60})
	el := media.NewSimulatedElement(1.0, true, 1.0)

	b := New(eng, el, 2, Callbacks{}, logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/index.m3u8"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	b.Release()
	b.Release()

	if !eng.Destroyed() {
		t.Error("engine should be destroyed after Release")
	}
}

func TestBinder_NativeReleaseDetaches(t *testing.T) {
	el := media.NewSimulatedElement(1.0, true, 1.0)
	sig := &signals{}

	b := New(nil, el, 0, sig.callbacks(), logging.NewNop())
	if err := b.Bind(context.Background(), "http://origin/video.mp4"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	b.Release()

	// Metadata after release must not signal readiness.
	el.LoadMetadata(90)
	if got := sig.ready.Load(); got != 0 {
		t.Errorf("ready after release = %d, want 0", got)
	}
}
