package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// DefaultLadder is the rendition ladder the scripted engine offers when none
// is configured. Values mirror a typical three-rung HLS encode.
var DefaultLadder = []QualityLevel{
	{Index: 0, Bitrate: 500_000, Width: 640, Height: 360, Name: "360p"},
	{Index: 1, Bitrate: 1_200_000, Width: 1280, Height: 720, Name: "720p"},
	{Index: 2, Bitrate: 2_500_000, Width: 1920, Height: 1080, Name: "1080p"},
}

// ErrDestroyed is returned by operations on a destroyed scripted engine.
var ErrDestroyed = errors.New("engine destroyed")

// ScriptedEngine is a deterministic in-process engine. It reports a
// configured ladder and duration as soon as the source loads, and exposes
// methods to drive rendition switches and error injection from scenario
// code. It implements Recoverer so recovery escalation paths can be
// exercised without a real decoder.
type ScriptedEngine struct {
	mu sync.Mutex

	duration float64
	ladder   []QualityLevel
	current  int

	// failManifest, when set, makes LoadSource report this as a fatal error
	// instead of manifest_parsed.
	failManifest error

	// recoveriesLeft is how many RecoverMediaError calls succeed before the
	// capability starts failing.
	recoveriesLeft int

	handlers  map[EventName][]Handler
	element   media.Element
	supported bool
	destroyed bool
}

// ScriptedConfig configures a ScriptedEngine.
type ScriptedConfig struct {
	Duration     float64
	Ladder       []QualityLevel // nil = DefaultLadder
	FailManifest error          // non-nil = fatal error instead of manifest_parsed
	Recoveries   int            // successful RecoverMediaError calls allowed
	Unsupported  bool           // force the native fallback path
}

// NewScriptedEngine creates a scripted engine.
func NewScriptedEngine(cfg ScriptedConfig) *ScriptedEngine {
	ladder := cfg.Ladder
	if ladder == nil {
		ladder = DefaultLadder
	}
	return &ScriptedEngine{
		duration:       cfg.Duration,
		ladder:         ladder,
		failManifest:   cfg.FailManifest,
		recoveriesLeft: cfg.Recoveries,
		handlers:       make(map[EventName][]Handler),
		supported:      !cfg.Unsupported,
	}
}

// IsSupported reports the configured support flag.
func (s *ScriptedEngine) IsSupported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported
}

// AttachMedia binds the engine to a media element.
func (s *ScriptedEngine) AttachMedia(el media.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.element = el
	return nil
}

// On registers a handler for an event name.
func (s *ScriptedEngine) On(name EventName, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], fn)
}

// Levels returns the configured ladder.
func (s *ScriptedEngine) Levels() []QualityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QualityLevel(nil), s.ladder...)
}

// CurrentLevel returns the active rendition.
func (s *ScriptedEngine) CurrentLevel() QualityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ladder[s.current]
}

// LoadSource synchronously emits manifest_parsed (or the configured fatal
// error). The scripted engine has no network activity to defer.
func (s *ScriptedEngine) LoadSource(_ context.Context, uri string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if s.element == nil {
		s.mu.Unlock()
		return fmt.Errorf("scripted engine: no media attached")
	}
	fail := s.failManifest
	dur := s.duration
	ladder := append([]QualityLevel(nil), s.ladder...)
	s.mu.Unlock()

	if fail != nil {
		s.emit(Event{Name: EventError, Fatal: true, Err: fail})
		return nil
	}

	s.emit(Event{Name: EventManifestParsed, Duration: dur, Levels: ladder})
	return nil
}

// SwitchLevel changes the active rendition and emits level_switched.
func (s *ScriptedEngine) SwitchLevel(index int) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if index < 0 || index >= len(s.ladder) {
		s.mu.Unlock()
		return fmt.Errorf("scripted engine: level %d out of range", index)
	}
	s.current = index
	level := s.ladder[index]
	s.mu.Unlock()

	s.emit(Event{Name: EventLevelSwitched, Level: level})
	return nil
}

// InjectError emits an engine error event, fatal or recoverable.
func (s *ScriptedEngine) InjectError(fatal bool, err error) {
	s.emit(Event{Name: EventError, Fatal: fatal, Err: err})
}

// RecoverMediaError implements Recoverer. It succeeds for the configured
// number of attempts, then fails.
func (s *ScriptedEngine) RecoverMediaError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.recoveriesLeft <= 0 {
		return errors.New("media error recovery exhausted")
	}
	s.recoveriesLeft--
	return nil
}

// Destroy releases the engine. Idempotent.
func (s *ScriptedEngine) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.element = nil
	s.handlers = make(map[EventName][]Handler)
}

// Destroyed reports whether Destroy was called.
func (s *ScriptedEngine) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// emit delivers an event to registered handlers.
func (s *ScriptedEngine) emit(ev Event) {
	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers[ev.Name]...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
