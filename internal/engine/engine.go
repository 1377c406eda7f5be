// Package engine defines the adaptive-streaming engine boundary.
//
// The engine is a black box to the rest of the player: it is handed a
// manifest URI and a media element, and emits manifest-parsed, error, and
// level-switched events. Quality ladders are opaque metadata supplied by the
// engine; nothing here parses manifests.
package engine

import (
	"context"

	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// QualityLevel is one rendition offered by the adaptive engine.
type QualityLevel struct {
	Index   int
	Bitrate int64 // bits per second
	Width   int
	Height  int
	Name    string
}

// EventName identifies an engine event.
type EventName string

const (
	// EventManifestParsed fires once the stream is playable.
	EventManifestParsed EventName = "manifest_parsed"

	// EventError fires for engine errors, fatal or recoverable.
	EventError EventName = "error"

	// EventLevelSwitched fires when the engine changes rendition.
	EventLevelSwitched EventName = "level_switched"
)

// Event carries engine event data. Fields are populated per event name.
type Event struct {
	Name EventName

	// manifest_parsed
	Duration float64
	Levels   []QualityLevel

	// error
	Fatal bool
	Err   error

	// level_switched
	Level QualityLevel
}

// Handler receives engine events. Called from the engine's goroutine;
// handlers must not block.
type Handler func(Event)

// Engine is the capability object for one playback attempt.
//
// Lifecycle: On() to register handlers, AttachMedia(), LoadSource(), and
// finally Destroy(). Destroy must abort in-flight network activity and is
// safe to call more than once.
type Engine interface {
	// IsSupported reports whether this engine can run in the current
	// environment. Unsupported engines cause the binder to fall back to
	// native playback.
	IsSupported() bool

	// LoadSource starts loading the manifest. Events are delivered to
	// registered handlers; the error return covers only immediate,
	// pre-network failures.
	LoadSource(ctx context.Context, uri string) error

	// AttachMedia binds the engine to a media element.
	AttachMedia(el media.Element) error

	// On registers a handler for an event name.
	On(name EventName, fn Handler)

	// Levels returns the current quality ladder, empty until known.
	Levels() []QualityLevel

	// Destroy releases all engine resources. Idempotent.
	Destroy()
}

// Recoverer is an optional engine capability for recovering non-fatal media
// errors in place without tearing down the playback attempt.
type Recoverer interface {
	RecoverMediaError() error
}
