package telemetry

import (
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/engine"
	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// now is a test seam for engine-originated events, which carry no capture
// timestamp of their own.
var now = time.Now

// Classifier turns raw media notifications and engine events into typed
// analytics events and forwards them to a sink.
//
// Classification is deterministic: the same notification sequence produces
// the same event sequence. Position samples are rate-limited through a
// heartbeat gate; everything else maps one-to-one.
//
// Not safe for concurrent use; each session owns its own classifier and
// feeds it from a single goroutine.
type Classifier struct {
	gate   HeartbeatGate
	sink   Sink
	logger *slog.Logger
}

// NewClassifier creates a classifier emitting into sink.
func NewClassifier(gate HeartbeatGate, sink Sink, logger *slog.Logger) *Classifier {
	return &Classifier{
		gate:   gate,
		sink:   sink,
		logger: logger,
	}
}

// envelope captures the consistent payload from a playback state snapshot.
func envelope(state media.PlaybackState) Envelope {
	return Envelope{
		Position:     state.Position,
		Duration:     state.Duration,
		PlaybackRate: state.PlaybackRate,
		Volume:       state.Volume,
		Muted:        state.Muted,
	}
}

// HandleNotification classifies one raw media notification. Position samples
// that do not land on a heartbeat boundary are suppressed; unknown
// notification kinds are dropped with a debug log.
func (c *Classifier) HandleNotification(n media.Notification) {
	ev := Event{
		OccurredAt: n.At,
		Envelope:   envelope(n.State),
	}

	switch n.Kind {
	case media.NoteLoadedMetadata:
		ev.Kind = KindVideoReady
	case media.NotePlay:
		ev.Kind = KindPlay
	case media.NotePause:
		ev.Kind = KindPause
	case media.NoteEnded:
		ev.Kind = KindEnded
	case media.NoteSeeking:
		ev.Kind = KindSeeking
		ev.Extra = map[string]any{"target": n.SeekTarget}
	case media.NoteSeeked:
		ev.Kind = KindSeeked
		ev.Extra = map[string]any{"target": n.SeekTarget}
	case media.NoteWaiting:
		ev.Kind = KindBufferingStart
	case media.NotePlaying:
		ev.Kind = KindBufferingEnd
	case media.NoteTimeUpdate:
		if !c.gate.Allow(n.State.Position) {
			return
		}
		ev.Kind = KindHeartbeat
	case media.NoteVolumeChange:
		ev.Kind = KindVolumeChange
	case media.NoteRateChange:
		ev.Kind = KindPlaybackRateChange
	case media.NoteError:
		ev.Kind = KindVideoError
		ev.Extra = map[string]any{"message": errMessage(n.Err)}
	default:
		c.logger.Debug("unclassified_notification", "kind", n.Kind.String())
		return
	}

	c.sink(ev)
}

// HandleLevelSwitch classifies an engine rendition change.
func (c *Classifier) HandleLevelSwitch(state media.PlaybackState, level engine.QualityLevel) {
	c.sink(Event{
		Kind:       KindQualityChange,
		OccurredAt: now(),
		Envelope:   envelope(state),
		Extra: map[string]any{
			"level":   level.Index,
			"bitrate": level.Bitrate,
			"width":   level.Width,
			"height":  level.Height,
		},
	})
}

// HandleEngineError classifies a stream-engine error. Fatal errors are the
// caller's signal to tear the session down; classification itself does not
// change state.
func (c *Classifier) HandleEngineError(state media.PlaybackState, err error, fatal bool) {
	c.sink(Event{
		Kind:       KindError,
		OccurredAt: now(),
		Envelope:   envelope(state),
		Extra: map[string]any{
			"message": errMessage(err),
			"fatal":   fatal,
		},
	})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
