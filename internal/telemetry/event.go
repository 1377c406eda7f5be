// Package telemetry classifies raw player notifications into typed analytics
// events.
//
// Every classified event carries the same payload envelope (position,
// duration, rate, volume, mute, capture timestamp) plus kind-specific extras.
// Events are immutable once constructed and are emitted in classification
// order.
package telemetry

import (
	"time"
)

// Kind identifies the type of analytics event.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideoReady
	KindPlay
	KindPause
	KindEnded
	KindSeeking
	KindSeeked
	KindBufferingStart
	KindBufferingEnd
	KindHeartbeat
	KindVolumeChange
	KindPlaybackRateChange
	KindQualityChange
	KindVideoError
	KindError
	KindSessionEnd
)

// kindNames are the wire names the backend ingests as event_type.
var kindNames = map[Kind]string{
	KindVideoReady:         "video_ready",
	KindPlay:               "play",
	KindPause:              "pause",
	KindEnded:              "ended",
	KindSeeking:            "seeking",
	KindSeeked:             "seeked",
	KindBufferingStart:     "buffering_start",
	KindBufferingEnd:       "buffering_end",
	KindHeartbeat:          "heartbeat",
	KindVolumeChange:       "volume_change",
	KindPlaybackRateChange: "playback_rate_change",
	KindQualityChange:      "quality_change",
	KindVideoError:         "video_error",
	KindError:              "error",
	KindSessionEnd:         "session_end",
}

// String returns the wire name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Envelope is the payload every event carries, captured from the media
// element at classification time.
type Envelope struct {
	Position     float64
	Duration     float64
	PlaybackRate float64
	Volume       float64
	Muted        bool
}

// Event is one classified analytics event. Append-only and immutable once
// constructed.
type Event struct {
	Kind       Kind
	OccurredAt time.Time
	Envelope   Envelope

	// Extra holds kind-specific payload fields (seek target, quality level,
	// error message, final session aggregates).
	Extra map[string]any
}

// Data flattens the envelope and extras into the wire payload for the
// backend's analytics ingestion endpoint.
func (e Event) Data() map[string]any {
	data := map[string]any{
		"position":      e.Envelope.Position,
		"duration":      e.Envelope.Duration,
		"playback_rate": e.Envelope.PlaybackRate,
		"volume":        e.Envelope.Volume,
		"muted":         e.Envelope.Muted,
		"captured_at":   e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range e.Extra {
		data[k] = v
	}
	return data
}

// Sink receives classified events in classification order.
// Called synchronously; must not block.
type Sink func(Event)
