// Package media models the playback surface the stream binder attaches to.
//
// An Element is the Go-side stand-in for an HTML media element: it holds the
// playback state (position, duration, rate, volume, mute) and emits raw
// notifications as playback progresses. Notifications are delivered
// synchronously on the calling goroutine, in emission order; handlers must
// not block.
package media

import "time"

// NotificationKind identifies a raw media-element notification.
type NotificationKind int

const (
	NoteUnknown        NotificationKind = iota
	NoteLoadedMetadata                  // duration/metadata became known
	NotePlay                            // playback resumed
	NotePause                           // playback paused
	NoteEnded                           // natural end of media
	NoteSeeking                         // position change started
	NoteSeeked                          // position change completed
	NoteWaiting                         // stalled waiting for data
	NotePlaying                         // stall resolved, playback proceeding
	NoteTimeUpdate                      // periodic position sample
	NoteVolumeChange                    // volume or mute toggled
	NoteRateChange                      // playback rate changed
	NoteError                           // element-level decode/network error
)

// String returns a human-readable name for the notification kind.
func (k NotificationKind) String() string {
	switch k {
	case NoteLoadedMetadata:
		return "loadedmetadata"
	case NotePlay:
		return "play"
	case NotePause:
		return "pause"
	case NoteEnded:
		return "ended"
	case NoteSeeking:
		return "seeking"
	case NoteSeeked:
		return "seeked"
	case NoteWaiting:
		return "waiting"
	case NotePlaying:
		return "playing"
	case NoteTimeUpdate:
		return "timeupdate"
	case NoteVolumeChange:
		return "volumechange"
	case NoteRateChange:
		return "ratechange"
	case NoteError:
		return "error"
	default:
		return "unknown"
	}
}

// PlaybackState is a snapshot of the element's properties at capture time.
type PlaybackState struct {
	Position     float64 // seconds
	Duration     float64 // seconds, 0 until metadata is known
	PlaybackRate float64
	Volume       float64
	Muted        bool
}

// Notification is one raw media-element event.
type Notification struct {
	Kind       NotificationKind
	At         time.Time
	State      PlaybackState // element state at capture time
	SeekTarget float64       // seeking/seeked only
	Err        error         // error only
}

// Listener receives notifications. Called synchronously; must not block.
type Listener func(Notification)

// Element is the playback surface. The binder owns it exclusively while
// bound; other components only read state through notifications.
type Element interface {
	// State returns the current playback state.
	State() PlaybackState

	// SetSource points the element at a stream URI (native playback path).
	SetSource(uri string)

	// Source returns the currently attached URI, if any.
	Source() string

	// Subscribe registers a listener. The returned cancel detaches it.
	Subscribe(fn Listener) (cancel func())
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
