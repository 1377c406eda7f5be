package media

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimulatedElement is a clock-driven Element for headless playback.
//
// It advances the playback position while playing (and not stalled) and emits
// the same notification vocabulary a browser media element would. Drive it
// either with Run (wall-clock ticker) or with Advance (manual stepping in
// tests and scripted scenarios).
//
// All notification dispatch happens on the goroutine calling the mutating
// method, holding no locks, in emission order.
type SimulatedElement struct {
	mu sync.Mutex

	state   PlaybackState
	src     string
	playing bool
	stalled bool
	loaded  bool
	ended   bool

	clock Clock

	subs   map[int]Listener
	nextID int
}

// NewSimulatedElement creates an element with the given initial volume,
// mute flag, and playback rate.
func NewSimulatedElement(volume float64, muted bool, rate float64) *SimulatedElement {
	return NewSimulatedElementWithClock(volume, muted, rate, realClock{})
}

// NewSimulatedElementWithClock creates an element with a custom clock.
func NewSimulatedElementWithClock(volume float64, muted bool, rate float64, clock Clock) *SimulatedElement {
	if rate <= 0 {
		rate = 1.0
	}
	return &SimulatedElement{
		state: PlaybackState{
			PlaybackRate: rate,
			Volume:       volume,
			Muted:        muted,
		},
		clock: clock,
		subs:  make(map[int]Listener),
	}
}

// State returns the current playback state.
func (e *SimulatedElement) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetSource attaches a stream URI. Replacing the source resets playback.
func (e *SimulatedElement) SetSource(uri string) {
	e.mu.Lock()
	e.src = uri
	e.state.Position = 0
	e.state.Duration = 0
	e.playing = false
	e.loaded = false
	e.ended = false
	e.mu.Unlock()
}

// Source returns the currently attached URI.
func (e *SimulatedElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// Subscribe registers a listener. The returned cancel detaches it.
func (e *SimulatedElement) Subscribe(fn Listener) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// LoadMetadata marks the media as loaded with the given duration and emits
// loadedmetadata. The binder's native path calls this when the stream is
// reachable; the adaptive path calls it when the engine reports the manifest.
func (e *SimulatedElement) LoadMetadata(duration float64) {
	e.mu.Lock()
	e.state.Duration = duration
	e.loaded = true
	n := e.notification(NoteLoadedMetadata)
	e.mu.Unlock()

	e.dispatch(n)
}

// Play starts or resumes playback.
func (e *SimulatedElement) Play() {
	e.mu.Lock()
	if e.playing || e.ended {
		e.mu.Unlock()
		return
	}
	e.playing = true
	n := e.notification(NotePlay)
	e.mu.Unlock()

	e.dispatch(n)
}

// Pause pauses playback.
func (e *SimulatedElement) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	n := e.notification(NotePause)
	e.mu.Unlock()

	e.dispatch(n)
}

// Seek moves the position, emitting seeking then seeked.
func (e *SimulatedElement) Seek(target float64) {
	e.mu.Lock()
	if e.state.Duration > 0 {
		target = math.Min(math.Max(target, 0), e.state.Duration)
	}
	seeking := e.notification(NoteSeeking)
	seeking.SeekTarget = target

	e.state.Position = target
	e.ended = false
	seeked := e.notification(NoteSeeked)
	seeked.SeekTarget = target
	e.mu.Unlock()

	e.dispatch(seeking)
	e.dispatch(seeked)
}

// StallStart marks the element as stalled and emits waiting.
// A stall while already stalled is a no-op.
func (e *SimulatedElement) StallStart() {
	e.mu.Lock()
	if e.stalled {
		e.mu.Unlock()
		return
	}
	e.stalled = true
	n := e.notification(NoteWaiting)
	e.mu.Unlock()

	e.dispatch(n)
}

// StallEnd resolves a stall and emits playing.
func (e *SimulatedElement) StallEnd() {
	e.mu.Lock()
	if !e.stalled {
		e.mu.Unlock()
		return
	}
	e.stalled = false
	n := e.notification(NotePlaying)
	e.mu.Unlock()

	e.dispatch(n)
}

// SetVolume changes the volume and emits volumechange.
func (e *SimulatedElement) SetVolume(volume float64) {
	e.mu.Lock()
	e.state.Volume = volume
	n := e.notification(NoteVolumeChange)
	e.mu.Unlock()

	e.dispatch(n)
}

// SetMuted toggles mute and emits volumechange.
func (e *SimulatedElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.state.Muted = muted
	n := e.notification(NoteVolumeChange)
	e.mu.Unlock()

	e.dispatch(n)
}

// SetPlaybackRate changes the rate and emits ratechange.
func (e *SimulatedElement) SetPlaybackRate(rate float64) {
	e.mu.Lock()
	if rate <= 0 {
		e.mu.Unlock()
		return
	}
	e.state.PlaybackRate = rate
	n := e.notification(NoteRateChange)
	e.mu.Unlock()

	e.dispatch(n)
}

// Fail emits an element-level error notification.
func (e *SimulatedElement) Fail(err error) {
	e.mu.Lock()
	n := e.notification(NoteError)
	n.Err = err
	e.mu.Unlock()

	e.dispatch(n)
}

// Advance moves the decode clock forward by dt. While playing and not
// stalled, position advances at the playback rate and a timeupdate is
// emitted; reaching the duration emits ended.
func (e *SimulatedElement) Advance(dt time.Duration) {
	e.mu.Lock()
	if !e.playing || e.stalled || !e.loaded || e.ended {
		e.mu.Unlock()
		return
	}

	e.state.Position += dt.Seconds() * e.state.PlaybackRate

	var notes []Notification
	if e.state.Duration > 0 && e.state.Position >= e.state.Duration {
		e.state.Position = e.state.Duration
		e.playing = false
		e.ended = true
		notes = append(notes, e.notification(NoteTimeUpdate), e.notification(NoteEnded))
	} else {
		notes = append(notes, e.notification(NoteTimeUpdate))
	}
	e.mu.Unlock()

	for _, n := range notes {
		e.dispatch(n)
	}
}

// Run drives the element from a wall-clock ticker until the context is
// cancelled or playback ends naturally.
func (e *SimulatedElement) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.clock.Now()
			e.Advance(now.Sub(last))
			last = now

			e.mu.Lock()
			done := e.ended
			e.mu.Unlock()
			if done {
				return
			}
		}
	}
}

// Ended reports whether playback reached the natural end.
func (e *SimulatedElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Playing reports whether the element is currently playing.
func (e *SimulatedElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing && !e.stalled
}

// notification builds a Notification from current state. Caller holds mu.
func (e *SimulatedElement) notification(kind NotificationKind) Notification {
	return Notification{
		Kind:  kind,
		At:    e.clock.Now(),
		State: e.state,
	}
}

// dispatch delivers a notification to all subscribers, lock-free.
func (e *SimulatedElement) dispatch(n Notification) {
	e.mu.Lock()
	listeners := make([]Listener, 0, len(e.subs))
	for _, fn := range e.subs {
		listeners = append(listeners, fn)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}
