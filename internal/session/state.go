// Package session manages the lifecycle of one playback session against the
// analytics backend: identity acquisition, event queueing and delivery, and
// the exactly-once terminal report.
package session

// Status represents the current state of a playback session.
//
// Transitions are forward-only: uninitialized -> opening -> active -> ended.
// Ended is absorbing; no event or call moves a session out of it. The one
// exception is a failed open, which falls back from opening to uninitialized
// with delivery disabled.
type Status int

const (
	// StatusUninitialized is the initial state before open is attempted.
	StatusUninitialized Status = iota

	// StatusOpening indicates the backend session create is in flight.
	StatusOpening

	// StatusActive indicates the session has an identity and events flow.
	StatusActive

	// StatusEnded indicates the session has been torn down permanently.
	StatusEnded
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusOpening:
		return "opening"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is the absorbing end state.
func (s Status) IsTerminal() bool {
	return s == StatusEnded
}

// CanTransition reports whether moving from s to next is a legal forward
// step. Self-transitions are not legal; ended accepts nothing.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUninitialized:
		return next == StatusOpening || next == StatusEnded
	case StatusOpening:
		return next == StatusActive || next == StatusUninitialized || next == StatusEnded
	case StatusActive:
		return next == StatusEnded
	default:
		return false
	}
}
