package telemetry

import (
	"time"

	"golang.org/x/time/rate"
)

// HeartbeatGate decides whether a position update should produce a heartbeat
// event. Implementations are not safe for concurrent use; each session owns
// its own gate.
type HeartbeatGate interface {
	// Allow is called for every position update with the current playback
	// position in seconds. It returns true at most once per sampling boundary.
	Allow(position float64) bool
}

// PositionGate fires when the playback position crosses a whole-second
// boundary that is a multiple of the interval. Position updates arrive many
// times per second, so the gate remembers the last boundary it fired at and
// fires each boundary at most once. Seeks that skip over a boundary do not
// retroactively fire it.
type PositionGate struct {
	interval     int64
	lastBoundary int64
}

// NewPositionGate creates a gate firing every intervalSeconds of media time.
// Position zero is treated as already sampled, so the first heartbeat arrives
// at the first boundary after playback starts.
func NewPositionGate(intervalSeconds int) *PositionGate {
	if intervalSeconds < 1 {
		intervalSeconds = 1
	}
	return &PositionGate{interval: int64(intervalSeconds)}
}

// Allow reports whether this position update lands on a new boundary.
func (g *PositionGate) Allow(position float64) bool {
	if position < 0 {
		return false
	}
	boundary := int64(position)
	if boundary%g.interval != 0 {
		return false
	}
	if boundary == g.lastBoundary {
		return false
	}
	g.lastBoundary = boundary
	return true
}

// WallClockGate fires at most once per interval of wall-clock time,
// independent of playback position. Useful when media time is unreliable,
// for example during heavy rate changes or live streams.
type WallClockGate struct {
	limiter *rate.Limiter
}

// NewWallClockGate creates a gate firing at most once per interval. The
// first position update fires immediately.
func NewWallClockGate(interval time.Duration) *WallClockGate {
	return &WallClockGate{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow consumes a token if one is available.
func (g *WallClockGate) Allow(_ float64) bool {
	return g.limiter.Allow()
}
