package telemetry

import (
	"sync"
)

// MaxBufferedEvents is the number of recent events the log retains.
const MaxBufferedEvents = 100

// EventLog keeps a bounded ring of recent events plus per-kind counters.
// It feeds the TUI event feed and the exit summary; it is not a delivery
// queue and never drops into the analytics path.
type EventLog struct {
	mu sync.Mutex

	// Ring of recent events
	buffer []Event
	filled []bool
	bufIdx int

	counts map[Kind]int64
	total  int64
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{
		buffer: make([]Event, MaxBufferedEvents),
		filled: make([]bool, MaxBufferedEvents),
		counts: make(map[Kind]int64),
	}
}

// Append records an event, evicting the oldest once the ring is full.
func (l *EventLog) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer[l.bufIdx] = ev
	l.filled[l.bufIdx] = true
	l.bufIdx = (l.bufIdx + 1) % MaxBufferedEvents

	l.counts[ev.Kind]++
	l.total++
}

// Recent returns up to n of the most recent events, oldest first.
func (l *EventLog) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > MaxBufferedEvents {
		n = MaxBufferedEvents
	}

	events := make([]Event, 0, n)

	for i := 0; i < n; i++ {
		idx := (l.bufIdx - n + i + MaxBufferedEvents) % MaxBufferedEvents
		if l.filled[idx] {
			events = append(events, l.buffer[idx])
		}
	}

	return events
}

// Count returns how many events of the kind were appended.
func (l *EventLog) Count(kind Kind) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[kind]
}

// Counts returns a copy of the per-kind counters.
func (l *EventLog) Counts() map[Kind]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Kind]int64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of events appended across all kinds.
func (l *EventLog) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
