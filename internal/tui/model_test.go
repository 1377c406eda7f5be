package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// fakeStats implements StatsSource with a fixed snapshot.
type fakeStats struct {
	agg *stats.AggregatedQoE
}

func (f *fakeStats) Aggregate() *stats.AggregatedQoE {
	return f.agg
}

// fakeFeed implements EventFeed with a fixed event list.
type fakeFeed struct {
	events []telemetry.Event
}

func (f *fakeFeed) Recent(n int) []telemetry.Event {
	if n > len(f.events) {
		n = len(f.events)
	}
	return f.events[len(f.events)-n:]
}

func sampleAgg() *stats.AggregatedQoE {
	return &stats.AggregatedQoE{
		Timestamp:             time.Now(),
		TotalSessions:         10,
		ActiveSessions:        7,
		EndedSessions:         3,
		TotalEvents:           1234,
		InstantEventRate:      42.5,
		TotalBufferingSeconds: 3.5,
		BufferingWindows:      4,
		SessionsBuffering:     1,
		BufferingP50:          0.5,
		BufferingP95:          1.2,
		BufferingP99:          2.0,
		StartupP50:            0.3,
		StartupP95:            0.9,
		TotalPlayedSeconds:    120.0,
		QualitySwitches:       6,
		Seeks:                 2,
		MediaErrors:           1,
		EngineErrors:          0,
	}
}

func newTestModel() Model {
	m := New(Config{
		TargetSessions: 10,
		AssetID:        "asset-1",
		APIBaseURL:     "http://localhost:8000",
		MetricsAddr:    "localhost:9101",
		Stats:          &fakeStats{agg: sampleAgg()},
		Feed: &fakeFeed{events: []telemetry.Event{
			{Kind: telemetry.KindVideoReady, OccurredAt: time.Now()},
			{Kind: telemetry.KindPlay, OccurredAt: time.Now()},
			{Kind: telemetry.KindBufferingStart, OccurredAt: time.Now(), Envelope: telemetry.Envelope{Position: 5.5}},
		}},
	})
	return m
}

func TestModel_TickUpdatesStats(t *testing.T) {
	m := newTestModel()

	updated, cmd := m.Update(TickMsg(time.Now()))
	m = updated.(Model)

	if m.stats == nil {
		t.Fatal("stats should be populated after tick")
	}
	if m.stats.TotalEvents != 1234 {
		t.Errorf("TotalEvents = %d, want 1234", m.stats.TotalEvents)
	}
	if len(m.recent) != 3 {
		t.Errorf("recent events = %d, want 3", len(m.recent))
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestModel_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		t.Run(key, func(t *testing.T) {
			m := newTestModel()

			msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			}
			if key == "esc" {
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			}

			updated, cmd := m.Update(msg)
			m = updated.(Model)

			if !m.quitting {
				t.Error("model should be quitting")
			}
			if cmd == nil {
				t.Error("quit key should return tea.Quit")
			}
			if m.View() != "" {
				t.Error("quitting model should render empty view")
			}
		})
	}
}

func TestModel_DetailToggle(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = updated.(Model)
	if !m.detailedView {
		t.Error("d should enable detailed view")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = updated.(Model)
	if m.detailedView {
		t.Error("d again should disable detailed view")
	}
}

func TestModel_WindowResize(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestModel_StatsMsg(t *testing.T) {
	m := newTestModel()

	agg := sampleAgg()
	agg.TotalEvents = 9999
	updated, _ := m.Update(StatsMsg{Stats: agg})
	m = updated.(Model)

	if m.stats.TotalEvents != 9999 {
		t.Errorf("TotalEvents = %d, want 9999", m.stats.TotalEvents)
	}
}

func TestModel_ViewContainsSections(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(TickMsg(time.Now()))
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{
		"go-hls-qoe",
		"Sessions",
		"Events",
		"Playback Quality",
		"Errors",
		"Recent Events",
		"buffering_start",
		"metrics: http://localhost:9101/metrics",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ViewWithoutStats(t *testing.T) {
	m := New(Config{TargetSessions: 5})

	view := m.View()
	if !strings.Contains(view, "waiting for data") {
		t.Error("view without stats should show waiting placeholder")
	}
}

func TestModel_DetailedView(t *testing.T) {
	m := newTestModel()

	agg := sampleAgg()
	agg.PerSessionSummaries = []stats.SessionSummary{
		{InstanceID: 1, TotalEvents: 50, PlayedTime: 30 * time.Second, Ended: true},
		{InstanceID: 0, TotalEvents: 40, PlayedTime: 20 * time.Second, BufferOpen: true},
	}
	m.stats = agg
	m.detailedView = true

	view := m.View()
	for _, want := range []string{"Per-Session Detail", "ended", "buffer"} {
		if !strings.Contains(view, want) {
			t.Errorf("detailed view missing %q", want)
		}
	}

	// Sorted by instance ID: session 0 before session 1
	if strings.Index(view, "buffer") > strings.Index(view, "ended") {
		t.Error("sessions should be sorted by instance ID")
	}
}

func TestModel_RampProgress(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(TickMsg(time.Now()))
	m = updated.(Model)

	if got := m.RampProgress(); got != 1.0 {
		t.Errorf("RampProgress = %v, want 1.0", got)
	}

	zero := New(Config{TargetSessions: 0})
	if got := zero.RampProgress(); got != 0 {
		t.Errorf("RampProgress with zero target = %v, want 0", got)
	}
}

func TestModel_DropRate(t *testing.T) {
	dropped := int64(0)
	m := New(Config{
		TargetSessions: 1,
		Stats:          &fakeStats{agg: sampleAgg()},
		DroppedEvents:  func() int64 { return dropped },
	})
	updated, _ := m.Update(TickMsg(time.Now()))
	m = updated.(Model)

	if got := m.DropRate(); got != 0 {
		t.Errorf("DropRate with no drops = %v, want 0", got)
	}

	dropped = 1234 // equal to TotalEvents: 50% drop rate
	if got := m.DropRate(); got != 0.5 {
		t.Errorf("DropRate = %v, want 0.5", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{61 * time.Second, "00:01:01"},
		{3*time.Hour + 25*time.Minute + 45*time.Second, "03:25:45"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_500_000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.25, "0.25/s"},
		{42.5, "42.5/s"},
		{1500, "1.5K/s"},
	}
	for _, tt := range tests {
		if got := formatRate(tt.rate); got != tt.want {
			t.Errorf("formatRate(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
