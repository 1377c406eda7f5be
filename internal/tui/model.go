package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats *stats.AggregatedQoE
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatsSource provides aggregated QoE statistics.
type StatsSource interface {
	Aggregate() *stats.AggregatedQoE
}

// EventFeed provides the recent-event ring for the live feed panel.
type EventFeed interface {
	Recent(n int) []telemetry.Event
}

// Config holds TUI configuration.
type Config struct {
	TargetSessions int
	AssetID        string
	APIBaseURL     string
	MetricsAddr    string

	Stats StatsSource
	Feed  EventFeed

	// DroppedEvents reports dispatch-queue drops; optional.
	DroppedEvents func() int64
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	targetSessions int
	assetID        string
	apiBaseURL     string
	metricsAddr    string

	// Current state
	stats        *stats.AggregatedQoE
	recent       []telemetry.Event
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Sources for fetching updates
	statsSource   StatsSource
	feed          EventFeed
	droppedEvents func() int64

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		targetSessions: cfg.TargetSessions,
		assetID:        cfg.AssetID,
		apiBaseURL:     cfg.APIBaseURL,
		metricsAddr:    cfg.MetricsAddr,
		statsSource:    cfg.Stats,
		feed:           cfg.Feed,
		droppedEvents:  cfg.DroppedEvents,
		startTime:      time.Now(),
		lastUpdate:     time.Now(),
		width:          80,
		height:         24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the refresh ticker. Alt-screen mode is a program option, not
// an init command.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.statsSource != nil {
			m.stats = m.statsSource.Aggregate()
		}
		if m.feed != nil {
			m.recent = m.feed.Recent(eventFeedSize)
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.stats != nil && len(m.stats.PerSessionSummaries) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ActiveSessions returns the current active session count.
func (m Model) ActiveSessions() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.ActiveSessions
}

// TargetSessions returns the target session count.
func (m Model) TargetSessions() int {
	return m.targetSessions
}

// RampProgress returns the ramp-up progress (0.0 to 1.0).
func (m Model) RampProgress() float64 {
	if m.targetSessions == 0 {
		return 0
	}
	tracked := 0
	if m.stats != nil {
		tracked = m.stats.TotalSessions
	}
	return float64(tracked) / float64(m.targetSessions)
}

// DropRate returns the share of classified events shed by the dispatch queue.
func (m Model) DropRate() float64 {
	if m.stats == nil || m.droppedEvents == nil {
		return 0
	}
	dropped := m.droppedEvents()
	total := m.stats.TotalEvents + dropped
	if total == 0 {
		return 0
	}
	return float64(dropped) / float64(total)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, agg *stats.AggregatedQoE) {
	if p != nil {
		p.Send(StatsMsg{Stats: agg})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}

// formatSeconds formats a seconds value with one decimal.
func formatSeconds(s float64) string {
	return fmt.Sprintf("%.1fs", s)
}
