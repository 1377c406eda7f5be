package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-hls-qoe/internal/stats"
)

// eventFeedSize is how many recent events the feed panel shows.
const eventFeedSize = 8

// =============================================================================
// Summary View
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		m.renderSessions(),
		m.renderEventStats(),
		m.renderQoE(),
		m.renderErrors(),
		m.renderEventFeed(),
		m.renderFooter(),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the top header bar.
func (m Model) renderHeader() string {
	title := "go-hls-qoe"

	active := m.ActiveSessions()
	sessions := fmt.Sprintf("Sessions: %d/%d", active, m.targetSessions)

	elapsed := fmt.Sprintf("Elapsed: %s", formatDuration(m.Elapsed()))

	delivery := GetDeliveryLabel(m.DropRate())

	header := fmt.Sprintf("%s │ %s │ %s │ %s", title, delivery, sessions, elapsed)
	return headerStyle.Width(m.width - 2).Render(header)
}

// renderProgress renders the ramp-up progress bar.
func (m Model) renderProgress() string {
	progress := m.RampProgress()
	if progress > 1.0 {
		progress = 1.0
	}

	tracked := 0
	if m.stats != nil {
		tracked = m.stats.TotalSessions
	}

	label := fmt.Sprintf("Ramp: %d/%d sessions ", tracked, m.targetSessions)
	bar := RenderProgressBar(progress, 40)

	return boxStyle.Width(m.width - 2).Render(
		mutedStyle.Render(label) + bar,
	)
}

// renderSessions renders session lifecycle counts.
func (m Model) renderSessions() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Sessions"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("  waiting for data..."))
		return boxStyle.Width(m.width - 2).Render(b.String())
	}

	b.WriteString(renderStatRow("Active", fmt.Sprintf("%d", m.stats.ActiveSessions), ""))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Ended", fmt.Sprintf("%d", m.stats.EndedSessions), ""))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Buffering now", fmt.Sprintf("%d", m.stats.SessionsBuffering), ""))

	return boxStyle.Width(m.width - 2).Render(b.String())
}

// renderEventStats renders event totals and throughput.
func (m Model) renderEventStats() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Events"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("  waiting for data..."))
		return boxStyle.Width(m.width - 2).Render(b.String())
	}

	b.WriteString(renderStatRow("Classified",
		formatNumber(m.stats.TotalEvents),
		formatRate(m.stats.InstantEventRate)))

	if m.droppedEvents != nil {
		dropped := m.droppedEvents()
		style := valueGoodStyle
		if dropped > 0 {
			style = valueWarnStyle
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Dropped:"),
			style.Render(formatNumber(dropped)),
		))
	}

	return boxStyle.Width(m.width - 2).Render(b.String())
}

// renderQoE renders the playback quality panel.
func (m Model) renderQoE() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Playback Quality"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("  waiting for data..."))
		return boxStyle.Width(m.width - 2).Render(b.String())
	}

	s := m.stats

	bufferRatio := 0.0
	if s.TotalPlayedSeconds+s.TotalBufferingSeconds > 0 {
		bufferRatio = s.TotalBufferingSeconds / (s.TotalPlayedSeconds + s.TotalBufferingSeconds)
	}

	b.WriteString(renderStatRow("Played", formatSeconds(s.TotalPlayedSeconds), ""))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Buffering:"),
		valueStyle.Render(formatSeconds(s.TotalBufferingSeconds)),
		mutedStyle.Render(fmt.Sprintf("  %d windows  ", s.BufferingWindows)),
		GetBufferRatioLabel(bufferRatio),
	))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Buffer p50/p95/p99",
		fmt.Sprintf("%s / %s / %s",
			formatSeconds(s.BufferingP50),
			formatSeconds(s.BufferingP95),
			formatSeconds(s.BufferingP99)), ""))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Startup p50/p95",
		fmt.Sprintf("%s / %s",
			formatSeconds(s.StartupP50),
			formatSeconds(s.StartupP95)), ""))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Quality switches", fmt.Sprintf("%d", s.QualitySwitches), ""))
	b.WriteString("\n")
	b.WriteString(renderStatRow("Seeks", fmt.Sprintf("%d", s.Seeks), ""))

	return boxStyle.Width(m.width - 2).Render(b.String())
}

// renderErrors renders error totals.
func (m Model) renderErrors() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Errors"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("  waiting for data..."))
		return boxStyle.Width(m.width - 2).Render(b.String())
	}

	mediaStyle := valueGoodStyle
	if m.stats.MediaErrors > 0 {
		mediaStyle = valueBadStyle
	}
	engineStyle := valueGoodStyle
	if m.stats.EngineErrors > 0 {
		engineStyle = valueBadStyle
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Media errors:"),
		mediaStyle.Render(fmt.Sprintf("%d", m.stats.MediaErrors)),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Engine errors:"),
		engineStyle.Render(fmt.Sprintf("%d", m.stats.EngineErrors)),
	))

	return boxStyle.Width(m.width - 2).Render(b.String())
}

// renderEventFeed renders the recent-event feed, oldest first.
func (m Model) renderEventFeed() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Recent Events"))
	b.WriteString("\n")

	if len(m.recent) == 0 {
		b.WriteString(dimStyle.Render("  no events yet"))
		return boxStyle.Width(m.width - 2).Render(b.String())
	}

	for i, ev := range m.recent {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s  %-20s pos=%.1fs",
			ev.OccurredAt.Format("15:04:05"),
			ev.Kind.String(),
			ev.Envelope.Position,
		)
		switch ev.Kind.String() {
		case "error", "video_error":
			b.WriteString(statusError.Render(line))
		case "buffering_start", "buffering_end":
			b.WriteString(statusWarning.Render(line))
		default:
			b.WriteString(mutedStyle.Render(line))
		}
	}

	return boxStyle.Width(m.width - 2).Render(b.String())
}

// renderFooter renders the key hints.
func (m Model) renderFooter() string {
	hints := "q: quit │ d: per-session detail │ r: refresh"
	if m.metricsAddr != "" {
		hints += fmt.Sprintf(" │ metrics: http://%s/metrics", m.metricsAddr)
	}
	return footerStyle.Render(hints)
}

// renderStatRow renders a label, value, and optional rate.
func renderStatRow(label, value, rate string) string {
	parts := []string{
		labelStyle.Render(label + ":"),
		valueStyle.Render(value),
	}
	if rate != "" {
		parts = append(parts, mutedStyle.Render("  "+rate))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

// =============================================================================
// Detailed View
// =============================================================================

// renderDetailedView renders the per-session table.
func (m Model) renderDetailedView() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(sectionHeaderStyle.Render("Per-Session Detail"))
	b.WriteString("\n")

	header := fmt.Sprintf("%-6s %-8s %-10s %-10s %-8s %-8s %-6s %-6s",
		"ID", "EVENTS", "PLAYED", "BUFFERING", "WINDOWS", "SWITCHES", "ERRS", "STATE")
	b.WriteString(tableHeaderStyle.Render(header))
	b.WriteString("\n")

	summaries := make([]stats.SessionSummary, len(m.stats.PerSessionSummaries))
	copy(summaries, m.stats.PerSessionSummaries)
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].InstanceID < summaries[j].InstanceID
	})

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	for i, s := range summaries {
		if i >= maxRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ... and %d more", len(summaries)-maxRows)))
			b.WriteString("\n")
			break
		}

		state := "active"
		if s.Ended {
			state = "ended"
		} else if s.BufferOpen {
			state = "buffer"
		}

		row := fmt.Sprintf("%-6d %-8s %-10s %-10s %-8d %-8d %-6d %-6s",
			s.InstanceID,
			formatNumber(s.TotalEvents),
			formatSeconds(s.PlayedTime.Seconds()),
			formatSeconds(s.BufferingTotal.Seconds()),
			s.BufferWindows,
			s.QualitySwitches,
			s.MediaErrors+s.EngineErrors,
			state,
		)

		if i%2 == 0 {
			b.WriteString(tableRowEvenStyle.Render(row))
		} else {
			b.WriteString(tableRowOddStyle.Render(row))
		}
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("d: back to summary │ q: quit"))
	return b.String()
}
