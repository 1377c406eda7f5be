// Package stats provides per-session and aggregated QoE statistics for
// playback sessions.
//
// This file implements the exit summary formatter which displays session
// and QoE statistics at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/telemetry"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// TargetSessions is the number of sessions that were requested
	TargetSessions int

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// DeliveryFailures is the count of analytics posts that failed
	DeliveryFailures int64

	// DroppedEvents is the count of events shed by the dispatch queue
	DroppedEvents int64
}

// FormatExitSummary formats aggregated stats for display at program exit.
//
// The summary includes:
// - Run information
// - Session lifecycle counts
// - Event statistics with rates
// - Buffering and startup percentiles
// - Error statistics
func FormatExitSummary(agg *AggregatedQoE, cfg SummaryConfig) string {
	if agg == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                           go-hls-qoe Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Sessions:        %d\n", cfg.TargetSessions)
	fmt.Fprintf(&b, "Sessions Tracked:       %d\n", agg.TotalSessions)
	fmt.Fprintf(&b, "Completed Playback:     %d\n\n", agg.EndedSessions)

	// Event statistics
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Event Statistics\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	perSession := int64(1)
	if agg.TotalSessions > 0 {
		perSession = int64(agg.TotalSessions)
	}

	fmt.Fprintf(&b, "  Total Events:         %s  (%d per session)\n",
		FormatNumber(agg.TotalEvents),
		agg.TotalEvents/perSession,
	)
	fmt.Fprintf(&b, "  Event Rate:           %s\n\n", FormatRate(agg.InstantEventRate))

	// Per-kind breakdown from session summaries
	kindTotals := make(map[telemetry.Kind]int64)
	for _, sum := range agg.PerSessionSummaries {
		for k, v := range sum.EventCounts {
			kindTotals[k] += v
		}
	}
	if len(kindTotals) > 0 {
		kinds := make([]telemetry.Kind, 0, len(kindTotals))
		for k := range kindTotals {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kindTotals[kinds[i]] > kindTotals[kinds[j]] })

		fmt.Fprintf(&b, "  %-24s %12s\n", "Event Type", "Count")
		b.WriteString("  " + strings.Repeat("─", 38) + "\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %-24s %12s\n", k.String(), FormatNumber(kindTotals[k]))
		}
		b.WriteString("\n")
	}

	// QoE
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Playback Quality\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Played Time (total):  %.1fs\n", agg.TotalPlayedSeconds)
	fmt.Fprintf(&b, "  Buffering (total):    %.1fs across %d windows\n",
		agg.TotalBufferingSeconds, agg.BufferingWindows)
	if agg.BufferingWindows > 0 {
		fmt.Fprintf(&b, "  Buffering P50/P95/P99: %.2fs / %.2fs / %.2fs\n",
			agg.BufferingP50, agg.BufferingP95, agg.BufferingP99)
	}
	if agg.StartupP50 > 0 || agg.StartupP95 > 0 {
		fmt.Fprintf(&b, "  Startup P50/P95:      %.2fs / %.2fs\n", agg.StartupP50, agg.StartupP95)
	}
	fmt.Fprintf(&b, "  Quality Switches:     %d\n", agg.QualitySwitches)
	fmt.Fprintf(&b, "  Seeks:                %d\n\n", agg.Seeks)

	// Errors
	hasErrors := agg.MediaErrors > 0 || agg.EngineErrors > 0 ||
		cfg.DeliveryFailures > 0 || cfg.DroppedEvents > 0
	if hasErrors {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Errors\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		if agg.MediaErrors > 0 {
			fmt.Fprintf(&b, "  Media Errors:         %d\n", agg.MediaErrors)
		}
		if agg.EngineErrors > 0 {
			fmt.Fprintf(&b, "  Engine Errors:        %d\n", agg.EngineErrors)
		}
		if cfg.DeliveryFailures > 0 {
			fmt.Fprintf(&b, "  Delivery Failures:    %d\n", cfg.DeliveryFailures)
		}
		if cfg.DroppedEvents > 0 {
			fmt.Fprintf(&b, "  Dropped Events:       %d (dispatch queue full)\n", cfg.DroppedEvents)
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                           go-hls-qoe Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Sessions:        %d\n\n", cfg.TargetSessions)

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
