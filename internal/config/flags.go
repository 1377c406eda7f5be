package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Environment variable names for the backend boundary.
const (
	EnvAPIBaseURL = "QOE_API_URL"
	EnvAPIKey     = "QOE_API_KEY"
)

// ParseFlags parses command-line flags and returns a Config.
// The backend base URL and API key default from the process environment
// (QOE_API_URL, QOE_API_KEY); flags override.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()
	cfg.APIBaseURL = os.Getenv(EnvAPIBaseURL)
	cfg.APIKey = os.Getenv(EnvAPIKey)

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-hls-qoe - headless HLS playback QoE telemetry client

Usage:
  go-hls-qoe [flags] <ASSET_ID>

Backend Flags:
`)
		// Print flags by category
		printFlagCategory([]string{"api-url", "api-key", "viewer-id", "timeout"})

		fmt.Fprintf(os.Stderr, "\nSession Flags:\n")
		printFlagCategory([]string{"sessions", "ramp-rate", "ramp-jitter", "duration"})

		fmt.Fprintf(os.Stderr, "\nPlayback Simulation:\n")
		printFlagCategory([]string{"rate", "volume", "muted", "timeupdate-interval"})

		fmt.Fprintf(os.Stderr, "\nTelemetry:\n")
		printFlagCategory([]string{"heartbeat-interval", "heartbeat-policy", "pending-queue", "dispatch-buffer"})

		fmt.Fprintf(os.Stderr, "\nEngine:\n")
		printFlagCategory([]string{"engine", "max-recoveries"})

		fmt.Fprintf(os.Stderr, "\nSession-Open Retry:\n")
		printFlagCategory([]string{"open-retries", "backoff-initial", "backoff-max"})

		fmt.Fprintf(os.Stderr, "\nPreflight:\n")
		printFlagCategory([]string{"skip-preflight", "asset-poll-interval", "asset-poll-timeout"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format", "tui"})

		fmt.Fprintf(os.Stderr, `
Environment:
  QOE_API_URL   Backend base URL (e.g., http://localhost:8000/v1). Required
                unless -api-url is given. A .env file in the working
                directory is honored.
  QOE_API_KEY   Bearer token for asset endpoints (optional).

Examples:
  # Single session against a local backend
  QOE_API_URL=http://localhost:8000/v1 go-hls-qoe 2f1c7a9e-asset

  # 50 concurrent viewers with the live dashboard
  go-hls-qoe -sessions 50 -tui -api-url http://localhost:8000/v1 2f1c7a9e-asset

`)
	}

	// Backend
	flag.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "Backend base URL (overrides QOE_API_URL)")
	flag.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Bearer token for asset endpoints (overrides QOE_API_KEY)")
	flag.StringVar(&cfg.ViewerID, "viewer-id", cfg.ViewerID, "Viewer identifier (default: generated per session)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Network timeout for backend and engine HTTP calls")

	// Sessions
	flag.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "Number of concurrent playback sessions")
	flag.IntVar(&cfg.RampRate, "ramp-rate", cfg.RampRate, "Sessions to start per second")
	flag.DurationVar(&cfg.RampJitter, "ramp-jitter", cfg.RampJitter, "Random jitter per session start")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Playback duration per session (0 = play to natural end)")

	// Playback simulation
	flag.Float64Var(&cfg.PlaybackRate, "rate", cfg.PlaybackRate, "Simulated playback rate")
	flag.Float64Var(&cfg.Volume, "volume", cfg.Volume, "Simulated volume (0.0-1.0)")
	flag.BoolVar(&cfg.Muted, "muted", cfg.Muted, "Start muted")
	flag.DurationVar(&cfg.TimeUpdateInterval, "timeupdate-interval", cfg.TimeUpdateInterval, "Simulated timeupdate cadence")

	// Telemetry
	flag.IntVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "Heartbeat interval in whole seconds of playback position")
	flag.StringVar(&cfg.HeartbeatPolicy, "heartbeat-policy", cfg.HeartbeatPolicy, `Heartbeat gating: "position" (modulo boundary) or "wallclock"`)
	flag.IntVar(&cfg.PendingQueueSize, "pending-queue", cfg.PendingQueueSize, "Events to queue before the session becomes active (oldest dropped on overflow)")
	flag.IntVar(&cfg.DispatchBuffer, "dispatch-buffer", cfg.DispatchBuffer, "Analytics delivery queue size (increase if seeing drops)")

	// Engine
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, `Stream engine: "probe" (HTTP manifest probe) or "scripted" (deterministic demo ladder)`)
	flag.IntVar(&cfg.MaxRecoveries, "max-recoveries", cfg.MaxRecoveries, "Non-fatal engine error recoveries before escalating to fatal")

	// Session-open retry
	flag.IntVar(&cfg.OpenRetries, "open-retries", cfg.OpenRetries, "Session-open retry attempts")
	flag.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial retry backoff")
	flag.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum retry backoff")
	// Note: backoff-multiply is intentionally not documented (hidden advanced flag)
	flag.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "")

	// Preflight
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip backend health and asset readiness checks")
	flag.DurationVar(&cfg.AssetPollInterval, "asset-poll-interval", cfg.AssetPollInterval, "Asset readiness poll interval")
	flag.DurationVar(&cfg.AssetPollTimeout, "asset-poll-timeout", cfg.AssetPollTimeout, "Give up waiting for asset readiness after this long")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Parse
	flag.Parse()

	// Positional argument: asset ID
	args := flag.Args()
	if len(args) >= 1 {
		cfg.AssetID = args[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
