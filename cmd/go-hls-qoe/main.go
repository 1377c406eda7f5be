// Package main provides the go-hls-qoe CLI entry point.
//
// go-hls-qoe is a headless HLS playback client that simulates viewer
// sessions against a video backend and reports playback QoE telemetry.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/randomizedcoder/go-hls-qoe/internal/config"
	"github.com/randomizedcoder/go-hls-qoe/internal/logging"
	"github.com/randomizedcoder/go-hls-qoe/internal/orchestrator"
	"github.com/randomizedcoder/go-hls-qoe/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-hls-qoe
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-hls-qoe %s\n", version)
			return 0
		}
	}

	// A .env in the working directory seeds QOE_API_URL / QOE_API_KEY.
	// Missing file is fine; the environment and flags still apply.
	_ = godotenv.Load()

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"sessions", cfg.Sessions,
		"ramp_rate", cfg.RampRate,
		"asset_id", cfg.AssetID,
		"engine", cfg.Engine,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	orch := orchestrator.New(cfg, logger)

	if cfg.TUIEnabled {
		return runWithTUI(orch, cfg)
	}

	if err := orch.Run(context.Background()); err != nil {
		logger.Error("run_failed", "error", err)
		return 1
	}
	return 0
}

// runWithTUI runs the orchestrator alongside the dashboard. Quitting the
// dashboard cancels the run; a finished run closes the dashboard.
func runWithTUI(orch *orchestrator.Orchestrator, cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.New(tui.Config{
		TargetSessions: cfg.Sessions,
		AssetID:        cfg.AssetID,
		APIBaseURL:     cfg.APIBaseURL,
		MetricsAddr:    cfg.MetricsAddr,
		Stats:          orch.Registry(),
		Feed:           orch.EventLog(),
		DroppedEvents:  orch.Metrics().DroppedEvents,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	runErr := make(chan error, 1)
	go func() {
		err := orch.Run(ctx)
		runErr <- err
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}

	// The dashboard exited first when the user quit; stop the run.
	cancel()

	if err := <-runErr; err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-hls-qoe                                ║")
	fmt.Println("║        HLS Playback Sessions with QoE Telemetry Reporting          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Sessions:    %d at %d/sec\n", cfg.Sessions, cfg.RampRate)
	fmt.Printf("  Backend:     %s\n", cfg.APIBaseURL)
	fmt.Printf("  Asset:       %s\n", cfg.AssetID)
	fmt.Printf("  Engine:      %s\n", cfg.Engine)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.Duration > 0 {
		fmt.Printf("  Duration:    %s per session\n", cfg.Duration)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
