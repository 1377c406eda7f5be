// Package config provides configuration management for go-hls-qoe.
package config

import "time"

// Config holds all configuration options for the QoE player.
type Config struct {
	// Backend
	APIBaseURL string `json:"api_base_url"` // QOE_API_URL or -api-url
	APIKey     string `json:"api_key"`      // QOE_API_KEY, optional
	AssetID    string `json:"asset_id"`
	ViewerID   string `json:"viewer_id"` // empty = generated per session

	// Sessions
	Sessions   int           `json:"sessions"`
	RampRate   int           `json:"ramp_rate"` // sessions started per second
	RampJitter time.Duration `json:"ramp_jitter"`
	Duration   time.Duration `json:"duration"` // 0 = play to natural end

	// Playback simulation
	PlaybackRate       float64       `json:"playback_rate"`
	Volume             float64       `json:"volume"`
	Muted              bool          `json:"muted"`
	TimeUpdateInterval time.Duration `json:"timeupdate_interval"`

	// Telemetry
	HeartbeatInterval int    `json:"heartbeat_interval"` // whole seconds of position
	HeartbeatPolicy   string `json:"heartbeat_policy"`   // position, wallclock
	PendingQueueSize  int    `json:"pending_queue_size"` // events queued before session is active
	DispatchBuffer    int    `json:"dispatch_buffer"`    // analytics delivery queue

	// Session-open retry
	OpenRetries     int           `json:"open_retries"`
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Engine
	Engine        string        `json:"engine"`  // probe, scripted
	Timeout       time.Duration `json:"timeout"` // network timeout for API and engine HTTP calls
	MaxRecoveries int           `json:"max_recoveries"`

	// Preflight
	SkipPreflight     bool          `json:"skip_preflight"`
	AssetPollInterval time.Duration `json:"asset_poll_interval"`
	AssetPollTimeout  time.Duration `json:"asset_poll_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	TUIEnabled  bool   `json:"tui"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Sessions
		Sessions:   1,
		RampRate:   5,
		RampJitter: 200 * time.Millisecond,
		Duration:   0, // Play to natural end

		// Playback simulation
		PlaybackRate:       1.0,
		Volume:             1.0,
		Muted:              true,
		TimeUpdateInterval: 250 * time.Millisecond,

		// Telemetry
		HeartbeatInterval: 10,
		HeartbeatPolicy:   "position",
		PendingQueueSize:  64,
		DispatchBuffer:    256,

		// Session-open retry
		OpenRetries:     1,
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		BackoffMultiply: 1.7,

		// Engine
		Engine:        "probe",
		Timeout:       15 * time.Second,
		MaxRecoveries: 2,

		// Preflight
		AssetPollInterval: 2 * time.Second,
		AssetPollTimeout:  2 * time.Minute,

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",
	}
}
