package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Backend base URL is required
	if cfg.APIBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "api_base_url",
			Message: fmt.Sprintf("backend base URL is required (set %s or -api-url)", EnvAPIBaseURL),
		})
	}

	// Validate base URL format if provided
	if cfg.APIBaseURL != "" {
		if err := validateURL(cfg.APIBaseURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "api_base_url",
				Message: err.Error(),
			})
		}
	}

	// Asset ID is required
	if cfg.AssetID == "" {
		errs = append(errs, ValidationError{
			Field:   "asset_id",
			Message: "asset ID is required",
		})
	}

	// Sessions must be positive
	if cfg.Sessions < 1 {
		errs = append(errs, ValidationError{
			Field:   "sessions",
			Message: "must be at least 1",
		})
	}

	// Ramp rate must be positive
	if cfg.RampRate < 1 {
		errs = append(errs, ValidationError{
			Field:   "ramp_rate",
			Message: "must be at least 1",
		})
	}

	// Playback rate must be positive
	if cfg.PlaybackRate <= 0 {
		errs = append(errs, ValidationError{
			Field:   "playback_rate",
			Message: "must be positive",
		})
	}

	// Volume must be within [0, 1]
	if cfg.Volume < 0 || cfg.Volume > 1 {
		errs = append(errs, ValidationError{
			Field:   "volume",
			Message: fmt.Sprintf("must be between 0.0 and 1.0 (got %v)", cfg.Volume),
		})
	}

	// Heartbeat interval must be positive
	if cfg.HeartbeatInterval < 1 {
		errs = append(errs, ValidationError{
			Field:   "heartbeat_interval",
			Message: "must be at least 1 second",
		})
	}

	// Heartbeat policy must be valid
	validPolicies := map[string]bool{"position": true, "wallclock": true}
	if !validPolicies[cfg.HeartbeatPolicy] {
		errs = append(errs, ValidationError{
			Field:   "heartbeat_policy",
			Message: fmt.Sprintf("must be 'position' or 'wallclock' (got %q)", cfg.HeartbeatPolicy),
		})
	}

	// Queue sizes must be positive
	if cfg.PendingQueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "pending_queue_size",
			Message: "must be at least 1",
		})
	}
	if cfg.DispatchBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "dispatch_buffer",
			Message: "must be at least 1",
		})
	}

	// Engine must be valid
	validEngines := map[string]bool{"probe": true, "scripted": true}
	if !validEngines[cfg.Engine] {
		errs = append(errs, ValidationError{
			Field:   "engine",
			Message: fmt.Sprintf("must be 'probe' or 'scripted' (got %q)", cfg.Engine),
		})
	}

	// Recovery bound must be non-negative
	if cfg.MaxRecoveries < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_recoveries",
			Message: "must be >= 0",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Timeout must be positive
	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	// Retry settings
	if cfg.OpenRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "open_retries",
			Message: "must be >= 0",
		})
	}
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	// Asset polling
	if !cfg.SkipPreflight {
		if cfg.AssetPollInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "asset_poll_interval",
				Message: "must be positive",
			})
		}
		if cfg.AssetPollTimeout < cfg.AssetPollInterval {
			errs = append(errs, ValidationError{
				Field:   "asset_poll_timeout",
				Message: "must be >= asset_poll_interval",
			})
		}
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
