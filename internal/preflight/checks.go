// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks against the backend and the local
// environment.
func RunAll(ctx context.Context, client *api.Client, assetID string, targetSessions int) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	fdCheck := checkFileDescriptors(targetSessions)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	healthCheck := checkBackendHealth(ctx, client)
	result.Checks = append(result.Checks, healthCheck)
	if !healthCheck.Passed {
		result.Passed = false
	}

	// Asset lookup only makes sense with a reachable backend.
	if healthCheck.Passed {
		assetCheck := checkAsset(ctx, client, assetID)
		result.Checks = append(result.Checks, assetCheck)
		if !assetCheck.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(sessions int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each session holds a few sockets (analytics posts, manifest fetches)
	// plus headroom for the metrics listener and logging.
	required := sessions*8 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d sessions)", actual, required, sessions),
	}
}

// checkBackendHealth verifies the backend liveness endpoint responds.
func checkBackendHealth(ctx context.Context, client *api.Client) Check {
	if err := client.Health(ctx); err != nil {
		return Check{
			Name:    "backend_health",
			Passed:  false,
			Message: fmt.Sprintf("%s unreachable: %v", client.BaseURL(), err),
		}
	}
	return Check{
		Name:    "backend_health",
		Passed:  true,
		Message: fmt.Sprintf("%s responding", client.BaseURL()),
	}
}

// checkAsset verifies the asset exists and is not in a terminal failure state.
// A still-processing asset passes with a warning; WaitAssetReady handles the
// wait.
func checkAsset(ctx context.Context, client *api.Client, assetID string) Check {
	asset, err := client.GetAsset(ctx, assetID)
	if err != nil {
		return Check{
			Name:    "asset",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", assetID, err),
		}
	}

	switch {
	case asset.Status == api.AssetReady:
		return Check{
			Name:    "asset",
			Passed:  true,
			Message: fmt.Sprintf("%s ready (duration %.1fs)", assetID, asset.Duration),
		}
	case asset.Status.Terminal():
		return Check{
			Name:    "asset",
			Passed:  false,
			Message: fmt.Sprintf("%s status %s, will never become ready", assetID, asset.Status),
		}
	default:
		return Check{
			Name:    "asset",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s status %s, waiting for ready", assetID, asset.Status),
		}
	}
}

// WaitAssetReady polls the asset until it is ready, the status turns
// terminal, or the timeout elapses. Returns the ready asset.
func WaitAssetReady(ctx context.Context, client *api.Client, assetID string, interval, timeout time.Duration) (*api.Asset, error) {
	deadline := time.Now().Add(timeout)

	for {
		asset, err := client.GetAsset(ctx, assetID)
		if err != nil {
			return nil, fmt.Errorf("wait asset ready: %w", err)
		}

		if asset.Status == api.AssetReady {
			return asset, nil
		}
		if asset.Status.Terminal() {
			return nil, fmt.Errorf("wait asset ready: asset %s is %s", assetID, asset.Status)
		}

		if time.Now().Add(interval).After(deadline) {
			return nil, fmt.Errorf("wait asset ready: asset %s still %s after %v", assetID, asset.Status, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "backend_health":
		return "check -api-url and that the backend is running"
	case "asset":
		return "check -asset-id, or re-upload the asset"
	default:
		return "see documentation"
	}
}
