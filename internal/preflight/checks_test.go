package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/api"
	"github.com/randomizedcoder/go-hls-qoe/internal/logging"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})
}

// assetServer serves /health and a single asset whose status can change
// between polls.
type assetServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	status  api.AssetStatus
	healthy bool
	polls   int
}

func newAssetServer(t *testing.T, status api.AssetStatus) *assetServer {
	t.Helper()
	s := &assetServer{status: status, healthy: true}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		healthy := s.healthy
		s.mu.Unlock()
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /video/assets/asset-1", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.polls++
		status := s.status
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.Asset{
			ID:       "asset-1",
			Status:   status,
			Duration: 60,
		})
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *assetServer) setStatus(status api.AssetStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *assetServer) client() *api.Client {
	return api.New(s.srv.URL, "", 2*time.Second, logging.NewNop())
}

func TestRunAll_HealthyBackendReadyAsset(t *testing.T) {
	srv := newAssetServer(t, api.AssetReady)

	result := RunAll(context.Background(), srv.client(), "asset-1", 2)
	if !result.Passed {
		t.Fatalf("RunAll failed: %+v", result.Checks)
	}

	names := map[string]bool{}
	for _, check := range result.Checks {
		names[check.Name] = true
	}
	for _, want := range []string{"file_descriptors", "backend_health", "asset"} {
		if !names[want] {
			t.Errorf("missing check %q", want)
		}
	}
}

func TestRunAll_UnreachableBackendFails(t *testing.T) {
	client := api.New("http://127.0.0.1:1", "", 200*time.Millisecond, logging.NewNop())

	result := RunAll(context.Background(), client, "asset-1", 1)
	if result.Passed {
		t.Error("RunAll should fail with an unreachable backend")
	}

	// Asset check is skipped when the backend is down.
	for _, check := range result.Checks {
		if check.Name == "asset" {
			t.Error("asset check should be skipped when health fails")
		}
	}
}

func TestRunAll_TerminalAssetFails(t *testing.T) {
	srv := newAssetServer(t, api.AssetFailed)

	result := RunAll(context.Background(), srv.client(), "asset-1", 1)
	if result.Passed {
		t.Error("RunAll should fail for an asset that can never become ready")
	}
}

func TestRunAll_ProcessingAssetWarns(t *testing.T) {
	srv := newAssetServer(t, api.AssetProcessing)

	result := RunAll(context.Background(), srv.client(), "asset-1", 1)
	if !result.Passed {
		t.Fatal("a still-processing asset should pass preflight with a warning")
	}

	for _, check := range result.Checks {
		if check.Name == "asset" && !check.Warning {
			t.Error("processing asset should be flagged as a warning")
		}
	}
}

func TestWaitAssetReady_BecomesReady(t *testing.T) {
	srv := newAssetServer(t, api.AssetProcessing)

	// Flip to ready after the first poll lands.
	go func() {
		time.Sleep(30 * time.Millisecond)
		srv.setStatus(api.AssetReady)
	}()

	asset, err := WaitAssetReady(context.Background(), srv.client(), "asset-1",
		10*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitAssetReady() error = %v", err)
	}
	if asset.Status != api.AssetReady {
		t.Errorf("status = %s, want ready", asset.Status)
	}
}

func TestWaitAssetReady_TerminalStatus(t *testing.T) {
	srv := newAssetServer(t, api.AssetDeleted)

	_, err := WaitAssetReady(context.Background(), srv.client(), "asset-1",
		10*time.Millisecond, time.Second)
	if err == nil {
		t.Fatal("WaitAssetReady() = nil, want error for deleted asset")
	}
	if !strings.Contains(err.Error(), "deleted") {
		t.Errorf("error %q should name the terminal status", err)
	}
}

func TestWaitAssetReady_Timeout(t *testing.T) {
	srv := newAssetServer(t, api.AssetProcessing)

	_, err := WaitAssetReady(context.Background(), srv.client(), "asset-1",
		20*time.Millisecond, 50*time.Millisecond)
	if err == nil {
		t.Fatal("WaitAssetReady() = nil, want timeout error")
	}
}

func TestWaitAssetReady_ContextCancel(t *testing.T) {
	srv := newAssetServer(t, api.AssetProcessing)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WaitAssetReady(ctx, srv.client(), "asset-1",
		time.Second, time.Minute)
	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	check1 := checkFileDescriptors(1)
	check100 := checkFileDescriptors(100)

	if check1.Name != "file_descriptors" {
		t.Errorf("Name = %q, want file_descriptors", check1.Name)
	}
	if check1.Actual <= 0 {
		t.Errorf("Actual should be positive: %d", check1.Actual)
	}
	if check100.Required <= check1.Required {
		t.Error("Required FDs should increase with more sessions")
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"backend_health", "-api-url"},
		{"asset", "-asset-id"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

// TestPrintResults just verifies no panic - output goes to stdout
func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "test2", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	PrintResults(result)
}
