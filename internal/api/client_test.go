package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", 2*time.Second, logging.NewNop()), srv
}

func TestCreateSession(t *testing.T) {
	var gotBody map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions" {
			t.Errorf("path = %q, want /sessions", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":        "sess-1",
			"asset_id":  gotBody["asset_id"],
			"viewer_id": gotBody["viewer_id"],
		})
	}))

	sess, err := client.CreateSession(context.Background(), "asset-1", "viewer-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID != "sess-1" {
		t.Errorf("session ID = %q, want %q", sess.ID, "sess-1")
	}
	if gotBody["asset_id"] != "asset-1" || gotBody["viewer_id"] != "viewer-1" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestCreateSession_EmptyID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": ""})
	}))

	if _, err := client.CreateSession(context.Background(), "a", "v"); err == nil {
		t.Error("Expected error for empty session id")
	}
}

func TestCreateSession_BackendError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))

	_, err := client.CreateSession(context.Background(), "a", "v")
	if err == nil {
		t.Fatal("Expected error")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %T: %v", err, err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", se.Code)
	}
}

func TestTrackEvent(t *testing.T) {
	var got EventRecord
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analytics/events" {
			t.Errorf("path = %q, want /analytics/events", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	}))

	rec := EventRecord{
		SessionID: "sess-1",
		EventType: "heartbeat",
		Data:      map[string]any{"position": 10.0},
	}
	if err := client.TrackEvent(context.Background(), rec); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
	if got.SessionID != "sess-1" || got.EventType != "heartbeat" {
		t.Errorf("got record %+v", got)
	}
	if got.Data["position"] != 10.0 {
		t.Errorf("Data = %v", got.Data)
	}
}

func TestGetAsset(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video/assets/asset-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", auth)
		}
		_ = json.NewEncoder(w).Encode(Asset{
			ID:       "asset-1",
			Status:   AssetReady,
			Duration: 120.5,
		})
	}))

	asset, err := client.GetAsset(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Status != AssetReady {
		t.Errorf("Status = %q, want ready", asset.Status)
	}
	if asset.Duration != 120.5 {
		t.Errorf("Duration = %v, want 120.5", asset.Duration)
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "asset not found", http.StatusNotFound)
	}))

	_, err := client.GetAsset(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("Expected 404 StatusError, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestPlaybackURL(t *testing.T) {
	client := New("http://backend:8000/v1/", "", time.Second, logging.NewNop())

	got := client.PlaybackURL("asset-1")
	want := "http://backend:8000/v1/video/assets/asset-1/playback"
	if got != want {
		t.Errorf("PlaybackURL = %q, want %q", got, want)
	}
}

func TestAssetStatus_Terminal(t *testing.T) {
	testCases := []struct {
		status   AssetStatus
		terminal bool
	}{
		{AssetUploading, false},
		{AssetProcessing, false},
		{AssetReady, false},
		{AssetFailed, true},
		{AssetDeleted, true},
	}

	for _, tc := range testCases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Health(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
