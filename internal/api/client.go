// Package api provides the HTTP client for the video backend.
//
// The backend is a Mux-style video API:
//   - POST /sessions creates a playback session for analytics scoping
//   - POST /analytics/events ingests analytics events (best-effort)
//   - GET  /video/assets/{id} returns asset metadata including status
//   - GET  /video/assets/{id}/playback returns or redirects to the manifest
//   - GET  /health is a liveness probe
//
// Asset endpoints may require a bearer API key; analytics ingestion does not.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AssetStatus is the backend's asset processing state.
type AssetStatus string

const (
	AssetUploading  AssetStatus = "uploading"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
	AssetDeleted    AssetStatus = "deleted"
)

// Terminal reports whether the status can never become ready.
func (s AssetStatus) Terminal() bool {
	return s == AssetFailed || s == AssetDeleted
}

// Asset is the backend's asset metadata.
type Asset struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	Status      AssetStatus `json:"status"`
	Duration    float64     `json:"duration"`
	PlaybackURL string      `json:"playback_url"`
}

// Session is the backend's playback session record.
type Session struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	ViewerID  string    `json:"viewer_id"`
	StartedAt time.Time `json:"started_at"`
}

// EventRecord is the wire shape for one analytics event.
type EventRecord struct {
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// StatusError is returned when the backend responds with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// maxErrorBody bounds how much of an error response body is retained.
const maxErrorBody = 512

// Client talks to the video backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a backend client. baseURL has no trailing slash requirement;
// apiKey may be empty if the backend does not require auth.
func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CreateSession opens a playback session for the asset and viewer.
func (c *Client) CreateSession(ctx context.Context, assetID, viewerID string) (*Session, error) {
	body := map[string]string{
		"asset_id":  assetID,
		"viewer_id": viewerID,
	}

	var sess Session
	if err := c.postJSON(ctx, "/sessions", body, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("create session: backend returned empty session id")
	}
	return &sess, nil
}

// TrackEvent delivers one analytics event. The response body is ignored
// beyond status checking; delivery is best-effort from the caller's side.
func (c *Client) TrackEvent(ctx context.Context, rec EventRecord) error {
	if err := c.postJSON(ctx, "/analytics/events", rec, nil); err != nil {
		return fmt.Errorf("track event %s: %w", rec.EventType, err)
	}
	return nil
}

// GetAsset fetches asset metadata.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/video/assets/"+assetID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get asset: %w", statusError(resp))
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("get asset: decode: %w", err)
	}
	return &asset, nil
}

// PlaybackURL returns the manifest URL for an asset. The backend serves or
// redirects to the stream from this endpoint; the player hands it to the
// engine unopened.
func (c *Client) PlaybackURL(assetID string) string {
	return c.baseURL + "/video/assets/" + assetID + "/playback"
}

// Health checks the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %w", statusError(resp))
	}
	return nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// postJSON sends a JSON body and optionally decodes a JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return nil
}

// authorize attaches the bearer token when configured.
func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// statusError builds a StatusError from a non-2xx response, retaining a
// bounded prefix of the body for diagnostics.
func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
}
