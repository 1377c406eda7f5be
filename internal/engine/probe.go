package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/randomizedcoder/go-hls-qoe/internal/media"
)

// probeReadLimit bounds how much of the manifest body is drained. The probe
// only needs to know the stream is reachable; it never parses the payload.
const probeReadLimit = 256 * 1024

// ProbeEngine verifies the stream is reachable over HTTP and reports
// manifest-parsed with a duration hint taken from asset metadata.
//
// It exposes no quality ladder: rendition selection belongs to a real
// adaptive engine, which this probe stands in for when measuring the
// session/telemetry pipeline against a live backend.
type ProbeEngine struct {
	httpClient *http.Client
	logger     *slog.Logger

	// durationHint is the asset duration from backend metadata, reported in
	// the manifest_parsed event since the probe does not inspect the payload.
	durationHint float64

	mu       sync.Mutex
	handlers map[EventName][]Handler
	element  media.Element

	cancel      context.CancelFunc
	destroyOnce sync.Once
}

// NewProbeEngine creates a probe engine. durationHint may be zero if the
// asset duration is unknown.
func NewProbeEngine(timeout time.Duration, durationHint float64, logger *slog.Logger) *ProbeEngine {
	return &ProbeEngine{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:       logger,
		durationHint: durationHint,
		handlers:     make(map[EventName][]Handler),
	}
}

// IsSupported always returns true; plain HTTP is available everywhere.
func (p *ProbeEngine) IsSupported() bool { return true }

// AttachMedia binds the engine to a media element.
func (p *ProbeEngine) AttachMedia(el media.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.element != nil {
		return fmt.Errorf("probe engine: media already attached")
	}
	p.element = el
	return nil
}

// On registers a handler for an event name.
func (p *ProbeEngine) On(name EventName, fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], fn)
}

// Levels returns an empty ladder; the probe never learns renditions.
func (p *ProbeEngine) Levels() []QualityLevel { return nil }

// LoadSource fetches the manifest URI in the background and emits
// manifest_parsed on success or a fatal error event on failure.
func (p *ProbeEngine) LoadSource(ctx context.Context, uri string) error {
	p.mu.Lock()
	if p.element == nil {
		p.mu.Unlock()
		return fmt.Errorf("probe engine: no media attached")
	}
	if p.cancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("probe engine: source already loading")
	}
	loadCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.probe(loadCtx, uri)
	return nil
}

// probe performs the HTTP fetch and event dispatch.
func (p *ProbeEngine) probe(ctx context.Context, uri string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		p.emit(Event{Name: EventError, Fatal: true, Err: err})
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.emit(Event{Name: EventError, Fatal: true, Err: fmt.Errorf("manifest fetch: %w", err)})
		return
	}
	defer resp.Body.Close()

	// Drain a bounded prefix so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, probeReadLimit))

	if resp.StatusCode != http.StatusOK {
		p.emit(Event{
			Name:  EventError,
			Fatal: true,
			Err:   fmt.Errorf("manifest fetch: server returned %d", resp.StatusCode),
		})
		return
	}

	p.logger.Debug("manifest_reachable", "uri", uri, "content_type", resp.Header.Get("Content-Type"))
	p.emit(Event{Name: EventManifestParsed, Duration: p.durationHint})
}

// Destroy aborts any in-flight fetch. Idempotent.
func (p *ProbeEngine) Destroy() {
	p.destroyOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.element = nil
		p.handlers = make(map[EventName][]Handler)
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
	})
}

// emit delivers an event to registered handlers.
func (p *ProbeEngine) emit(ev Event) {
	p.mu.Lock()
	handlers := append([]Handler(nil), p.handlers[ev.Name]...)
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
