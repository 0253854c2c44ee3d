package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/version"
)

const requestTimeout = 10 * time.Second

// Dispatcher sends events to matching webhooks. Each delivery is attempted
// exactly once: a failed notification is logged and dropped, never retried,
// so a requester is not told about a track that has since changed.
type Dispatcher struct {
	service    *Service
	httpClient *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(service *Service, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(service, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(service *Service, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		service:    service,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
	}
}

// HandleEvent is an event.Handler that dispatches the event to all matching webhooks.
func (d *Dispatcher) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	webhooks, err := d.service.ListByEvent(ctx, e.Type)
	if err != nil {
		d.logger.Error("listing webhooks for event", "type", string(e.Type), "error", err)
		return
	}

	for i := range webhooks {
		w := webhooks[i]
		d.wg.Go(func() { d.deliver(w, e) })
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Test sends a sample event to w synchronously and returns the outcome.
func (d *Dispatcher) Test(ctx context.Context, w *Webhook) error {
	e := event.Event{
		Type:      event.TrackDetected,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			event.KeyMessage: "Test notification from TrackSignal",
		},
	}
	body, contentType := formatPayload(w, e)
	return d.send(ctx, w.URL, body, contentType)
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := d.send(ctx, w.URL, body, contentType); err != nil {
		d.logger.Warn("webhook delivery failed",
			"webhook", w.Name,
			"event", string(e.Type),
			"error", err,
		)
		return
	}
	d.logger.Debug("webhook delivered",
		"webhook", w.Name,
		"event", string(e.Type),
	)
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent()+" webhook")

	resp, err := d.httpClient.Do(req) //nolint:gosec // URL is operator configuration
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
