package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/tracksignal/internal/database"
	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/track"
)

func setupDispatcherTest(t *testing.T) (*Service, *slog.Logger) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(db), logger
}

// payloadServer records the last JSON body it received.
type payloadServer struct {
	*httptest.Server
	mu       sync.Mutex
	received map[string]any
	hits     atomic.Int32
	status   int
}

func newPayloadServer(t *testing.T, status int) *payloadServer {
	t.Helper()
	ps := &payloadServer{status: status}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		ps.mu.Lock()
		json.NewDecoder(r.Body).Decode(&ps.received) //nolint:errcheck
		ps.mu.Unlock()
		w.WriteHeader(ps.status)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *payloadServer) body() map[string]any {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.received
}

func detectedEvent() event.Event {
	return event.Event{
		Type:      event.TrackDetected,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			event.KeySession: "deck",
			event.KeyTrack:   track.Track{ID: "trk-1", Artist: "Daft Punk", Title: "Get Lucky"},
		},
	}
}

func TestDispatcher_GenericWebhook(t *testing.T) {
	svc, logger := setupDispatcherTest(t)
	srv := newPayloadServer(t, http.StatusOK)

	w := &Webhook{
		Name:    "test",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"track.detected"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(detectedEvent())
	dispatcher.Wait()

	received := srv.body()
	if received == nil {
		t.Fatal("expected to receive webhook payload")
	}
	if received["event"] != "track.detected" {
		t.Errorf("event = %v, want track.detected", received["event"])
	}
	data := received["data"].(map[string]any)
	tr := data["track"].(map[string]any)
	if tr["title"] != "Get Lucky" {
		t.Errorf("data.track.title = %v", tr["title"])
	}
}

func TestDispatcher_DiscordFormat(t *testing.T) {
	svc, logger := setupDispatcherTest(t)
	srv := newPayloadServer(t, http.StatusOK)

	w := &Webhook{
		Name:    "discord",
		URL:     srv.URL,
		Type:    TypeDiscord,
		Events:  []string{"source.unavailable"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(event.Event{
		Type:      event.SourceUnavailable,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{event.KeyMessage: "live playlist is not public yet"},
	})
	dispatcher.Wait()

	received := srv.body()
	if received == nil {
		t.Fatal("expected to receive webhook payload")
	}
	embeds, ok := received["embeds"].([]any)
	if !ok || len(embeds) == 0 {
		t.Fatal("expected discord embeds array")
	}
	embed := embeds[0].(map[string]any)
	if embed["description"] != "live playlist is not public yet" {
		t.Errorf("description = %v", embed["description"])
	}
	if embed["title"] != "TrackSignal: Source unavailable" {
		t.Errorf("title = %v", embed["title"])
	}
}

func TestDispatcher_NoRetryOn500(t *testing.T) {
	svc, logger := setupDispatcherTest(t)
	srv := newPayloadServer(t, http.StatusInternalServerError)

	w := &Webhook{
		Name:    "no-retry",
		URL:     srv.URL,
		Type:    TypeGeneric,
		Events:  []string{"request.matched"},
		Enabled: true,
	}
	if err := svc.Create(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(event.Event{Type: event.RequestMatched, Timestamp: time.Now().UTC()})
	dispatcher.Wait()
	time.Sleep(50 * time.Millisecond)

	if got := srv.hits.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDispatcher_NoMatchingWebhooks(t *testing.T) {
	svc, logger := setupDispatcherTest(t)
	srv := newPayloadServer(t, http.StatusOK)

	for _, w := range []*Webhook{
		{Name: "other", URL: srv.URL, Events: []string{"request.matched"}, Enabled: true},
		{Name: "disabled", URL: srv.URL, Events: []string{"track.detected"}, Enabled: false},
	} {
		if err := svc.Create(context.Background(), w); err != nil {
			t.Fatal(err)
		}
	}

	dispatcher := NewDispatcherWithHTTPClient(svc, srv.Client(), logger)
	dispatcher.HandleEvent(detectedEvent())
	dispatcher.Wait()

	if got := srv.hits.Load(); got != 0 {
		t.Errorf("hits = %d, want 0", got)
	}
}

func TestDispatcher_Test(t *testing.T) {
	svc, logger := setupDispatcherTest(t)
	ok := newPayloadServer(t, http.StatusOK)
	bad := newPayloadServer(t, http.StatusBadRequest)
	dispatcher := NewDispatcherWithHTTPClient(svc, ok.Client(), logger)

	if err := dispatcher.Test(context.Background(), &Webhook{URL: ok.URL, Type: TypeGotify}); err != nil {
		t.Fatal(err)
	}
	if msg := ok.body()["message"]; msg != "Test notification from TrackSignal" {
		t.Errorf("message = %v", msg)
	}
	if err := dispatcher.Test(context.Background(), &Webhook{URL: bad.URL, Type: TypeGeneric}); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestFormatDescription(t *testing.T) {
	matched := event.Event{
		Type: event.RequestMatched,
		Data: map[string]any{
			event.KeyTrack:   track.Track{Artist: "Daft Punk", Title: "Get Lucky"},
			event.KeyMatch:   track.MatchResult{Score: 0.91},
			event.KeyRequest: track.PendingRequest{Artist: "daft punk", Title: "get lucky radio edit"},
		},
	}
	got := formatDescription(matched)
	for _, want := range []string{"Daft Punk - Get Lucky", "get lucky radio edit", "0.91"} {
		if !strings.Contains(got, want) {
			t.Errorf("description %q missing %q", got, want)
		}
	}

	if got := formatDescription(detectedEvent()); got != "Daft Punk - Get Lucky" {
		t.Errorf("detected description = %q", got)
	}
	if got := formatDescription(event.Event{Type: event.SessionStarted}); got != "session.started" {
		t.Errorf("empty description = %q", got)
	}
}

func TestFormatSlack(t *testing.T) {
	body, ct := formatPayload(&Webhook{Type: TypeSlack}, detectedEvent())
	if ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(payload["text"], "*TrackSignal: Now playing*") {
		t.Errorf("text = %q", payload["text"])
	}
}
