package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScrubQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"limit=5", "limit=5"},
		{"api_token=abc&limit=5", "api_token=REDACTED&limit=5"},
		{"flag&Secret=x", "flag&Secret=REDACTED"},
	}
	for _, tt := range tests {
		if got := scrubQuery(tt.in); got != tt.want {
			t.Errorf("scrubQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream")) //nolint:errcheck
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?token=abc", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "status=502", "bytes=8", "token=REDACTED"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestLogging_HealthAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	handler := Logging(logger)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health probe logged at info: %s", buf.String())
	}
}
