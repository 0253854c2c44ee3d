package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveSecured(t *testing.T, req *http.Request, status int) *httptest.ResponseRecorder {
	t.Helper()
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_JSONAPIHeaders(t *testing.T) {
	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": contentSecurityPolicy,
	}

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		w := serveSecured(t, req, status)
		if w.Code != status {
			t.Errorf("status = %d, want %d", w.Code, status)
		}
		for header, v := range want {
			if got := w.Header().Get(header); got != v {
				t.Errorf("status %d: %s = %q, want %q", status, header, got, v)
			}
		}
	}
}

func TestSecurityHeaders_CSPForbidsEverything(t *testing.T) {
	w := serveSecured(t, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK)
	csp := w.Header().Get("Content-Security-Policy")

	directives := map[string]string{}
	for _, part := range strings.Split(csp, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		directives[fields[0]] = strings.Join(fields[1:], " ")
	}
	for _, name := range []string{"default-src", "frame-ancestors", "base-uri", "form-action"} {
		if got, ok := directives[name]; !ok || got != "'none'" {
			t.Errorf("%s = %q, want 'none' (csp %q)", name, got, csp)
		}
	}
	if len(directives) != 4 {
		t.Errorf("unexpected directives in %q", csp)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name      string
		tls       bool
		forwarded string
		want      bool
	}{
		{"plain http", false, "", false},
		{"direct tls", true, "", true},
		{"forwarded https", false, "https", true},
		{"forwarded https upper case", false, "HTTPS", true},
		{"forwarded http", false, "http", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/api/v1/health", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			hsts := serveSecured(t, req, http.StatusOK).Header().Get("Strict-Transport-Security")
			if tt.want && hsts != "max-age=31536000" {
				t.Errorf("HSTS = %q, want max-age=31536000", hsts)
			}
			if !tt.want && hsts != "" {
				t.Errorf("HSTS should be unset, got %q", hsts)
			}
		})
	}
}

func TestSecurityHeaders_BodyPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{}`))
	w := serveSecured(t, req, http.StatusCreated)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, handler headers should survive", got)
	}
}
