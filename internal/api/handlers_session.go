package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sydlexius/tracksignal/internal/history"
	"github.com/sydlexius/tracksignal/internal/pipeline"
)

// sessionBody is the JSON form of pipeline.SessionConfig. Durations are Go
// duration strings such as "5s".
type sessionBody struct {
	SourceID     string `json:"source_id"`
	Kind         string `json:"kind"`
	PerformerID  string `json:"performer_id"`
	Path         string `json:"path"`
	Username     string `json:"username"`
	PollInterval string `json:"poll_interval"`
	DedupeWindow string `json:"dedupe_window"`
	FetchTimeout string `json:"fetch_timeout"`
}

func (b sessionBody) config() (pipeline.SessionConfig, error) {
	cfg := pipeline.SessionConfig{
		SourceID:    strings.TrimSpace(b.SourceID),
		Kind:        strings.TrimSpace(b.Kind),
		PerformerID: strings.TrimSpace(b.PerformerID),
		Path:        strings.TrimSpace(b.Path),
		Username:    strings.TrimSpace(b.Username),
	}
	if cfg.Kind == "" {
		cfg.Kind = pipeline.KindAuto
	}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"poll_interval", b.PollInterval, &cfg.PollInterval},
		{"dedupe_window", b.DedupeWindow, &cfg.DedupeWindow},
		{"fetch_timeout", b.FetchTimeout, &cfg.FetchTimeout},
	} {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q", d.name, d.in)
		}
		*d.out = v
	}
	return cfg, nil
}

func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.manager.Sessions())
}

func (r *Router) handleStartSession(w http.ResponseWriter, req *http.Request) {
	var body sessionBody
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := body.config()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := r.manager.StartSession(req.Context(), cfg)
	if err != nil {
		r.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	info, ok := r.manager.Session(req.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleStopSession is idempotent: stopping an unknown or already stopped
// session succeeds.
func (r *Router) handleStopSession(w http.ResponseWriter, req *http.Request) {
	r.manager.StopSession(req.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (r *Router) handleNowPlaying(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if _, ok := r.manager.Session(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	t, ok := r.manager.CurrentTrack(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleInjectSignal runs raw text through a session as if its watcher had
// captured it. JSON bodies carry the text in "text"; any other content type
// is taken verbatim.
func (r *Router) handleInjectSignal(w http.ResponseWriter, req *http.Request) {
	var text string
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(w, req, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		text = body.Text
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
			return
		}
		text = string(data)
	}

	res, err := r.manager.InjectTestSignal(req.Context(), req.PathValue("id"), text)
	if err != nil {
		r.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSessionHistory lists stored plays. History outlives the session, so
// stopped sessions can still be queried.
func (r *Router) handleSessionHistory(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := r.historyService.Recent(req.Context(), req.PathValue("id"), limit)
	if err != nil {
		r.logger.Error("listing history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
