package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sydlexius/tracksignal/internal/watcher"
)

// Track used by test-track when the caller sends neither artist nor title.
const (
	sampleArtist = "Daft Punk"
	sampleTitle  = "Get Lucky"
)

func (r *Router) handleTestTrack(w http.ResponseWriter, req *http.Request) {
	var body struct {
		PerformerID string `json:"performer_id"`
		Artist      string `json:"artist"`
		Title       string `json:"title"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Artist) == "" && strings.TrimSpace(body.Title) == "" {
		body.Artist, body.Title = sampleArtist, sampleTitle
	}

	res, err := r.manager.TestTrack(req.Context(), strings.TrimSpace(body.PerformerID), body.Artist, body.Title)
	if err != nil {
		r.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCheckSource reports whether a live playlist is public right now.
func (r *Router) handleCheckSource(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := r.remote
	cfg.Username = strings.TrimSpace(body.Username)
	if err := watcher.ValidateUsername(cfg.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := watcher.CheckRemote(req.Context(), cfg)
	if err != nil {
		if errors.Is(err, watcher.ErrInvalidUsername) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Warn("checking live playlist", "username", cfg.Username, "error", err)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDiscoverSources lists now-playing text files, newest first. Repeated
// "pattern" query parameters replace the configured search patterns.
func (r *Router) handleDiscoverSources(w http.ResponseWriter, req *http.Request) {
	patterns := req.URL.Query()["pattern"]
	if len(patterns) == 0 {
		patterns = r.searchPatterns
	}
	files, err := watcher.DiscoverTextFiles(patterns)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if files == nil {
		files = []watcher.FileCandidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"count": len(files),
	})
}
