package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sydlexius/tracksignal/internal/database"
	"github.com/sydlexius/tracksignal/internal/pipeline"
	"github.com/sydlexius/tracksignal/internal/version"
)

// maxBodyBytes bounds JSON request bodies. Injected signals carry whole
// playlist pages, so this is larger than a typical form.
const maxBodyBytes = 4 << 20

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"commit":   version.Commit,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sessions": 0,
	}
	if r.manager != nil {
		body["sessions"] = len(r.manager.Sessions())
	}
	if r.db != nil {
		if err := database.Healthy(req.Context(), r.db); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else if v, err := database.SchemaVersion(r.db); err == nil {
			body["schema_version"] = v
		}
	}
	writeJSON(w, status, body)
}

// writePipelineError maps pipeline errors to HTTP statuses.
func (r *Router) writePipelineError(w http.ResponseWriter, err error) {
	var cfgErr *pipeline.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.Is(err, pipeline.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		r.logger.Error("pipeline call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(req *http.Request, key string) (int, error) {
	v := req.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
