package api

import (
	"net/http"

	"github.com/sydlexius/tracksignal/internal/logging"
)

func (r *Router) handleGetLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}
	writeJSON(w, http.StatusOK, r.logManager.Config())
}

// handleUpdateLogging changes logging at runtime. Omitted fields keep their
// current values. Changes are not written back to the config file.
func (r *Router) handleUpdateLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}

	var cfg logging.Config
	if err := decodeJSON(w, req, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg = cfg.Merge(r.logManager.Config())
	r.logManager.Reconfigure(cfg)
	r.logger.Info("logging reconfigured", "config", cfg.String())
	writeJSON(w, http.StatusOK, cfg)
}
