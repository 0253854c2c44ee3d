package api

import (
	"errors"
	"net/http"

	"github.com/sydlexius/tracksignal/internal/maintenance"
)

func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusNotFound, "maintenance is not configured")
		return
	}
	st, err := r.maintenance.Status(req.Context())
	if err != nil {
		r.logger.Error("reading maintenance status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (r *Router) handleOptimize(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusNotFound, "maintenance is not configured")
		return
	}
	if err := r.maintenance.Optimize(req.Context()); err != nil {
		r.logger.Error("optimizing database", "error", err)
		writeError(w, http.StatusInternalServerError, "optimize failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "optimized"})
}

func (r *Router) handleVacuum(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusNotFound, "maintenance is not configured")
		return
	}
	if err := r.maintenance.Vacuum(req.Context()); err != nil {
		r.logger.Error("vacuuming database", "error", err)
		writeError(w, http.StatusInternalServerError, "vacuum failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "vacuumed"})
}

func (r *Router) handleListBackups(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeJSON(w, http.StatusOK, []maintenance.BackupInfo{})
		return
	}
	backups, err := r.maintenance.ListBackups()
	if err != nil {
		r.logger.Error("listing backups", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if backups == nil {
		backups = []maintenance.BackupInfo{}
	}
	writeJSON(w, http.StatusOK, backups)
}

// handleCreateBackup snapshots the database and prunes old snapshots.
func (r *Router) handleCreateBackup(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusConflict, maintenance.ErrBackupsDisabled.Error())
		return
	}
	info, err := r.maintenance.Backup(req.Context())
	if err != nil {
		if errors.Is(err, maintenance.ErrBackupsDisabled) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		r.logger.Error("creating backup", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	if _, err := r.maintenance.Prune(); err != nil {
		r.logger.Warn("pruning backups", "error", err)
	}
	writeJSON(w, http.StatusCreated, info)
}
