// Package maintenance keeps the SQLite store healthy: query planner
// optimization, WAL checkpoints, VACUUM and point-in-time snapshots.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sydlexius/tracksignal/internal/logging"
)

// Status describes the database file and recent maintenance runs.
type Status struct {
	DBFileSize     int64     `json:"db_file_size"`
	WALFileSize    int64     `json:"wal_file_size"`
	PageCount      int64     `json:"page_count"`
	PageSize       int64     `json:"page_size"`
	FreelistCount  int64     `json:"freelist_count"`
	LastOptimizeAt time.Time `json:"last_optimize_at,omitzero"`
	LastBackupAt   time.Time `json:"last_backup_at,omitzero"`
	Backups        int       `json:"backups"`
}

// Service runs maintenance against one database.
type Service struct {
	db        *sql.DB
	dbPath    string
	backupDir string
	keep      int
	logger    *slog.Logger
	now       func() time.Time

	mu             sync.Mutex
	lastOptimizeAt time.Time
	lastBackupAt   time.Time
}

// NewService creates a maintenance service. An empty backupDir disables
// snapshots; keep is the number of snapshots retained by Prune.
func NewService(db *sql.DB, dbPath, backupDir string, keep int, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dbPath:    dbPath,
		backupDir: backupDir,
		keep:      keep,
		logger:    logging.OrDiscard(logger).With(slog.String("component", "maintenance")),
		now:       time.Now,
	}
}

// Status returns current database statistics.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	for _, p := range []struct {
		pragma string
		dst    *int64
	}{
		{"page_count", &st.PageCount},
		{"page_size", &st.PageSize},
		{"freelist_count", &st.FreelistCount},
	} {
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+p.pragma).Scan(p.dst); err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.pragma, err)
		}
	}

	s.mu.Lock()
	st.LastOptimizeAt = s.lastOptimizeAt
	st.LastBackupAt = s.lastBackupAt
	s.mu.Unlock()

	if s.backupDir != "" {
		backups, err := s.ListBackups()
		if err != nil {
			s.logger.Warn("listing backups", "error", err)
		}
		st.Backups = len(backups)
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimizeAt = s.now().UTC()
	s.mu.Unlock()

	s.logger.Debug("optimize complete")
	return nil
}

// Vacuum rebuilds the database file, returning pages freed by history pruning.
func (s *Service) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}
