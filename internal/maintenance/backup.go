package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

const backupTimeLayout = "20060102-150405"

// backupPattern matches snapshot names: tracksignal-YYYYMMDD-HHMMSS.db
var backupPattern = regexp.MustCompile(`^tracksignal-\d{8}-\d{6}\.db$`)

// ErrBackupsDisabled is returned when no backup directory is configured.
var ErrBackupsDisabled = errors.New("backups are disabled")

// BackupInfo describes a snapshot file.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Backup writes a consistent snapshot of the database with VACUUM INTO.
func (s *Service) Backup(ctx context.Context) (*BackupInfo, error) {
	if s.backupDir == "" {
		return nil, ErrBackupsDisabled
	}
	if err := os.MkdirAll(s.backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().UTC()
	filename := "tracksignal-" + now.Format(backupTimeLayout) + ".db"
	dest := filepath.Join(s.backupDir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}

	s.mu.Lock()
	s.lastBackupAt = now
	s.mu.Unlock()

	s.logger.Info("backup complete", slog.String("filename", filename), slog.Int64("size", info.Size()))
	return &BackupInfo{Filename: filename, Size: info.Size(), CreatedAt: now}, nil
}

// ListBackups returns snapshot files, newest first.
func (s *Service) ListBackups() ([]BackupInfo, error) {
	if s.backupDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !backupPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "tracksignal-"), ".db")
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			ts = info.ModTime()
		}
		backups = append(backups, BackupInfo{Filename: entry.Name(), Size: info.Size(), CreatedAt: ts})
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return backups, nil
}

// Prune removes the oldest snapshots beyond the retention count and returns
// how many were deleted. A non-positive count keeps everything.
func (s *Service) Prune() (int, error) {
	if s.keep <= 0 {
		return 0, nil
	}
	backups, err := s.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[s.keep:] {
		if err := os.Remove(filepath.Join(s.backupDir, b.Filename)); err != nil {
			s.logger.Warn("removing old backup", slog.String("filename", b.Filename), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("pruned old backups", slog.Int("removed", removed), slog.Int("keep", s.keep))
	}
	return removed, nil
}

// IsValidBackupFilename reports whether filename is a snapshot name with no
// path components.
func IsValidBackupFilename(filename string) bool {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return false
	}
	return backupPattern.MatchString(filename)
}
