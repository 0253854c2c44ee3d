package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/tracksignal/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tracksignal.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	_, err = db.Exec(`INSERT INTO requests (id, performer_id, artist, title, status, submitted_at, updated_at)
		VALUES ('r1', 'dj', 'Daft Punk', 'Get Lucky', 'new', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return db, dbPath
}

// clock returns a now func that advances one minute per call.
func clock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestStatus(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, "", 0, testLogger())

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.DBFileSize == 0 {
		t.Error("expected non-zero db file size")
	}
	if st.PageCount == 0 || st.PageSize == 0 {
		t.Errorf("page stats = %d x %d, want non-zero", st.PageCount, st.PageSize)
	}
	if !st.LastOptimizeAt.IsZero() {
		t.Error("expected zero last optimize before any run")
	}
}

func TestOptimize(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, "", 0, testLogger())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if err := svc.Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.LastOptimizeAt.Equal(fixed) {
		t.Errorf("LastOptimizeAt = %v, want %v", st.LastOptimizeAt, fixed)
	}
}

func TestVacuum(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, "", 0, testLogger())
	if err := svc.Vacuum(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
}

func TestBackup(t *testing.T) {
	db, dbPath := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, dbPath, backupDir, 3, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if !IsValidBackupFilename(info.Filename) {
		t.Errorf("filename %q does not match the backup pattern", info.Filename)
	}
	if info.Size == 0 {
		t.Error("expected non-zero backup size")
	}

	snap, err := database.Open(filepath.Join(backupDir, info.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer func() { _ = snap.Close() }()
	var title string
	if err := snap.QueryRow(`SELECT title FROM requests WHERE id = 'r1'`).Scan(&title); err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if title != "Get Lucky" {
		t.Errorf("title = %q, want Get Lucky", title)
	}

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Backups != 1 || st.LastBackupAt.IsZero() {
		t.Errorf("status = %+v, want one backup with a timestamp", st)
	}
}

func TestBackup_Disabled(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, "", 3, testLogger())
	if _, err := svc.Backup(context.Background()); !errors.Is(err, ErrBackupsDisabled) {
		t.Fatalf("err = %v, want ErrBackupsDisabled", err)
	}
	backups, err := svc.ListBackups()
	if err != nil || backups != nil {
		t.Errorf("ListBackups = %v, %v; want nil, nil", backups, err)
	}
}

func TestListBackups_NewestFirst(t *testing.T) {
	db, dbPath := setupTestDB(t)
	backupDir := t.TempDir()
	svc := NewService(db, dbPath, backupDir, 0, testLogger())
	svc.now = clock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	for range 3 {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(backupDir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("got %d backups, want 3", len(backups))
	}
	for i := 1; i < len(backups); i++ {
		if !backups[i-1].CreatedAt.After(backups[i].CreatedAt) {
			t.Errorf("backups not newest first: %v before %v", backups[i-1].CreatedAt, backups[i].CreatedAt)
		}
	}
}

func TestPrune(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, t.TempDir(), 2, testLogger())
	svc.now = clock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	var newest string
	for range 4 {
		info, err := svc.Backup(context.Background())
		if err != nil {
			t.Fatalf("Backup: %v", err)
		}
		newest = info.Filename
	}

	removed, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	backups, _ := svc.ListBackups()
	if len(backups) != 2 || backups[0].Filename != newest {
		t.Errorf("remaining = %+v, want 2 with %s first", backups, newest)
	}
}

func TestIsValidBackupFilename(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"tracksignal-20260301-120000.db", true},
		{"tracksignal-2026031-120000.db", false},
		{"other-20260301-120000.db", false},
		{"../tracksignal-20260301-120000.db", false},
		{"sub/tracksignal-20260301-120000.db", false},
		{`sub\tracksignal-20260301-120000.db`, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidBackupFilename(tt.name); got != tt.want {
			t.Errorf("IsValidBackupFilename(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScheduler_StartStop(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, t.TempDir(), 1, testLogger())

	s, err := NewScheduler(svc, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if n := len(s.scheduler.Jobs()); n != 2 {
		t.Errorf("jobs = %d, want 2", n)
	}
	s.Start()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_SkipsDisabledJobs(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, "", 1, testLogger())

	s, err := NewScheduler(svc, 0, time.Hour)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if n := len(s.scheduler.Jobs()); n != 0 {
		t.Errorf("jobs = %d, want 0", n)
	}
}
