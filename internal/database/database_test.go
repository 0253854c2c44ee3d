package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenAndMigrate(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck

	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	// A second run is a no-op.
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := SchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v < 1 {
		t.Errorf("SchemaVersion = %d, want >= 1", v)
	}

	for _, table := range []string{"requests", "play_history", "webhooks"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	if err := Healthy(context.Background(), db); err != nil {
		t.Error(err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tracksignal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 1, 21, 4, 5, 123456789, time.FixedZone("x", 3600))
	got := ParseTime(FormatTime(in))
	if !got.Equal(in) {
		t.Errorf("ParseTime(FormatTime) = %v, want %v", got, in)
	}
	if FormatTime(time.Time{}) != "" {
		t.Error("zero time should format as empty")
	}
	if !ParseTime("").IsZero() {
		t.Error("empty string should parse as zero")
	}
	if ParseTime("2026-03-01 10:00:00").IsZero() {
		t.Error("sqlite datetime layout should parse")
	}

	a := FormatTime(time.Date(2026, 3, 1, 21, 4, 5, 0, time.UTC))
	b := FormatTime(time.Date(2026, 3, 1, 21, 4, 5, 500000000, time.UTC))
	if a >= b {
		t.Errorf("stored times must sort chronologically: %q >= %q", a, b)
	}
}
