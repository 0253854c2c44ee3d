package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sydlexius/tracksignal/internal/track"
	"github.com/sydlexius/tracksignal/internal/watcher"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	flags := []string{"--env-file", filepath.Join(dir, "missing.env")}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestParseCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nowplaying.txt")
	writeFile(t, path, "Daft Punk - Get Lucky\n")

	out, err := runCLI(t, "", "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{"ARTIST", "Daft Punk", "Get Lucky"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseCommand_StdinJSON(t *testing.T) {
	out, err := runCLI(t, "Daft Punk - Get Lucky", "parse", "--json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var cands []track.Candidate
	if err := json.Unmarshal([]byte(out), &cands); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(cands) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Errorf("best = %+v, want Daft Punk / Get Lucky", cands[0])
	}
}

func TestParseCommand_NoTrack(t *testing.T) {
	out, err := runCLI(t, "   \n", "parse")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, "No track found.") {
		t.Errorf("output = %q", out)
	}
}

func TestParseCommand_InvalidKind(t *testing.T) {
	if _, err := runCLI(t, "x", "parse", "--kind", "midi"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDiscoverCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "now_playing.txt"), "A - B")
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")

	out, err := runCLI(t, "", "discover", "--json", "--pattern", filepath.Join(dir, "*.txt"))
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	var files []watcher.FileCandidate
	if err := json.Unmarshal([]byte(out), &files); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "now_playing.txt" {
		t.Errorf("files = %+v, want only now_playing.txt", files)
	}
}

func TestCheckCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/djlive/") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "remote:\n  url_template: \""+srv.URL+"/%s/live\"\n")

	out, err := runCLI(t, "", "--config", cfgPath, "check", "djlive")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "public") {
		t.Errorf("expected public status:\n%s", out)
	}

	out, err = runCLI(t, "", "--config", cfgPath, "check", "offline")
	if err != nil {
		t.Fatalf("check offline: %v", err)
	}
	if !strings.Contains(out, "private or offline") || !strings.Contains(out, "404") {
		t.Errorf("expected private status with 404:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "tracksignal dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "A") || !strings.Contains(out, "3") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}
