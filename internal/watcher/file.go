package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/tracksignal/internal/track"
)

// File watcher defaults.
const (
	DefaultDebounce     = 250 * time.Millisecond
	DefaultFilePoll     = 2 * time.Second
	DefaultMaxFileBytes = 64 << 10
)

// Watch modes reported in Status.Mode.
const (
	ModeNotify = "fsnotify"
	ModePoll   = "poll"
	ModeHTTP   = "http"
)

// FileConfig configures a FileWatcher.
type FileConfig struct {
	Path string
	// Debounce collapses bursts of writes into one read.
	Debounce time.Duration
	// PollInterval drives the fallback when change events are unavailable.
	PollInterval time.Duration
	MaxBytes     int64
	// ForcePoll skips fsnotify entirely.
	ForcePoll bool
	// Probe, when set, is consulted before trusting fsnotify for the
	// file's directory.
	Probe *ProbeCache
}

func (c *FileConfig) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultFilePoll
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxFileBytes
	}
}

// FileWatcher follows a now-playing text file. It reacts to change events
// on the file's parent directory and falls back to polling modification
// time and size. A missing file is treated as transient.
type FileWatcher struct {
	lifecycle
	cfg     FileConfig
	path    string
	dir     string
	handler Handler

	// Owned by the loop goroutine.
	notify    *fsnotify.Watcher
	dirWatch  bool
	lastStamp fileStamp
}

type fileStamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

// NewFileWatcher creates a watcher for cfg.Path. The path is made absolute.
func NewFileWatcher(sourceID string, cfg FileConfig, h Handler, logger *slog.Logger) (*FileWatcher, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file path is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	cfg.applyDefaults()
	w := &FileWatcher{
		cfg:     cfg,
		path:    abs,
		dir:     filepath.Dir(abs),
		handler: h,
	}
	w.init(sourceID, logger.With("component", "file-watcher", "path", abs))
	return w, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Start implements Watcher.
func (w *FileWatcher) Start(ctx context.Context) error {
	return w.begin(ctx, w.run)
}

// Stop implements Watcher.
func (w *FileWatcher) Stop() { w.stop() }

// IsActive implements Watcher.
func (w *FileWatcher) IsActive() bool { return w.isActive() }

// Status implements Watcher.
func (w *FileWatcher) Status() Status { return w.snapshot() }

func (w *FileWatcher) run(ctx context.Context) {
	if !w.cfg.ForcePoll {
		n, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("fsnotify unavailable, running poll-only", "error", err)
		} else {
			w.notify = n
			defer n.Close() //nolint:errcheck
		}
	}

	w.cycle(ctx)
	w.ensureDirWatch()
	if w.stat() != w.lastStamp {
		// Changed while the watch was being set up.
		w.cycle(ctx)
	}
	w.logger.Info("file watcher started", "mode", w.mode())

	pollTicker := time.NewTicker(w.cfg.PollInterval)
	defer pollTicker.Stop()

	// Debounce timer starts stopped; reset on each relevant event.
	debounceTimer := time.NewTimer(time.Hour)
	debounceTimer.Stop()
	defer debounceTimer.Stop()
	readPending := false

	// When fsnotify is unavailable, use nil channels (never receive).
	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	if w.notify != nil {
		eventCh = w.notify.Events
		errCh = w.notify.Errors
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				eventCh, errCh = nil, nil
				w.dirWatch = false
				continue
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Remove) && filepath.Clean(ev.Name) == w.dir {
				w.dirWatch = false
			}
			resetTimer(debounceTimer, w.cfg.Debounce)
			readPending = true

		case err, ok := <-errCh:
			if !ok {
				continue
			}
			w.logger.Warn("fsnotify error", "error", err)

		case <-debounceTimer.C:
			if readPending {
				readPending = false
				w.cycle(ctx)
			}

		case <-pollTicker.C:
			w.ensureDirWatch()
			if w.dirWatch || readPending {
				continue
			}
			if w.stat() != w.lastStamp {
				w.cycle(ctx)
			}
		}
	}
}

// relevant keeps events for the watched file and for its directory itself.
func (w *FileWatcher) relevant(ev fsnotify.Event) bool {
	name := filepath.Clean(ev.Name)
	return name == w.path || name == w.dir
}

// ensureDirWatch adds the parent-directory watch when possible. Watching the
// directory rather than the file survives editors and DJ tools that replace
// the file on every write.
func (w *FileWatcher) ensureDirWatch() {
	if w.dirWatch {
		return
	}
	if w.notify == nil {
		w.setMode(ModePoll)
		return
	}
	if w.cfg.Probe != nil && !w.cfg.Probe.Supported(w.dir) {
		w.setMode(ModePoll)
		return
	}
	if err := w.notify.Add(w.dir); err != nil {
		w.logger.Debug("directory watch unavailable, polling", "dir", w.dir, "error", err)
		w.setMode(ModePoll)
		return
	}
	w.dirWatch = true
	w.setMode(ModeNotify)
}

func (w *FileWatcher) mode() string {
	if w.dirWatch {
		return ModeNotify
	}
	return ModePoll
}

func (w *FileWatcher) setMode(m string) {
	w.update(func(s *Status) { s.Mode = m })
}

func (w *FileWatcher) stat() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// cycle reads the file once and hands its contents to the handler.
func (w *FileWatcher) cycle(ctx context.Context) {
	w.lastStamp = w.stat()
	text, err := readCapped(w.path, w.cfg.MaxBytes)
	if errors.Is(err, fs.ErrNotExist) {
		if w.snapshot().Warning != WarningSourceMissing {
			w.logger.Info("now-playing file missing, waiting for it to appear")
		}
		w.healthy(WarningSourceMissing)
		return
	}
	if err != nil {
		w.logger.Warn("reading now-playing file", "error", err)
		w.failed(err)
		return
	}
	w.healthy(WarningNone)

	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return
	}
	if ctx.Err() != nil {
		return
	}
	w.handler(ctx, track.RawSignal{
		Text:       text,
		Kind:       track.SourceFile,
		SourceID:   w.sourceID,
		CapturedAt: time.Now().UTC(),
	})
}

func readCapped(path string, limit int64) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is operator configuration
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resetTimer stops, drains, and re-arms t.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
