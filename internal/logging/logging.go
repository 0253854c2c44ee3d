// Package logging builds the process logger: slog with a handler that can be
// swapped at runtime and optional rotating file output.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when a log file is configured without limits.
const (
	defaultMaxSizeMB  = 100
	defaultMaxFiles   = 3
	defaultMaxAgeDays = 30
)

// Config describes the desired logging configuration.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	// Output is "stdout" (default) or "stderr". CLI commands log to stderr
	// so their tables stay pipeable.
	Output         string `json:"output,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	FileMaxSizeMB  int    `json:"file_max_size_mb,omitempty"`
	FileMaxFiles   int    `json:"file_max_files,omitempty"`
	FileMaxAgeDays int    `json:"file_max_age_days,omitempty"`
}

// DefaultConfig returns JSON logging at info level on stdout.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  defaultMaxSizeMB,
		FileMaxFiles:   defaultMaxFiles,
		FileMaxAgeDays: defaultMaxAgeDays,
	}
}

// Merge fills the zero fields of c from base. Runtime updates send only the
// fields they change.
func (c Config) Merge(base Config) Config {
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	pickInt := func(v, fallback int) int {
		if v == 0 {
			return fallback
		}
		return v
	}
	return Config{
		Level:          pick(c.Level, base.Level),
		Format:         pick(c.Format, base.Format),
		Output:         pick(c.Output, base.Output),
		FilePath:       pick(c.FilePath, base.FilePath),
		FileMaxSizeMB:  pickInt(c.FileMaxSizeMB, base.FileMaxSizeMB),
		FileMaxFiles:   pickInt(c.FileMaxFiles, base.FileMaxFiles),
		FileMaxAgeDays: pickInt(c.FileMaxAgeDays, base.FileMaxAgeDays),
	}
}

// Validate reports the first unknown level, format, or output. Empty fields
// are accepted.
func (c Config) Validate() error {
	if c.Level != "" && !ValidLevel(c.Level) {
		return fmt.Errorf("invalid level %q; must be debug, info, warn, or error", c.Level)
	}
	if c.Format != "" && !ValidFormat(c.Format) {
		return fmt.Errorf("invalid format %q; must be text or json", c.Format)
	}
	if !ValidOutput(c.Output) {
		return fmt.Errorf("invalid output %q; must be stdout or stderr", c.Output)
	}
	return nil
}

// sink is the part of a Config that decides where records are written.
type sink struct {
	format, output, path     string
	sizeMB, files, ageInDays int
}

func (c Config) sink() sink {
	return sink{
		format:    strings.ToLower(c.Format),
		output:    strings.ToLower(c.Output),
		path:      c.FilePath,
		sizeMB:    c.FileMaxSizeMB,
		files:     c.FileMaxFiles,
		ageInDays: c.FileMaxAgeDays,
	}
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%s format=%s", c.Level, c.Format)
	if c.Output != "" {
		b.WriteString(" output=" + c.Output)
	}
	if c.FilePath != "" {
		fmt.Fprintf(&b, " file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return b.String()
}

// SwappableHandler routes records to a root handler that can be replaced at
// runtime. Handlers derived with WithAttrs or WithGroup share the root, so
// component loggers created before a swap follow it.
type SwappableHandler struct {
	root *atomic.Pointer[slog.Handler]
	// derive replays attrs and groups onto the current root.
	derive []func(slog.Handler) slog.Handler
	cache  atomic.Pointer[derived]
}

type derived struct {
	base *slog.Handler
	h    slog.Handler
}

// NewSwappableHandler creates a SwappableHandler wrapping h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&h)
	return &SwappableHandler{root: root}
}

// Swap replaces the root handler for s and every handler derived from it.
func (s *SwappableHandler) Swap(h slog.Handler) {
	s.root.Store(&h)
}

func (s *SwappableHandler) current() slog.Handler {
	base := s.root.Load()
	if len(s.derive) == 0 {
		return *base
	}
	if d := s.cache.Load(); d != nil && d.base == base {
		return d.h
	}
	h := *base
	for _, fn := range s.derive {
		h = fn(h)
	}
	s.cache.Store(&derived{base: base, h: h})
	return h
}

// Enabled implements slog.Handler.
func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.current().Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}
	return s.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

// WithGroup implements slog.Handler.
func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *SwappableHandler) with(fn func(slog.Handler) slog.Handler) *SwappableHandler {
	return &SwappableHandler{
		root:   s.root,
		derive: append(s.derive[:len(s.derive):len(s.derive)], fn),
	}
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	level   *slog.LevelVar
	handler *SwappableHandler

	mu     sync.Mutex
	config Config
	file   io.Closer
}

// NewManager creates a Manager and returns it along with a ready-to-use logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	m := &Manager{level: &slog.LevelVar{}, config: cfg}
	m.level.Set(parseLevel(cfg.Level))

	var h slog.Handler
	h, m.file = m.build(cfg)
	m.handler = NewSwappableHandler(h)
	return m, slog.New(m.handler)
}

// Reconfigure applies cfg at runtime. A level change is applied in place;
// any change to format or destination rebuilds the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(parseLevel(cfg.Level))
	if cfg.sink() != m.config.sink() {
		if m.file != nil {
			_ = m.file.Close()
		}
		var h slog.Handler
		h, m.file = m.build(cfg)
		m.handler.Swap(h)
	}
	m.config = cfg
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file, if any. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// build creates the handler for cfg. The returned closer is the rotating
// file writer when a file path is configured.
func (m *Manager) build(cfg Config) (slog.Handler, io.Closer) {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}

	var closer io.Closer
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    positiveOr(cfg.FileMaxSizeMB, defaultMaxSizeMB),
			MaxBackups: positiveOr(cfg.FileMaxFiles, defaultMaxFiles),
			MaxAge:     positiveOr(cfg.FileMaxAgeDays, defaultMaxAgeDays),
		}
		w, closer = io.MultiWriter(w, lj), lj
	}

	opts := &slog.HandlerOptions{Level: m.level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts), closer
	}
	return slog.NewJSONHandler(w, opts), closer
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a level name to slog.Level. Unknown names mean info.
func parseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// FormatLevel converts a slog.Level to its configuration name.
func FormatLevel(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "debug"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	}
	return "info"
}

// ValidLevel reports whether s names a level.
func ValidLevel(s string) bool {
	_, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ValidFormat reports whether s is text or json.
func ValidFormat(s string) bool {
	return strings.EqualFold(s, "text") || strings.EqualFold(s, "json")
}

// ValidOutput reports whether s names a console stream. Empty means stdout.
func ValidOutput(s string) bool {
	return s == "" || strings.EqualFold(s, "stdout") || strings.EqualFold(s, "stderr")
}

// Discard returns a logger that drops every record. Components use it when
// the caller passes no logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
