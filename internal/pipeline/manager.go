// Package pipeline runs detection sessions. A Manager owns one watcher per
// source and feeds every captured signal through parsing, normalization,
// deduplication, and request matching, publishing the results on an event bus.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sydlexius/tracksignal/internal/dedupe"
	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/matcher"
	"github.com/sydlexius/tracksignal/internal/parser"
	"github.com/sydlexius/tracksignal/internal/track"
	"github.com/sydlexius/tracksignal/internal/watcher"
)

// RequestSource supplies the pending requests for a performer. The pipeline
// only reads from it.
type RequestSource interface {
	ListPending(ctx context.Context, performerID string) ([]track.PendingRequest, error)
}

// Publisher receives pipeline events. *event.Bus satisfies it.
type Publisher interface {
	Publish(e event.Event)
}

// WatchSpec is everything a WatcherFactory needs to build a watcher.
type WatchSpec struct {
	SourceID     string
	Kind         track.SourceKind
	Target       string
	PollInterval time.Duration
	FetchTimeout time.Duration
	Handler      watcher.Handler
	Observer     watcher.Observer
}

// WatcherFactory builds the watcher for a session. It must not start it.
type WatcherFactory func(spec WatchSpec) (watcher.Watcher, error)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Parser   *parser.Parser
	Matcher  *matcher.Matcher
	Requests RequestSource
	Events   Publisher
	Factory  WatcherFactory

	// File and Remote carry the watcher defaults used by the built-in factory.
	File    watcher.FileConfig
	Remote  watcher.RemoteConfig
	Limiter *watcher.HostLimiter

	FileWindow   time.Duration
	RemoteWindow time.Duration

	// SearchPatterns is used to find a text file for auto sessions.
	SearchPatterns []string
	// MaxFileAge rejects auto-discovered files older than this.
	MaxFileAge time.Duration

	Logger *slog.Logger
}

// Manager owns detection sessions and their watchers.
type Manager struct {
	parser   *parser.Parser
	matcher  *matcher.Matcher
	requests RequestSource
	events   Publisher
	factory  WatcherFactory
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Parser == nil {
		opts.Parser = parser.Default()
	}
	if opts.Matcher == nil {
		opts.Matcher = matcher.New(matcher.DefaultConfig(), nil)
	}
	if opts.FileWindow <= 0 {
		opts.FileWindow = dedupe.DefaultFileWindow
	}
	if opts.RemoteWindow <= 0 {
		opts.RemoteWindow = dedupe.DefaultRemoteWindow
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		parser:   opts.Parser,
		matcher:  opts.Matcher,
		requests: opts.Requests,
		events:   opts.Events,
		factory:  opts.Factory,
		opts:     opts,
		logger:   opts.Logger.With("component", "pipeline"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	if m.factory == nil {
		m.factory = m.defaultFactory
	}
	return m
}

// defaultFactory builds a FileWatcher or RemotePoller from the manager's
// watcher defaults and the session's overrides.
func (m *Manager) defaultFactory(spec WatchSpec) (watcher.Watcher, error) {
	switch spec.Kind {
	case track.SourceFile:
		cfg := m.opts.File
		cfg.Path = spec.Target
		if spec.PollInterval > 0 {
			cfg.PollInterval = spec.PollInterval
		}
		w, err := watcher.NewFileWatcher(spec.SourceID, cfg, spec.Handler, m.opts.Logger)
		if err != nil {
			return nil, err
		}
		w.SetObserver(spec.Observer)
		return w, nil
	case track.SourceRemoteHTML:
		cfg := m.opts.Remote
		cfg.Username = spec.Target
		if spec.PollInterval > 0 {
			cfg.Interval = spec.PollInterval
		}
		if spec.FetchTimeout > 0 {
			cfg.FetchTimeout = spec.FetchTimeout
		}
		p, err := watcher.NewRemotePoller(spec.SourceID, cfg, spec.Handler, m.opts.Limiter, m.opts.Logger)
		if err != nil {
			return nil, err
		}
		p.SetObserver(spec.Observer)
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, spec.Kind)
}

// StartSession starts detection for cfg. Starting a source that already has an
// active session returns that session unchanged.
func (m *Manager) StartSession(ctx context.Context, cfg SessionConfig) (SessionInfo, error) {
	cfg = cfg.normalized()
	if cfg.SourceID == "" {
		return SessionInfo{}, configErr("source_id", ErrInvalidSource, "source_id is required")
	}
	if info, ok := m.activeInfo(cfg.SourceID); ok {
		return info, nil
	}

	if cfg.Kind == KindAuto {
		resolved, err := m.resolveAuto(ctx, cfg)
		if err != nil {
			return SessionInfo{}, err
		}
		cfg = resolved
	}
	if err := cfg.validate(); err != nil {
		return SessionInfo{}, err
	}

	kind := track.SourceKind(cfg.Kind)
	window := cfg.DedupeWindow
	if window <= 0 {
		window = m.opts.FileWindow
		if kind == track.SourceRemoteHTML {
			window = m.opts.RemoteWindow
		}
	}
	s := &session{
		cfg:       cfg,
		kind:      kind,
		dedup:     dedupe.New(window),
		startedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return SessionInfo{}, errors.New("manager closed")
	}
	if existing, ok := m.sessions[cfg.SourceID]; ok {
		if existing.w.IsActive() {
			return existing.info(), nil
		}
		delete(m.sessions, cfg.SourceID)
	}

	w, err := m.factory(WatchSpec{
		SourceID:     cfg.SourceID,
		Kind:         kind,
		Target:       cfg.target(),
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Handler:      func(ctx context.Context, raw track.RawSignal) { m.runCycle(ctx, s, raw) },
		Observer:     func(_ string, st watcher.Status) { m.observe(s, st) },
	})
	if err != nil {
		return SessionInfo{}, &ConfigError{Field: "source", Err: fmt.Errorf("%w: %v", ErrInvalidSource, err)}
	}
	s.w = w
	if err := w.Start(m.ctx); err != nil {
		return SessionInfo{}, fmt.Errorf("starting watcher: %w", err)
	}
	m.sessions[cfg.SourceID] = s

	m.logger.Info("session started",
		"source_id", cfg.SourceID,
		"kind", cfg.Kind,
		"performer_id", cfg.PerformerID,
		"dedupe_window", window)
	m.publish(event.SessionStarted, map[string]any{
		event.KeySession:   cfg.SourceID,
		event.KeyPerformer: cfg.PerformerID,
		"kind":             cfg.Kind,
	})
	return s.info(), nil
}

// resolveAuto picks a concrete kind for an auto session.
func (m *Manager) resolveAuto(ctx context.Context, cfg SessionConfig) (SessionConfig, error) {
	username := cfg.Username
	if username == "" && watcher.ValidateUsername(cfg.SourceID) == nil {
		username = cfg.SourceID
	}
	if username != "" {
		rc := m.opts.Remote
		rc.Username = username
		res, err := watcher.CheckRemote(ctx, rc)
		if err == nil && res.Public {
			cfg.Kind = string(track.SourceRemoteHTML)
			cfg.Username = username
			return cfg, nil
		}
		m.logger.Debug("live playlist unavailable, looking for a text file", "username", username, "error", err)
	}

	if cfg.Path == "" {
		found, err := watcher.ActiveTextFile(m.opts.SearchPatterns, m.opts.MaxFileAge)
		if err != nil {
			return cfg, configErr("kind", ErrInvalidSource, "no public live playlist and no text file: %v", err)
		}
		cfg.Path = found.Path
	}
	cfg.Kind = string(track.SourceFile)
	return cfg, nil
}

// StopSession stops and forgets a session. Unknown sources are ignored.
func (m *Manager) StopSession(sourceID string) {
	m.mu.Lock()
	s, ok := m.sessions[sourceID]
	if ok {
		delete(m.sessions, sourceID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	// Stop waits for an in-flight cycle, which holds s.mu.
	s.w.Stop()
	m.logger.Info("session stopped", "source_id", sourceID)
	m.publish(event.SessionStopped, map[string]any{
		event.KeySession:   sourceID,
		event.KeyPerformer: s.cfg.PerformerID,
	})
}

// InjectTestSignal runs one detection cycle on raw text as if the session's
// watcher had captured it.
func (m *Manager) InjectTestSignal(ctx context.Context, sourceID, raw string) (CycleResult, error) {
	s, ok := m.lookup(sourceID)
	if !ok {
		return CycleResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	return m.runCycle(ctx, s, track.RawSignal{
		Text:       raw,
		Kind:       s.kind,
		SourceID:   sourceID,
		CapturedAt: m.now().UTC(),
	}), nil
}

// CurrentTrack returns the last track a session accepted.
func (m *Manager) CurrentTrack(sourceID string) (track.Track, bool) {
	s, ok := m.lookup(sourceID)
	if !ok {
		return track.Track{}, false
	}
	return s.currentTrack()
}

// Session returns a snapshot of one session.
func (m *Manager) Session(sourceID string) (SessionInfo, bool) {
	s, ok := m.lookup(sourceID)
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Sessions returns snapshots of all sessions ordered by source ID.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return cmp.Compare(a.SourceID, b.SourceID) })
	return out
}

// Close stops every session. The manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopSession(id)
	}
	m.cancel()
}

func (m *Manager) lookup(sourceID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sourceID]
	return s, ok
}

func (m *Manager) activeInfo(sourceID string) (SessionInfo, bool) {
	s, ok := m.lookup(sourceID)
	if !ok || !s.w.IsActive() {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// observe turns watcher status changes into events.
func (m *Manager) observe(s *session, st watcher.Status) {
	s.mu.Lock()
	// Announce a warning once per occurrence.
	announced := s.warned == st.Warning
	s.warned = st.Warning
	s.mu.Unlock()
	if announced || st.Warning == watcher.WarningNone {
		return
	}
	m.publish(event.SourceUnavailable, map[string]any{
		event.KeySession:   s.cfg.SourceID,
		event.KeyPerformer: s.cfg.PerformerID,
		event.KeyWarning:   string(st.Warning),
		event.KeyMessage:   warningMessage(st.Warning),
	})
}

func warningMessage(w watcher.Warning) string {
	switch w {
	case watcher.WarningSourceNotPublic:
		return "live playlist is not public yet"
	case watcher.WarningSourceMissing:
		return "now-playing file does not exist yet"
	}
	return string(w)
}

func (m *Manager) publish(t event.Type, data map[string]any) {
	if m.events == nil {
		return
	}
	m.events.Publish(event.Event{Type: t, Timestamp: m.now().UTC(), Data: data})
}
