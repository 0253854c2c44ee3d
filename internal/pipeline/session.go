package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/tracksignal/internal/dedupe"
	"github.com/sydlexius/tracksignal/internal/track"
	"github.com/sydlexius/tracksignal/internal/watcher"
)

// KindAuto asks the manager to pick a source kind at start time: the remote
// live playlist when it is public, otherwise the newest local now-playing file.
const KindAuto = "auto"

// SessionConfig describes one detection session.
type SessionConfig struct {
	// SourceID identifies the session. For file sources it defaults to the
	// watched path, for remote sources to the playlist username.
	SourceID    string `json:"source_id" yaml:"source_id"`
	Kind        string `json:"kind" yaml:"kind"`
	PerformerID string `json:"performer_id,omitempty" yaml:"performer_id"`
	Path        string `json:"path,omitempty" yaml:"path"`
	Username    string `json:"username,omitempty" yaml:"username"`

	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval"`
	DedupeWindow time.Duration `json:"dedupe_window,omitempty" yaml:"dedupe_window"`
	FetchTimeout time.Duration `json:"fetch_timeout,omitempty" yaml:"fetch_timeout"`
}

// target returns the path or username the watcher follows.
func (c SessionConfig) target() string {
	switch track.SourceKind(c.Kind) {
	case track.SourceFile:
		if c.Path != "" {
			return c.Path
		}
	case track.SourceRemoteHTML:
		if c.Username != "" {
			return c.Username
		}
	}
	return c.SourceID
}

// normalized trims identifiers and fills SourceID from the target.
func (c SessionConfig) normalized() SessionConfig {
	c.SourceID = strings.TrimSpace(c.SourceID)
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	c.PerformerID = strings.TrimSpace(c.PerformerID)
	c.Path = strings.TrimSpace(c.Path)
	c.Username = strings.TrimSpace(c.Username)
	if c.SourceID == "" {
		switch {
		case c.Path != "" && c.Kind == string(track.SourceFile):
			c.SourceID = c.Path
		case c.Username != "":
			c.SourceID = c.Username
		case c.Path != "":
			c.SourceID = c.Path
		}
	}
	if c.PerformerID == "" {
		c.PerformerID = c.SourceID
	}
	return c
}

// validate checks a config whose kind is already resolved.
func (c SessionConfig) validate() error {
	if c.SourceID == "" {
		return configErr("source_id", ErrInvalidSource, "source_id is required")
	}
	kind := track.SourceKind(c.Kind)
	if !kind.Valid() {
		return configErr("kind", ErrUnsupportedKind, "%q", c.Kind)
	}
	if kind == track.SourceRemoteHTML {
		if err := watcher.ValidateUsername(c.target()); err != nil {
			return configErr("username", ErrInvalidSource, "%v", err)
		}
	}
	if c.PollInterval < 0 || c.DedupeWindow < 0 || c.FetchTimeout < 0 {
		return configErr("interval", ErrInvalidSource, "durations must not be negative")
	}
	if c.FetchTimeout > 0 && c.PollInterval > 0 && c.FetchTimeout >= c.PollInterval {
		return configErr("fetch_timeout", ErrInvalidSource, "fetch timeout %s must be shorter than poll interval %s", c.FetchTimeout, c.PollInterval)
	}
	return nil
}

// Stats counts what a session has processed.
type Stats struct {
	Signals    int `json:"signals"`
	Unparsed   int `json:"unparsed"`
	Duplicates int `json:"duplicates"`
	Detected   int `json:"detected"`
	Matched    int `json:"matched"`
}

// SessionInfo is a snapshot of a detection session.
type SessionInfo struct {
	SourceID     string         `json:"source_id"`
	Kind         string         `json:"kind"`
	PerformerID  string         `json:"performer_id"`
	Target       string         `json:"target"`
	PollInterval time.Duration  `json:"poll_interval"`
	DedupeWindow time.Duration  `json:"dedupe_window"`
	Active       bool           `json:"active"`
	Status       watcher.Status `json:"status"`
	LastTrack    *track.Track   `json:"last_track,omitempty"`
	LastTrackAt  time.Time      `json:"last_track_at,omitzero"`
	StartedAt    time.Time      `json:"started_at"`
	Stats        Stats          `json:"stats"`
}

// session is the runtime state of one detection session. mu serializes
// detection cycles, whether they come from the watcher or are injected.
type session struct {
	cfg       SessionConfig
	kind      track.SourceKind
	dedup     dedupe.Deduplicator
	w         watcher.Watcher
	startedAt time.Time

	mu     sync.Mutex
	state  dedupe.State
	stats  Stats
	warned watcher.Warning
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		SourceID:     s.cfg.SourceID,
		Kind:         string(s.kind),
		PerformerID:  s.cfg.PerformerID,
		Target:       s.cfg.target(),
		PollInterval: s.cfg.PollInterval,
		DedupeWindow: s.dedup.Window,
		Active:       s.w.IsActive(),
		Status:       s.w.Status(),
		LastTrackAt:  s.state.LastTrackAt,
		StartedAt:    s.startedAt,
		Stats:        s.stats,
	}
	if s.state.LastTrack != nil {
		t := *s.state.LastTrack
		info.LastTrack = &t
	}
	return info
}

func (s *session) currentTrack() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastTrack == nil {
		return track.Track{}, false
	}
	return *s.state.LastTrack, true
}

// Outcome summarizes how a detection cycle ended.
type Outcome string

// Cycle outcomes.
const (
	OutcomeUnparsed  Outcome = "unparsed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDetected  Outcome = "detected"
	OutcomeMatched   Outcome = "matched"
)

// CycleResult describes the outcome of one detection cycle.
type CycleResult struct {
	Outcome    Outcome               `json:"outcome"`
	Candidates []track.Candidate     `json:"candidates"`
	Track      *track.Track          `json:"track,omitempty"`
	Match      *track.MatchResult    `json:"match,omitempty"`
	Request    *track.PendingRequest `json:"request,omitempty"`
	Scores     []RequestScore        `json:"scores,omitempty"`
}

// RequestScore is one request's similarity to a detected track. Only dry
// runs report it.
type RequestScore struct {
	RequestID string  `json:"request_id"`
	Artist    string  `json:"artist"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}
