// Package dedupe suppresses repeated now-playing signals inside a time window.
package dedupe

import (
	"time"

	"github.com/sydlexius/tracksignal/internal/track"
)

// Default windows per source kind. Remote pages keep showing the same entry
// across many polls, local files only change on real transitions.
const (
	DefaultFileWindow   = 30 * time.Second
	DefaultRemoteWindow = 10 * time.Minute
)

// DefaultWindow returns the dedupe window used when a session does not set one.
func DefaultWindow(kind track.SourceKind) time.Duration {
	if kind == track.SourceRemoteHTML {
		return DefaultRemoteWindow
	}
	return DefaultFileWindow
}

// State is the per-session memory of the last accepted track. Callers own
// it and must serialize access.
type State struct {
	LastTrack   *track.Track
	LastTrackAt time.Time
}

// Reset forgets the last accepted track.
func (s *State) Reset() {
	s.LastTrack = nil
	s.LastTrackAt = time.Time{}
}

// Deduplicator decides whether a track is new for a session.
type Deduplicator struct {
	Window time.Duration
}

// New returns a Deduplicator with the given window.
func New(window time.Duration) Deduplicator {
	return Deduplicator{Window: window}
}

// IsNew reports whether t should be emitted. A track is new when its key
// differs from the last accepted key or when at least Window has passed since
// that key was accepted. On true, st is updated to t.
func (d Deduplicator) IsNew(st *State, t track.Track) bool {
	if st.LastTrack != nil && st.LastTrack.NormalizedKey == t.NormalizedKey {
		if t.DetectedAt.Sub(st.LastTrackAt) < d.Window {
			return false
		}
	}
	accepted := t
	st.LastTrack = &accepted
	st.LastTrackAt = t.DetectedAt
	return true
}
