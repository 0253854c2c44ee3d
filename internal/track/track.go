package track

import (
	"fmt"
	"time"
)

// SourceKind identifies where a raw now-playing signal came from.
type SourceKind string

// Supported source kinds.
const (
	SourceFile       SourceKind = "file"
	SourceRemoteHTML SourceKind = "remote_html"
)

// Valid reports whether k is a supported source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceFile, SourceRemoteHTML:
		return true
	}
	return false
}

// IsMarkup reports whether signals from this kind carry HTML markup.
func (k SourceKind) IsMarkup() bool {
	return k == SourceRemoteHTML
}

// RawSignal is the unparsed text or markup captured by a watcher. It is
// consumed immediately by the parser and never persisted.
type RawSignal struct {
	Text       string     `json:"text"`
	Kind       SourceKind `json:"kind"`
	SourceID   string     `json:"source_id"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Candidate is one possible (artist, title) reading of a raw signal.
type Candidate struct {
	Artist     string  `json:"artist"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
}

// Track is a detected, normalized now-playing entry.
type Track struct {
	ID            string     `json:"id"`
	Artist        string     `json:"artist"`
	Title         string     `json:"title"`
	NormalizedKey string     `json:"normalized_key"`
	DetectedAt    time.Time  `json:"detected_at"`
	SourceKind    SourceKind `json:"source_kind"`
	SourceID      string     `json:"source_id"`
	PerformerID   string     `json:"performer_id,omitempty"`
}

// String returns the display form "Artist - Title".
func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// Request statuses. Only new and acknowledged requests are eligible for matching.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusPlaying      = "playing"
	StatusPlayed       = "played"
	StatusRejected     = "rejected"
)

// PendingRequest is a song request waiting to be played. The detection
// pipeline reads these but never writes them.
type PendingRequest struct {
	ID          string    `json:"id"`
	PerformerID string    `json:"performer_id"`
	Artist      string    `json:"artist"`
	Title       string    `json:"title"`
	SubmittedAt time.Time `json:"submitted_at"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
}

// Eligible reports whether the request can still be matched.
func (r PendingRequest) Eligible() bool {
	switch r.Status {
	case "", StatusNew, StatusAcknowledged:
		return true
	}
	return false
}

// MatchResult records that a detected track satisfied a pending request.
type MatchResult struct {
	TrackID   string    `json:"track_id"`
	RequestID string    `json:"request_id"`
	Score     float64   `json:"score"`
	MatchedAt time.Time `json:"matched_at"`
}
