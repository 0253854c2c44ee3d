// Package request stores crowd song requests and applies match results to
// them.
package request

import (
	"time"

	"github.com/sydlexius/tracksignal/internal/track"
)

// Request is a stored song request.
type Request struct {
	ID             string    `json:"id"`
	PerformerID    string    `json:"performer_id"`
	Artist         string    `json:"artist"`
	Title          string    `json:"title"`
	Requester      string    `json:"requester,omitempty"`
	Message        string    `json:"message,omitempty"`
	Priority       int       `json:"priority"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
	MatchedTrackID string    `json:"matched_track_id,omitempty"`
	MatchScore     float64   `json:"match_score,omitempty"`
	MatchedAt      time.Time `json:"matched_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Pending returns the read-only view handed to the matcher.
func (r Request) Pending() track.PendingRequest {
	return track.PendingRequest{
		ID:          r.ID,
		PerformerID: r.PerformerID,
		Artist:      r.Artist,
		Title:       r.Title,
		SubmittedAt: r.SubmittedAt,
		Priority:    r.Priority,
		Status:      r.Status,
	}
}

// ValidStatus reports whether s is a known request status.
func ValidStatus(s string) bool {
	switch s {
	case track.StatusNew, track.StatusAcknowledged, track.StatusPlaying, track.StatusPlayed, track.StatusRejected:
		return true
	}
	return false
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	PerformerID string
	Status      string
	Limit       int
}
