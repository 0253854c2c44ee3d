// Package history keeps a per-session log of detected tracks.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/tracksignal/internal/database"
	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/track"
)

// DefaultLimit caps Recent when the caller passes no limit.
const DefaultLimit = 50

// Entry is one played track.
type Entry struct {
	TrackID          string           `json:"track_id"`
	SessionID        string           `json:"session_id"`
	PerformerID      string           `json:"performer_id,omitempty"`
	Artist           string           `json:"artist"`
	Title            string           `json:"title"`
	NormalizedKey    string           `json:"normalized_key"`
	SourceKind       track.SourceKind `json:"source_kind"`
	DetectedAt       time.Time        `json:"detected_at"`
	MatchedRequestID string           `json:"matched_request_id,omitempty"`
}

// Service stores play history.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewService creates a history service. logger may be nil.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logging.OrDiscard(logger).With("component", "history")}
}

// Record stores a detected track. Recording the same track twice is a no-op.
func (s *Service) Record(ctx context.Context, t track.Track) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO play_history (id, session_id, performer_id, artist, title, normalized_key, source_kind, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, t.ID, t.SourceID, t.PerformerID, t.Artist, t.Title, t.NormalizedKey, string(t.SourceKind), database.FormatTime(t.DetectedAt))
	if err != nil {
		return fmt.Errorf("recording play: %w", err)
	}
	return nil
}

// SetMatched links a played track to the request it satisfied.
func (s *Service) SetMatched(ctx context.Context, trackID, requestID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE play_history SET matched_request_id = ? WHERE id = ?
	`, requestID, trackID)
	if err != nil {
		return fmt.Errorf("linking play to request: %w", err)
	}
	return nil
}

// Recent returns a session's most recent plays, newest first.
func (s *Service) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, performer_id, artist, title, normalized_key, source_kind, detected_at, matched_request_id
		FROM play_history
		WHERE session_id = ?
		ORDER BY detected_at DESC, id
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind, detectedAt string
		if err := rows.Scan(&e.TrackID, &e.SessionID, &e.PerformerID, &e.Artist, &e.Title, &e.NormalizedKey,
			&kind, &detectedAt, &e.MatchedRequestID); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.SourceKind = track.SourceKind(kind)
		e.DetectedAt = database.ParseTime(detectedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes plays detected before cutoff and returns how many were removed.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM play_history WHERE detected_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// HandleDetected is an event.Handler for track.detected events.
func (s *Service) HandleDetected(e event.Event) {
	t, ok := e.Data[event.KeyTrack].(track.Track)
	if !ok {
		s.logger.Warn("track.detected event without track")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, t); err != nil {
		s.logger.Warn("recording play", "track_id", t.ID, "error", err)
	}
}

// HandleMatched is an event.Handler for request.matched events. The bus
// delivers events in order, so the play is already recorded.
func (s *Service) HandleMatched(e event.Event) {
	m, ok := e.Data[event.KeyMatch].(track.MatchResult)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.SetMatched(ctx, m.TrackID, m.RequestID); err != nil {
		s.logger.Warn("linking play to request", "track_id", m.TrackID, "error", err)
	}
}
