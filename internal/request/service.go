package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/tracksignal/internal/database"
	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/track"
)

// ErrNotFound is returned when a request does not exist.
var ErrNotFound = errors.New("request not found")

// ErrAlreadyResolved is returned by MarkMatched when the request is no longer
// eligible, for example because an earlier match already consumed it.
var ErrAlreadyResolved = errors.New("request already resolved")

const defaultListLimit = 200

// Service manages request storage.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewService creates a request service. logger may be nil.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logging.OrDiscard(logger).With("component", "requests")}
}

const selectColumns = `
	SELECT id, performer_id, artist, title, requester, message, priority, status,
	       submitted_at, matched_track_id, match_score, matched_at, updated_at
	FROM requests`

// Create inserts a new request with status new.
func (s *Service) Create(ctx context.Context, r *Request) error {
	r.PerformerID = strings.TrimSpace(r.PerformerID)
	r.Artist = strings.TrimSpace(r.Artist)
	r.Title = strings.TrimSpace(r.Title)
	if r.PerformerID == "" {
		return fmt.Errorf("performer_id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.Status == "" {
		r.Status = track.StatusNew
	}
	if !ValidStatus(r.Status) {
		return fmt.Errorf("invalid status %q", r.Status)
	}

	now := time.Now().UTC()
	r.ID = uuid.New().String()
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, performer_id, artist, title, requester, message, priority, status, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.PerformerID, r.Artist, r.Title, r.Requester, r.Message, r.Priority, r.Status,
		database.FormatTime(r.SubmittedAt), database.FormatTime(now))
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// GetByID returns a request by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns requests matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Request, error) {
	var where []string
	var args []any
	if f.PerformerID != "" {
		where = append(where, "performer_id = ?")
		args = append(args, f.PerformerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY submitted_at, id LIMIT ?"
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

// ListPending returns the performer's requests still eligible for matching.
// It satisfies pipeline.RequestSource.
func (s *Service) ListPending(ctx context.Context, performerID string) ([]track.PendingRequest, error) {
	rows, err := s.query(ctx, selectColumns+`
		WHERE performer_id = ? AND status IN (?, ?)
		ORDER BY submitted_at, id
	`, performerID, track.StatusNew, track.StatusAcknowledged)
	if err != nil {
		return nil, err
	}
	out := make([]track.PendingRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Pending())
	}
	return out, nil
}

// UpdateStatus sets a request's status.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = ?, updated_at = ? WHERE id = ?
	`, status, database.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMatched records a match and marks the request played. Only eligible
// requests are updated, so a request is consumed by at most one match.
func (s *Service) MarkMatched(ctx context.Context, m track.MatchResult) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, matched_track_id = ?, match_score = ?, matched_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, track.StatusPlayed, m.TrackID, m.Score, database.FormatTime(m.MatchedAt), database.FormatTime(time.Now()),
		m.RequestID, track.StatusNew, track.StatusAcknowledged)
	if err != nil {
		return fmt.Errorf("marking request matched: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := s.GetByID(ctx, m.RequestID); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

// HandleMatched is an event.Handler for request.matched events.
func (s *Service) HandleMatched(e event.Event) {
	m, ok := e.Data[event.KeyMatch].(track.MatchResult)
	if !ok {
		s.logger.Warn("request.matched event without match result")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.MarkMatched(ctx, m); err != nil {
		s.logger.Warn("applying match", "request_id", m.RequestID, "error", err)
		return
	}
	s.logger.Info("request played", "request_id", m.RequestID, "track_id", m.TrackID, "score", m.Score)
}

func (s *Service) query(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// scanner interface for both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*Request, error) {
	var r Request
	var submittedAt, matchedAt, updatedAt string
	err := sc.Scan(&r.ID, &r.PerformerID, &r.Artist, &r.Title, &r.Requester, &r.Message, &r.Priority, &r.Status,
		&submittedAt, &r.MatchedTrackID, &r.MatchScore, &matchedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning request: %w", err)
	}
	r.SubmittedAt = database.ParseTime(submittedAt)
	r.MatchedAt = database.ParseTime(matchedAt)
	r.UpdatedAt = database.ParseTime(updatedAt)
	return &r, nil
}
