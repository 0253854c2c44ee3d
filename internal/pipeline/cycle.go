package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/normalize"
	"github.com/sydlexius/tracksignal/internal/parser"
	"github.com/sydlexius/tracksignal/internal/track"
)

// runCycle takes one raw signal through the whole pipeline. Cycles for one
// session never overlap.
func (m *Manager) runCycle(ctx context.Context, s *session, raw track.RawSignal) CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Signals++

	log := m.logger.With("source_id", s.cfg.SourceID)
	cands := m.parser.Parse(raw)
	res := CycleResult{Outcome: OutcomeUnparsed, Candidates: cands}
	best, ok := parser.Best(cands)
	if !ok {
		s.stats.Unparsed++
		log.Debug("no track in signal", "bytes", len(raw.Text))
		return res
	}

	detectedAt := raw.CapturedAt
	if detectedAt.IsZero() {
		detectedAt = m.now().UTC()
	}
	t := track.Track{
		ID:            uuid.NewString(),
		Artist:        best.Artist,
		Title:         best.Title,
		NormalizedKey: normalize.Key(best.Artist, best.Title),
		DetectedAt:    detectedAt,
		SourceKind:    s.kind,
		SourceID:      s.cfg.SourceID,
		PerformerID:   s.cfg.PerformerID,
	}
	res.Track = &t

	if !s.dedup.IsNew(&s.state, t) {
		s.stats.Duplicates++
		res.Outcome = OutcomeDuplicate
		return res
	}
	s.stats.Detected++
	res.Outcome = OutcomeDetected
	log.Info("track detected", "artist", t.Artist, "title", t.Title, "strategy", best.Strategy)
	m.publish(event.TrackDetected, map[string]any{
		event.KeySession:   s.cfg.SourceID,
		event.KeyPerformer: s.cfg.PerformerID,
		event.KeyTrack:     t,
	})

	if m.requests == nil {
		return res
	}
	pending, err := m.requests.ListPending(ctx, s.cfg.PerformerID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("listing pending requests", "error", err)
		}
		return res
	}
	match := m.matcher.Match(t, pending)
	if match == nil {
		return res
	}
	req := findRequest(pending, match.RequestID)
	s.stats.Matched++
	res.Outcome = OutcomeMatched
	res.Match = match
	res.Request = req
	log.Info("request matched", "request_id", match.RequestID, "score", match.Score)

	// Published once. A failed notification is not retried.
	data := map[string]any{
		event.KeySession:   s.cfg.SourceID,
		event.KeyPerformer: s.cfg.PerformerID,
		event.KeyTrack:     t,
		event.KeyMatch:     *match,
	}
	if req != nil {
		data[event.KeyRequest] = *req
	}
	m.publish(event.RequestMatched, data)
	return res
}

// TestTrack reports how a synthetic track would be matched against a
// performer's pending requests. The pair is rendered as a "Artist - Title"
// line and parsed like a captured text file. Nothing is recorded or published.
func (m *Manager) TestTrack(ctx context.Context, performerID, artist, title string) (CycleResult, error) {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if !parser.ValidField(artist) || !parser.ValidField(title) {
		return CycleResult{Outcome: OutcomeUnparsed}, &ConfigError{Field: "track", Err: errors.New("artist and title are required")}
	}
	now := m.now().UTC()
	cands := m.parser.Parse(track.RawSignal{
		Text:       artist + " - " + title,
		Kind:       track.SourceFile,
		SourceID:   "test-track",
		CapturedAt: now,
	})
	res := CycleResult{Outcome: OutcomeUnparsed, Candidates: cands}
	best, ok := parser.Best(cands)
	if !ok {
		return res, nil
	}
	t := track.Track{
		ID:            uuid.NewString(),
		Artist:        best.Artist,
		Title:         best.Title,
		NormalizedKey: normalize.Key(best.Artist, best.Title),
		DetectedAt:    now,
		SourceKind:    track.SourceFile,
		PerformerID:   performerID,
	}
	res.Outcome = OutcomeDetected
	res.Track = &t
	if m.requests == nil {
		return res, nil
	}
	pending, err := m.requests.ListPending(ctx, performerID)
	if err != nil {
		return res, err
	}
	for _, sc := range m.matcher.Rank(t, pending) {
		res.Scores = append(res.Scores, RequestScore{
			RequestID: sc.Request.ID,
			Artist:    sc.Request.Artist,
			Title:     sc.Request.Title,
			Score:     sc.Score,
		})
	}
	if match := m.matcher.Match(t, pending); match != nil {
		res.Outcome = OutcomeMatched
		res.Match = match
		res.Request = findRequest(pending, match.RequestID)
	}
	return res, nil
}

func findRequest(pending []track.PendingRequest, id string) *track.PendingRequest {
	for i := range pending {
		if pending[i].ID == id {
			r := pending[i]
			return &r
		}
	}
	return nil
}
