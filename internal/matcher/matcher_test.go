package matcher

import (
	"testing"
	"time"

	"github.com/sydlexius/tracksignal/internal/normalize"
	"github.com/sydlexius/tracksignal/internal/track"
)

// constScorer returns the same similarity for every pair.
type constScorer float64

func (c constScorer) Score(_, _ string) float64 { return float64(c) }

func detected(artist, title string) track.Track {
	return track.Track{
		ID:            "trk-1",
		Artist:        artist,
		Title:         title,
		NormalizedKey: normalize.Key(artist, title),
		DetectedAt:    time.Now(),
	}
}

func TestMatch_ExactKey(t *testing.T) {
	m := New(DefaultConfig(), nil)
	base := time.Now()
	pending := []track.PendingRequest{
		{ID: "r1", Artist: "Daft Punk", Title: "Get Luckyy", SubmittedAt: base},
		{ID: "r2", Artist: "DAFT PUNK", Title: "Get Lucky (Radio Edit)", SubmittedAt: base.Add(time.Minute)},
	}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil {
		t.Fatal("expected a match")
	}
	if res.RequestID != "r2" {
		t.Errorf("RequestID = %q, want r2", res.RequestID)
	}
	if res.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", res.Score)
	}
	if res.TrackID != "trk-1" {
		t.Errorf("TrackID = %q", res.TrackID)
	}
}

func TestMatch_BelowThreshold(t *testing.T) {
	m := New(Config{Threshold: 0.85}, constScorer(0.5))
	pending := []track.PendingRequest{
		{ID: "r1", Artist: "Chic", Title: "Le Freak"},
		{ID: "r2", Artist: "Nile Rodgers", Title: "Good Times"},
	}
	if res := m.Match(detected("Daft Punk", "Get Lucky"), pending); res != nil {
		t.Errorf("expected no match, got %+v", res)
	}
}

func TestMatch_FuzzyTypo(t *testing.T) {
	m := New(DefaultConfig(), nil)
	pending := []track.PendingRequest{{ID: "r1", Artist: "Daft Punk", Title: "Get Lucki"}}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil {
		t.Fatal("expected fuzzy match")
	}
	if res.Score >= 1 || res.Score < DefaultThreshold {
		t.Errorf("Score = %v, want in [%v,1)", res.Score, DefaultThreshold)
	}
}

func TestMatch_DifferentSongSameArtist(t *testing.T) {
	m := New(DefaultConfig(), nil)
	pending := []track.PendingRequest{{ID: "r1", Artist: "Daft Punk", Title: "One More Time"}}
	if res := m.Match(detected("Daft Punk", "Get Lucky"), pending); res != nil {
		t.Errorf("expected no match, got %+v", res)
	}
}

func TestMatch_TitleOnlyRequest(t *testing.T) {
	m := New(DefaultConfig(), nil)
	pending := []track.PendingRequest{{ID: "r1", Title: "Get Lucky"}}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil {
		t.Fatal("expected title-only match")
	}
	if res.Score >= 1 {
		t.Errorf("title-only score should stay below 1, got %v", res.Score)
	}
}

func TestMatch_TieBreakEarliest(t *testing.T) {
	m := New(DefaultConfig(), nil)
	base := time.Now()
	pending := []track.PendingRequest{
		{ID: "late", Artist: "Daft Punk", Title: "Get Lucky", SubmittedAt: base.Add(time.Minute), Priority: 10},
		{ID: "early", Artist: "Daft Punk", Title: "Get Lucky", SubmittedAt: base, Priority: 0},
	}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil || res.RequestID != "early" {
		t.Fatalf("expected earliest request to win, got %+v", res)
	}
}

func TestMatch_TieBreakPriority(t *testing.T) {
	m := New(Config{Threshold: 0.85, PriorityOrdering: true}, nil)
	base := time.Now()
	pending := []track.PendingRequest{
		{ID: "early", Artist: "Daft Punk", Title: "Get Lucky", SubmittedAt: base, Priority: 0},
		{ID: "boosted", Artist: "Daft Punk", Title: "Get Lucky", SubmittedAt: base.Add(time.Minute), Priority: 10},
	}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil || res.RequestID != "boosted" {
		t.Fatalf("expected boosted request to win, got %+v", res)
	}
}

func TestMatch_PriorityDoesNotBeatScore(t *testing.T) {
	m := New(Config{Threshold: 0.85, PriorityOrdering: true}, nil)
	pending := []track.PendingRequest{
		{ID: "fuzzy", Artist: "Daft Punk", Title: "Get Lucki", Priority: 100},
		{ID: "exact", Artist: "Daft Punk", Title: "Get Lucky"},
	}
	res := m.Match(detected("Daft Punk", "Get Lucky"), pending)
	if res == nil || res.RequestID != "exact" {
		t.Fatalf("expected exact request to win, got %+v", res)
	}
}

func TestMatch_SkipsIneligible(t *testing.T) {
	m := New(DefaultConfig(), nil)
	pending := []track.PendingRequest{{ID: "r1", Artist: "Daft Punk", Title: "Get Lucky", Status: track.StatusPlayed}}
	if res := m.Match(detected("Daft Punk", "Get Lucky"), pending); res != nil {
		t.Errorf("played request should not match, got %+v", res)
	}
}

func TestMatch_Empty(t *testing.T) {
	m := New(DefaultConfig(), nil)
	if res := m.Match(detected("Daft Punk", "Get Lucky"), nil); res != nil {
		t.Errorf("expected nil, got %+v", res)
	}
}

func TestScore_Bounds(t *testing.T) {
	m := New(DefaultConfig(), constScorer(1.7))
	s, _ := m.Score("a - b", track.PendingRequest{Artist: "c", Title: "d"})
	if s >= 1 {
		t.Errorf("non-exact score must stay below 1, got %v", s)
	}
	m = New(DefaultConfig(), constScorer(-3))
	if s, _ := m.Score("a - b", track.PendingRequest{Artist: "c", Title: "d"}); s != 0 {
		t.Errorf("negative score should clamp to 0, got %v", s)
	}
}

func TestScorers(t *testing.T) {
	for _, name := range []string{ScorerHybrid, ScorerJaroWinkler, ""} {
		s, ok := ScorerByName(name)
		if !ok {
			t.Fatalf("ScorerByName(%q) not found", name)
		}
		if got := s.Score("daft punk - get lucky", "daft punk - get lucky"); got < 0.999 {
			t.Errorf("%q: identical keys scored %v", name, got)
		}
		if got := s.Score("daft punk - get lucky", "chic - le freak"); got >= DefaultThreshold {
			t.Errorf("%q: unrelated keys scored %v", name, got)
		}
	}
	if _, ok := ScorerByName("cosine"); ok {
		t.Error("expected unknown scorer to be rejected")
	}
}

func TestTokenDice(t *testing.T) {
	if got := tokenDice("a b - c", "c b - a"); got != 1 {
		t.Errorf("reordered tokens = %v, want 1", got)
	}
	if got := tokenDice("a b", "c d"); got != 0 {
		t.Errorf("disjoint tokens = %v, want 0", got)
	}
}
