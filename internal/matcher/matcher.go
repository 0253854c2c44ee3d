// Package matcher decides whether a detected track satisfies one of a
// performer's pending song requests.
package matcher

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sydlexius/tracksignal/internal/normalize"
	"github.com/sydlexius/tracksignal/internal/track"
)

// DefaultThreshold is the minimum score for a match. Missing a real match is
// preferred over notifying a requester about the wrong song.
const DefaultThreshold = 0.85

// maxFuzzy caps non-exact scores so only key equality reaches 1.0.
var maxFuzzy = math.Nextafter(1, 0)

// Config holds matching policy.
type Config struct {
	Threshold float64
	// PriorityOrdering lets higher-priority requests win score ties before
	// submission time is considered.
	PriorityOrdering bool
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Scored is a request with its similarity to a detected track.
type Scored struct {
	Request track.PendingRequest `json:"request"`
	Key     string               `json:"key"`
	Score   float64              `json:"score"`
}

// Matcher selects at most one pending request per detected track.
type Matcher struct {
	config Config
	scorer Scorer
	now    func() time.Time
}

// New creates a matcher. A nil scorer selects the default hybrid scorer.
func New(cfg Config, scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = DefaultHybrid()
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	return &Matcher{config: cfg, scorer: scorer, now: time.Now}
}

// Config returns the matcher's configuration.
func (m *Matcher) Config() Config {
	return m.config
}

// Score returns the similarity between a detected key and a request.
// Requests without an artist are compared on title alone.
func (m *Matcher) Score(trackKey string, req track.PendingRequest) (float64, string) {
	if strings.TrimSpace(req.Artist) == "" {
		_, title := normalize.Split(trackKey)
		reqTitle := normalize.Field(req.Title)
		return clampFuzzy(m.scorer.Score(title, reqTitle)), normalize.Separator + reqTitle
	}
	reqKey := normalize.Key(req.Artist, req.Title)
	if reqKey == trackKey {
		return 1, reqKey
	}
	return clampFuzzy(m.scorer.Score(trackKey, reqKey)), reqKey
}

// Rank scores every eligible request and orders them best first.
func (m *Matcher) Rank(t track.Track, pending []track.PendingRequest) []Scored {
	out := make([]Scored, 0, len(pending))
	for _, req := range pending {
		if !req.Eligible() {
			continue
		}
		score, key := m.Score(t.NormalizedKey, req)
		out = append(out, Scored{Request: req, Key: key, Score: score})
	}
	slices.SortStableFunc(out, m.compare)
	return out
}

// Match returns the best request at or above the threshold, or nil.
func (m *Matcher) Match(t track.Track, pending []track.PendingRequest) *track.MatchResult {
	ranked := m.Rank(t, pending)
	if len(ranked) == 0 || ranked[0].Score < m.config.Threshold {
		return nil
	}
	best := ranked[0]
	return &track.MatchResult{
		TrackID:   t.ID,
		RequestID: best.Request.ID,
		Score:     best.Score,
		MatchedAt: m.now().UTC(),
	}
}

func (m *Matcher) compare(a, b Scored) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if m.config.PriorityOrdering {
		if c := cmp.Compare(b.Request.Priority, a.Request.Priority); c != 0 {
			return c
		}
	}
	if c := a.Request.SubmittedAt.Compare(b.Request.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Request.ID, b.Request.ID)
}

func clampFuzzy(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > maxFuzzy:
		return maxFuzzy
	}
	return s
}
