// Package parser turns raw now-playing signals into ranked (artist, title)
// candidates. Parsing is pure: it never blocks, never errors, and returns an
// empty slice when nothing plausible is found.
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sydlexius/tracksignal/internal/track"
)

// Pair is an unscored (artist, title) reading produced by a strategy.
type Pair struct {
	Artist string
	Title  string
}

// Strategy is one way of reading a document. Strategies are tried in order
// and the first one yielding a valid pair wins.
type Strategy struct {
	Name string
	// Confidence is assigned to the first pair. Later pairs from the same
	// strategy decay by positionDecay each so document order is kept.
	Confidence float64
	// Kinds restricts the strategy to these source kinds. Empty means all.
	Kinds   []track.SourceKind
	Extract func(doc *Document) []Pair
}

func (s Strategy) applies(kind track.SourceKind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

const (
	positionDecay = 0.01
	minConfidence = 0.05
)

// Parser applies an ordered strategy table.
type Parser struct {
	strategies []Strategy
}

// New returns a parser using the given strategies in order.
func New(strategies ...Strategy) *Parser {
	return &Parser{strategies: strategies}
}

// Default returns a parser with the built-in strategy table.
func Default() *Parser {
	return New(DefaultStrategies()...)
}

// DefaultStrategies returns the built-in strategies, most precise first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "structured", Confidence: 0.95, Extract: extractStructured},
		{Name: "delimiter", Confidence: 0.85, Extract: extractDelimited},
		{Name: "by", Confidence: 0.80, Extract: extractBy},
		{Name: "two_line", Confidence: 0.60, Kinds: []track.SourceKind{track.SourceFile}, Extract: extractTwoLine},
		{Name: "recency", Confidence: 0.40, Kinds: []track.SourceKind{track.SourceRemoteHTML}, Extract: extractRecency},
	}
}

var defaultParser = Default()

// Parse runs the default strategy table over raw.
func Parse(raw track.RawSignal) []track.Candidate {
	return defaultParser.Parse(raw)
}

// Parse returns the full candidate set of the first strategy that produces
// at least one valid pair, ranked by confidence.
func (p *Parser) Parse(raw track.RawSignal) (out []track.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			out = []track.Candidate{}
		}
	}()

	doc := NewDocument(raw)
	for _, s := range p.strategies {
		if !s.applies(raw.Kind) {
			continue
		}
		if cands := score(s, s.Extract(doc)); len(cands) > 0 {
			return cands
		}
	}
	return []track.Candidate{}
}

// Best returns the highest-confidence candidate, if any.
func Best(cands []track.Candidate) (track.Candidate, bool) {
	if len(cands) == 0 {
		return track.Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

func score(s Strategy, pairs []Pair) []track.Candidate {
	var out []track.Candidate
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		artist := strings.TrimSpace(p.Artist)
		title := strings.TrimSpace(p.Title)
		if !ValidField(artist) || !ValidField(title) {
			continue
		}
		k := strings.ToLower(artist) + "\x00" + strings.ToLower(title)
		if seen[k] {
			continue
		}
		seen[k] = true
		conf := s.Confidence - float64(len(out))*positionDecay
		if conf < minConfidence {
			conf = minConfidence
		}
		out = append(out, track.Candidate{
			Artist:     artist,
			Title:      title,
			Confidence: conf,
			Strategy:   s.Name,
		})
	}
	return out
}

// ValidField reports whether s is long enough and contains at least one
// letter or digit.
func ValidField(s string) bool {
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
