package matcher

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/sydlexius/tracksignal/internal/normalize"
)

// Scorer computes a similarity in [0,1] between two normalized keys.
type Scorer interface {
	Score(a, b string) float64
}

// Scorer names accepted in configuration.
const (
	ScorerHybrid      = "hybrid"
	ScorerJaroWinkler = "jaro_winkler"
)

// ScorerByName returns the scorer registered under name, or false.
func ScorerByName(name string) (Scorer, bool) {
	switch name {
	case "", ScorerHybrid:
		return DefaultHybrid(), true
	case ScorerJaroWinkler:
		return JaroWinkler{}, true
	}
	return nil, false
}

// Hybrid blends word-token overlap with character edit distance. Token
// overlap tolerates reordering, edit distance tolerates typos.
type Hybrid struct {
	TokenWeight float64
}

// DefaultHybrid weights token overlap 0.4 and edit distance 0.6.
func DefaultHybrid() Hybrid {
	return Hybrid{TokenWeight: 0.4}
}

// Score implements Scorer.
func (h Hybrid) Score(a, b string) float64 {
	w := h.TokenWeight
	if w < 0 || w > 1 {
		w = 0.4
	}
	lev := strutil.Similarity(a, b, metrics.NewLevenshtein())
	return w*tokenDice(a, b) + (1-w)*lev
}

// JaroWinkler scores keys with the Jaro-Winkler metric.
type JaroWinkler struct{}

// Score implements Scorer.
func (JaroWinkler) Score(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewJaroWinkler())
}

// tokenDice is the Sørensen-Dice coefficient over the word sets of a and b,
// ignoring the key separator.
func tokenDice(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokens(key string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Fields(strings.ReplaceAll(key, normalize.Separator, " ")) {
		set[part] = true
	}
	return set
}
