// Package normalize produces canonical comparison keys for (artist, title)
// pairs. The same key is used for deduplication and as the left-hand side of
// request matching, so every function here is deterministic and idempotent.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins the normalized artist and title inside a key.
const Separator = " - "

var (
	// qualifierWord matches annotation words that mark a bracket group or
	// dash tail as release metadata rather than part of the name.
	qualifierWord = regexp.MustCompile(`\b(?:remix(?:ed)?|mix|edit|version|live|feat|ft|featuring|remaster(?:ed)?|radio|extended|original|clean|explicit|acoustic|instrumental|dub|vip|bootleg|rework|mono|stereo|demo|\d{4})\b`)

	trailingGroup = regexp.MustCompile(`\s*[(\[{]([^()\[\]{}]*)[)\]}]\s*$`)
	dashTail      = regexp.MustCompile(`\s+[-–—―‒−]\s+([^-–—―‒−]+)$`)
	featTail      = regexp.MustCompile(`\s+(?:feat|ft|featuring)\.?(?:\s.*)?$`)
	spaces        = regexp.MustCompile(`\s+`)
)

// Field normalizes a single artist or title string: accents folded,
// case folded, trailing remix/edit/live/featuring qualifiers removed,
// punctuation dropped, and whitespace collapsed.
func Field(s string) string {
	folded := fold(s)
	out := finish(stripQualifiers(folded))
	if out == "" {
		// The whole field was a qualifier, e.g. "(Live)". Keep its words.
		out = finish(folded)
	}
	return out
}

// Key returns the canonical key for an (artist, title) pair.
func Key(artist, title string) string {
	return Field(artist) + Separator + Field(title)
}

// Split reverses Key. Normalized fields never contain the separator, so the
// first occurrence is always the boundary.
func Split(key string) (artist, title string) {
	artist, title, _ = strings.Cut(key, Separator)
	return artist, title
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(strings.TrimSpace(out))
}

// stripQualifiers repeatedly removes trailing qualifier groups until none remain.
func stripQualifiers(s string) string {
	for {
		before := s
		if m := trailingGroup.FindStringSubmatchIndex(s); m != nil {
			if qualifierWord.MatchString(s[m[2]:m[3]]) {
				s = s[:m[0]]
			}
		}
		if m := dashTail.FindStringSubmatchIndex(s); m != nil {
			if qualifierWord.MatchString(s[m[2]:m[3]]) {
				s = s[:m[0]]
			}
		}
		s = featTail.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == before {
			return s
		}
	}
}

func finish(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString(" and ")
		case r == '\'' || r == '’' || r == '‘' || r == '`' || r == 'ʼ':
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	out := strings.TrimSpace(spaces.ReplaceAllString(b.String(), " "))
	return strings.TrimSpace(featTail.ReplaceAllString(out, ""))
}
