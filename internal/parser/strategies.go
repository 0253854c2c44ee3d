package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/theory/jsonpath"

	"github.com/sydlexius/tracksignal/internal/track"
)

var (
	// trackObjects selects objects carrying both an artist-ish and a
	// title-ish member at any depth.
	trackObjects = jsonpath.MustParse(`$..[?(@.artist || @.artists || @.artist_name) && (@.title || @.track || @.song || @.track_name)]`)
	// recordings selects schema.org MusicRecording nodes from JSON-LD.
	recordings = jsonpath.MustParse(`$..[?@["@type"] == "MusicRecording"]`)

	// A spaced dash always wins; a bare Unicode dash only splits lines that
	// have no spaced one, so names like "Jean–Michel Jarre" stay whole.
	spacedDelimited = regexp.MustCompile(`^(.+?)\s+[-–—―‒−]\s+(.+)$`)
	bareDelimited   = regexp.MustCompile(`^(.+?)\s*[–—―‒−]\s*(.+)$`)
	byPattern       = regexp.MustCompile(`(?i)^(.+)\s+by\s+(.+?)$`)
	loneDash        = regexp.MustCompile(`^[-–—―‒−]$`)
	clockTime       = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(?::\d{2})?\s*(?:am|pm)?$`)
	recency         = regexp.MustCompile(`(?i)\b(?:just now|moments? ago|a few (?:seconds|minutes) ago|an? (?:second|minute|hour) ago|\d+\s*(?:s|secs?|seconds?|m|mins?|minutes?|h|hrs?|hours?)\s+ago)\b`)
)

func extractStructured(doc *Document) []Pair {
	var out []Pair
	for _, payload := range doc.Payloads {
		// Wrapping lets the descendant filters consider the root value too.
		root := []any{payload}
		for _, node := range trackObjects.Select(root) {
			m, ok := node.(map[string]any)
			if !ok {
				continue
			}
			artist := firstText(m, "artist", "artists", "artist_name")
			title := firstText(m, "title", "track", "song", "track_name")
			out = append(out, Pair{Artist: artist, Title: title})
		}
		for _, node := range recordings.Select(root) {
			m, ok := node.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, Pair{Artist: firstText(m, "byArtist", "artist"), Title: firstText(m, "name")})
		}
	}
	return out
}

// firstText returns the first member among keys that renders to a
// non-empty string. Arrays of artists are joined with ", ".
func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := text(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return cleanLine(t)
	case float64:
		return fmt.Sprint(t)
	case map[string]any:
		return firstText(t, "name", "title")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := text(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func extractDelimited(doc *Document) []Pair {
	var out []Pair
	for _, line := range doc.Lines {
		if p, ok := splitDelimited(line); ok {
			out = append(out, p)
		}
	}
	return out
}

func splitDelimited(line string) (Pair, bool) {
	m := spacedDelimited.FindStringSubmatch(line)
	if m == nil {
		m = bareDelimited.FindStringSubmatch(line)
	}
	if m == nil {
		return Pair{}, false
	}
	return Pair{Artist: m[1], Title: m[2]}, true
}

// extractBy reads "Title by Artist". Multi-line text files are left to the
// two-line strategy, where "by" is usually part of a title.
func extractBy(doc *Document) []Pair {
	if doc.Kind == track.SourceFile && len(doc.Lines) > 1 {
		return nil
	}
	var out []Pair
	for _, line := range doc.Lines {
		if m := byPattern.FindStringSubmatch(line); m != nil {
			out = append(out, Pair{Artist: m[2], Title: m[1]})
		}
	}
	return out
}

func extractTwoLine(doc *Document) []Pair {
	if len(doc.Lines) < 2 {
		return nil
	}
	return []Pair{{Artist: doc.Lines[0], Title: doc.Lines[1]}}
}

// extractRecency anchors on "just now" / "N minutes ago" markers and reads the
// nearest preceding span shaped like a track: a dashed line, an
// artist/dash/title triple of text nodes, or an artist line followed by a
// title line.
func extractRecency(doc *Document) []Pair {
	lines := doc.Lines
	var out []Pair
	for i, line := range lines {
		loc := recency.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if p, ok := splitDelimited(strings.TrimSpace(line[:loc[0]])); ok {
			out = append(out, p)
			continue
		}
		if p, ok := precedingSpan(lines[:i]); ok {
			out = append(out, p)
		}
	}
	return out
}

func precedingSpan(lines []string) (Pair, bool) {
	// Skip clock times and other markers between the span and the anchor.
	end := len(lines)
	for end > 0 && (clockTime.MatchString(lines[end-1]) || recency.MatchString(lines[end-1])) {
		end--
	}
	if end == 0 {
		return Pair{}, false
	}
	if p, ok := splitDelimited(lines[end-1]); ok {
		return p, true
	}
	if end >= 3 && loneDash.MatchString(lines[end-2]) {
		return Pair{Artist: lines[end-3], Title: lines[end-1]}, true
	}
	if end >= 2 && !recency.MatchString(lines[end-2]) && !clockTime.MatchString(lines[end-2]) {
		return Pair{Artist: lines[end-2], Title: lines[end-1]}, true
	}
	return Pair{}, false
}
