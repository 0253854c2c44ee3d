package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sydlexius/tracksignal/internal/track"
)

// Document is a raw signal after entity decoding, tag stripping, and
// whitespace collapsing. Strategies only ever see a Document.
type Document struct {
	Kind track.SourceKind
	// Lines holds the non-empty rendered text lines in source order.
	Lines []string
	// Payloads holds decoded JSON values: the whole signal when it is JSON,
	// plus any application/ld+json blocks embedded in markup.
	Payloads []any
}

var (
	tagPattern   = regexp.MustCompile(`<[^<>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	labelPrefix  = regexp.MustCompile(`(?i)^(?:now playing|currently playing|playing now|now on air|on air|np)\s*[:|»>]\s*`)
)

// skippedElements never contribute rendered text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"title": true, "textarea": true, "iframe": true,
}

// inlineElements continue the current line instead of starting a new one.
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "dfn": true, "em": true, "font": true, "i": true,
	"kbd": true, "mark": true, "q": true, "s": true, "samp": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "time": true, "u": true,
	"var": true, "wbr": true,
}

// NewDocument pre-processes a raw signal.
func NewDocument(raw track.RawSignal) *Document {
	text := strings.TrimPrefix(raw.Text, "\ufeff")
	doc := &Document{Kind: raw.Kind}

	if v, ok := decodeJSON(text); ok {
		doc.Payloads = append(doc.Payloads, v)
	}

	if raw.Kind.IsMarkup() {
		lines, blocks := renderMarkup(text)
		doc.Lines = lines
		for _, b := range blocks {
			if v, ok := decodeJSON(b); ok {
				doc.Payloads = append(doc.Payloads, v)
			}
		}
		return doc
	}

	stripped := html.UnescapeString(tagPattern.ReplaceAllString(text, " "))
	doc.Lines = splitLines(stripped, nil)
	return doc
}

func decodeJSON(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// renderMarkup tokenizes HTML into text lines, breaking at block-level
// element boundaries. Contents of application/ld+json scripts are returned
// separately.
func renderMarkup(s string) (lines []string, jsonBlocks []string) {
	z := html.NewTokenizer(strings.NewReader(s))
	var cur strings.Builder
	skipping := ""
	inLDJSON := false

	flush := func() {
		lines = splitLines(cur.String(), lines)
		cur.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return lines, jsonBlocks

		case html.TextToken:
			if skipping != "" {
				if inLDJSON {
					jsonBlocks = append(jsonBlocks, string(z.Text()))
				}
				continue
			}
			cur.Write(z.Text())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if skippedElements[tag] {
				flush()
				if tt == html.StartTagToken {
					skipping = tag
					inLDJSON = tag == "script" && hasAttr && isLDJSON(z)
				}
				continue
			}
			if inlineElements[tag] {
				cur.WriteByte(' ')
				continue
			}
			flush()

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == skipping {
				skipping = ""
				inLDJSON = false
				continue
			}
			if inlineElements[tag] {
				cur.WriteByte(' ')
				continue
			}
			flush()
		}
	}
}

func isLDJSON(z *html.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "type" && strings.EqualFold(strings.TrimSpace(string(val)), "application/ld+json") {
			return true
		}
		if !more {
			return false
		}
	}
}

// splitLines appends the cleaned, non-empty lines of s to dst.
func splitLines(s string, dst []string) []string {
	for line := range strings.FieldsFuncSeq(s, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if cleaned := cleanLine(line); cleaned != "" {
			dst = append(dst, cleaned)
		}
	}
	return dst
}

func cleanLine(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	return strings.TrimSpace(labelPrefix.ReplaceAllString(s, ""))
}
