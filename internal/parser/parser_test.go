package parser

import (
	"testing"
	"time"

	"github.com/sydlexius/tracksignal/internal/normalize"
	"github.com/sydlexius/tracksignal/internal/track"
)

func fileSignal(text string) track.RawSignal {
	return track.RawSignal{Text: text, Kind: track.SourceFile, SourceID: "test", CapturedAt: time.Now()}
}

func htmlSignal(text string) track.RawSignal {
	return track.RawSignal{Text: text, Kind: track.SourceRemoteHTML, SourceID: "test", CapturedAt: time.Now()}
}

func TestParse_Delimiter(t *testing.T) {
	tests := []struct {
		in     string
		artist string
		title  string
	}{
		{"Daft Punk - Get Lucky", "Daft Punk", "Get Lucky"},
		{"  Daft Punk   -   Get Lucky  ", "Daft Punk", "Get Lucky"},
		{"Daft Punk – Get Lucky", "Daft Punk", "Get Lucky"},
		{"Daft Punk—Get Lucky", "Daft Punk", "Get Lucky"},
		{"Jay-Z - 99 Problems", "Jay-Z", "99 Problems"},
		{"Jean–Michel Jarre - Oxygène", "Jean–Michel Jarre", "Oxygène"},
		{"Jean—Michel Jarre – Oxygène", "Jean—Michel Jarre", "Oxygène"},
		{"Now Playing: Daft Punk - Get Lucky", "Daft Punk", "Get Lucky"},
		{"Simon &amp; Garfunkel - The Boxer", "Simon & Garfunkel", "The Boxer"},
		{"<b>Daft Punk</b> - Get Lucky", "Daft Punk", "Get Lucky"},
		{"\ufeffDaft Punk - Get Lucky\n", "Daft Punk", "Get Lucky"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cands := Parse(fileSignal(tt.in))
			if len(cands) == 0 {
				t.Fatal("expected a candidate")
			}
			c := cands[0]
			if c.Artist != tt.artist || c.Title != tt.title {
				t.Errorf("got %q / %q, want %q / %q", c.Artist, c.Title, tt.artist, tt.title)
			}
			if c.Strategy != "delimiter" {
				t.Errorf("strategy = %q, want delimiter", c.Strategy)
			}
		})
	}
}

func TestParse_Garbage(t *testing.T) {
	for _, in := range []string{"###garbage###", "", "   ", "-", "a - b", "<<<>>>", "{not json", "x\n"} {
		cands := Parse(fileSignal(in))
		if cands == nil {
			t.Errorf("Parse(%q) returned nil, want empty slice", in)
		}
		if len(cands) != 0 {
			t.Errorf("Parse(%q) = %v, want none", in, cands)
		}
	}
}

func TestParse_Structured(t *testing.T) {
	in := `{"now_playing": {"artist": "Daft Punk", "title": "Get Lucky", "bpm": 116}}`
	cands := Parse(fileSignal(in))
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Strategy != "structured" || cands[0].Confidence != 0.95 {
		t.Errorf("unexpected candidate %+v", cands[0])
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Errorf("got %q / %q", cands[0].Artist, cands[0].Title)
	}
}

func TestParse_StructuredRootAndArtistList(t *testing.T) {
	in := `{"artists": [{"name": "Daft Punk"}, {"name": "Pharrell Williams"}], "track": "Get Lucky"}`
	cands := Parse(fileSignal(in))
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Artist != "Daft Punk, Pharrell Williams" {
		t.Errorf("artist = %q", cands[0].Artist)
	}
}

func TestParse_StructuredBeatsDelimiter(t *testing.T) {
	in := `[{"artist": "Daft Punk", "title": "Get Lucky - Radio Edit"}]`
	cands := Parse(fileSignal(in))
	if len(cands) == 0 || cands[0].Strategy != "structured" {
		t.Fatalf("expected structured result, got %+v", cands)
	}
	if cands[0].Title != "Get Lucky - Radio Edit" {
		t.Errorf("title = %q", cands[0].Title)
	}
}

func TestParse_By(t *testing.T) {
	cands := Parse(fileSignal("Get Lucky by Daft Punk"))
	if len(cands) != 1 {
		t.Fatalf("got %d candidates", len(cands))
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" || cands[0].Strategy != "by" {
		t.Errorf("unexpected candidate %+v", cands[0])
	}
}

func TestParse_TwoLine(t *testing.T) {
	cands := Parse(fileSignal("Daft Punk\nGet Lucky\n"))
	if len(cands) != 1 {
		t.Fatalf("got %d candidates", len(cands))
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" || cands[0].Confidence != 0.6 {
		t.Errorf("unexpected candidate %+v", cands[0])
	}
}

func TestParse_TwoLineTitleWithBy(t *testing.T) {
	cands := Parse(fileSignal("Ben E. King\nStand by Me\n"))
	if len(cands) == 0 {
		t.Fatal("expected a candidate")
	}
	c := cands[0]
	if c.Artist != "Ben E. King" || c.Title != "Stand by Me" || c.Strategy != "two_line" {
		t.Errorf("unexpected candidate %+v", c)
	}
}

func TestParse_TwoLineNotForMarkup(t *testing.T) {
	cands := Parse(htmlSignal("<div>Daft Punk</div><div>Get Lucky</div>"))
	if len(cands) != 0 {
		t.Errorf("expected no candidates for markup without markers, got %+v", cands)
	}
}

func TestParse_MarkupDocumentOrder(t *testing.T) {
	page := `<html><head><title>Live - DJ Test</title><script>var x = "A - B";</script></head>
<body>
<div class="playlist-track"><div class="playlist-trackname">Daft Punk - Get Lucky</div><div class="playlist-tracktime">just now</div></div>
<div class="playlist-track"><div class="playlist-trackname">Chic &ndash; Le Freak</div><div class="playlist-tracktime">4 minutes ago</div></div>
</body></html>`
	cands := Parse(htmlSignal(page))
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(cands), cands)
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Errorf("first = %+v", cands[0])
	}
	if cands[1].Artist != "Chic" || cands[1].Title != "Le Freak" {
		t.Errorf("second = %+v", cands[1])
	}
	if !(cands[0].Confidence > cands[1].Confidence) {
		t.Error("expected earlier entries to rank higher")
	}
}

func TestParse_InlineMarkupJoined(t *testing.T) {
	cands := Parse(htmlSignal(`<p><span>Daft Punk</span> - <em>Get Lucky</em></p>`))
	if len(cands) != 1 || cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

func TestParse_RecencyTriple(t *testing.T) {
	page := `<ul><li><div>Daft Punk</div><div>-</div><div>Get Lucky</div><div>10:32</div><div>2 minutes ago</div></li></ul>`
	cands := Parse(htmlSignal(page))
	if len(cands) != 1 {
		t.Fatalf("got %d candidates: %+v", len(cands), cands)
	}
	if cands[0].Strategy != "recency" || cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Errorf("unexpected candidate %+v", cands[0])
	}
}

func TestParse_RecencyPair(t *testing.T) {
	page := `<div><p>Daft Punk</p><p>Get Lucky</p><p>just now</p></div>`
	cands := Parse(htmlSignal(page))
	if len(cands) != 1 || cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

func TestParse_LDJSON(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"MusicRecording","name":"Get Lucky","byArtist":{"@type":"MusicGroup","name":"Daft Punk"}}
</script></head><body><p>Chic - Le Freak</p></body></html>`
	cands := Parse(htmlSignal(page))
	if len(cands) != 1 || cands[0].Strategy != "structured" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
	if cands[0].Artist != "Daft Punk" || cands[0].Title != "Get Lucky" {
		t.Errorf("got %+v", cands[0])
	}
}

func TestParse_ShortFieldRejected(t *testing.T) {
	cands := Parse(fileSignal("X - Get Lucky"))
	if len(cands) != 0 {
		t.Errorf("expected rejection of one-character artist, got %+v", cands)
	}
}

func TestParse_NormalizedKeyRoundTrip(t *testing.T) {
	for _, in := range []string{"Daft Punk - Get Lucky (Radio Edit)", "Simon & Garfunkel - Mrs. Robinson", "Beyoncé - Halo"} {
		c, ok := Best(Parse(fileSignal(in)))
		if !ok {
			t.Fatalf("no candidate for %q", in)
		}
		key := normalize.Key(c.Artist, c.Title)
		again, ok := Best(Parse(fileSignal(key)))
		if !ok {
			t.Fatalf("no candidate when re-parsing key %q", key)
		}
		if got := normalize.Key(again.Artist, again.Title); got != key {
			t.Errorf("re-parsed key %q != %q", got, key)
		}
	}
}

func TestCustomStrategyTable(t *testing.T) {
	p := New(Strategy{
		Name:       "fixed",
		Confidence: 0.5,
		Extract: func(*Document) []Pair {
			return []Pair{{Artist: "Daft Punk", Title: "Get Lucky"}}
		},
	})
	cands := p.Parse(fileSignal("anything"))
	if len(cands) != 1 || cands[0].Strategy != "fixed" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

func TestParse_PanickingStrategy(t *testing.T) {
	p := New(Strategy{Name: "boom", Extract: func(*Document) []Pair { panic("boom") }})
	if cands := p.Parse(fileSignal("Daft Punk - Get Lucky")); len(cands) != 0 {
		t.Errorf("expected empty result, got %+v", cands)
	}
}

func TestValidField(t *testing.T) {
	tests := map[string]bool{
		"ab": true,
		"a":  false,
		"--": false,
		"99": true,
		"日本": true,
		"":   false,
	}
	for in, want := range tests {
		if got := ValidField(in); got != want {
			t.Errorf("ValidField(%q) = %v, want %v", in, got, want)
		}
	}
}
