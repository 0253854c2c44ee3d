package normalize

import "testing"

func TestField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Get Lucky", "get lucky"},
		{"trim and collapse", "  Get    Lucky  ", "get lucky"},
		{"accents", "Beyoncé", "beyonce"},
		{"case fold", "DAFT PUNK", "daft punk"},
		{"remix bracket", "Get Lucky (Radio Edit)", "get lucky"},
		{"square bracket", "Strobe [Extended Mix]", "strobe"},
		{"stacked qualifiers", "One More Time (Live) [2007 Remaster]", "one more time"},
		{"feat parenthetical", "Get Lucky (feat. Pharrell Williams)", "get lucky"},
		{"feat tail", "Get Lucky feat. Pharrell Williams", "get lucky"},
		{"ft tail", "Get Lucky ft Pharrell", "get lucky"},
		{"dash qualifier", "Around the World - Live Version", "around the world"},
		{"non qualifier bracket kept", "Song (Part Two)", "song part two"},
		{"ampersand", "Simon & Garfunkel", "simon and garfunkel"},
		{"apostrophe", "Don't Stop Me Now", "dont stop me now"},
		{"punctuation", "AC/DC", "ac dc"},
		{"hyphenated name", "Jay-Z", "jay z"},
		{"only qualifier", "(Live)", "live"},
		{"empty", "", ""},
		{"ft inside word", "Daft Punk", "daft punk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Field(tt.in); got != tt.want {
				t.Errorf("Field(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestField_Idempotent(t *testing.T) {
	inputs := []string{
		"Get Lucky (Radio Edit)",
		"(Live) feat. Someone",
		"Song (feat. X",
		"Café del Mar - 2001 Remaster",
		"Rock & Roll [Live]",
		"  weird   ---  spacing  ",
		"Ünïcödé Tïtlé",
		"Song ft.",
		"###",
	}
	for _, in := range inputs {
		once := Field(in)
		twice := Field(once)
		if once != twice {
			t.Errorf("Field not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestKey(t *testing.T) {
	got := Key("Daft Punk", "Get Lucky (feat. Pharrell Williams)")
	if got != "daft punk - get lucky" {
		t.Errorf("Key = %q", got)
	}
	if Key("DAFT PUNK", "get lucky") != got {
		t.Error("keys for equivalent pairs differ")
	}
}

func TestKey_SplitRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"Daft Punk", "Get Lucky"},
		{"Jay-Z", "99 Problems"},
		{"Simon & Garfunkel", "The Boxer (Live)"},
		{"", "Untitled"},
	}
	for _, p := range pairs {
		key := Key(p[0], p[1])
		a, tt := Split(key)
		if again := Key(a, tt); again != key {
			t.Errorf("Key(Split(%q)) = %q", key, again)
		}
	}
}
