package symspell

import (
	"reflect"
	"testing"
)

// Test dictionary of words common in broker-dealer and adviser names
func buildTestDictionary() *SymSpell {
	entries := []DictionaryEntry{
		{Term: "morgan", Frequency: 50},
		{Term: "stanley", Frequency: 40},
		{Term: "wealth", Frequency: 100},
		{Term: "management", Frequency: 120},
		{Term: "financial", Frequency: 90},
		{Term: "advisors", Frequency: 80},
		{Term: "advisers", Frequency: 10},
		{Term: "capital", Frequency: 70},
		{Term: "partners", Frequency: 60},
		{Term: "securities", Frequency: 30},
		{Term: "wells", Frequency: 20},
		{Term: "fargo", Frequency: 20},
	}

	config := &Config{
		MaxEditDistance: 2,
		MinTermLength:   4,
		MinFrequency:    1,
		Enabled:         true,
	}
	return BuildFromEntries(entries, config)
}

func TestSymSpellLookup(t *testing.T) {
	symspell := buildTestDictionary()

	tests := []struct {
		name         string
		input        string
		wantTerm     string
		wantDistance int
	}{
		{name: "exact match", input: "morgan", wantTerm: "morgan", wantDistance: 0},
		{name: "upper case input", input: "MORGAN", wantTerm: "morgan", wantDistance: 0},
		{name: "transposition", input: "stanely", wantTerm: "stanley", wantDistance: 1},
		{name: "missing letter", input: "finacial", wantTerm: "financial", wantDistance: 1},
		{name: "missing vowel", input: "managment", wantTerm: "management", wantDistance: 1},
		{name: "substitution", input: "capitol", wantTerm: "capital", wantDistance: 1},
		{name: "dropped letter", input: "partnrs", wantTerm: "partners", wantDistance: 1},
		{name: "extra letter", input: "wealtth", wantTerm: "wealth", wantDistance: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := symspell.LookupBest(tt.input, 2)
			if best == nil {
				t.Fatalf("LookupBest(%q) returned nil", tt.input)
			}
			if best.Term != tt.wantTerm || best.Distance != tt.wantDistance {
				t.Errorf("LookupBest(%q) = %s/%d, want %s/%d",
					tt.input, best.Term, best.Distance, tt.wantTerm, tt.wantDistance)
			}
		})
	}
}

func TestSymSpellNoMatch(t *testing.T) {
	symspell := buildTestDictionary()

	for _, input := range []string{"zzzzzzz", "", "qqq"} {
		if got := symspell.LookupBest(input, 2); got != nil {
			t.Errorf("LookupBest(%q) = %+v, want nil", input, got)
		}
	}
}

func TestSymSpellFrequencyOrdering(t *testing.T) {
	symspell := buildTestDictionary()

	suggestions := symspell.Lookup("advisxrs", 2)
	if len(suggestions) < 2 {
		t.Fatalf("expected at least 2 suggestions, got %v", suggestions)
	}
	if suggestions[0].Term != "advisors" || suggestions[1].Term != "advisers" {
		t.Errorf("suggestions not ordered by frequency: %v", suggestions)
	}
}

func TestSymSpellTieBreaksByTerm(t *testing.T) {
	s := BuildFromEntries([]DictionaryEntry{
		{Term: "bolt", Frequency: 5},
		{Term: "bold", Frequency: 5},
	}, &Config{MaxEditDistance: 1, MinTermLength: 1, MinFrequency: 1})

	suggestions := s.Lookup("bole", 1)
	if len(suggestions) != 2 || suggestions[0].Term != "bold" {
		t.Errorf("suggestions = %v, want bold first", suggestions)
	}
}

func TestAddTermAccumulatesFrequency(t *testing.T) {
	s := New(&Config{MaxEditDistance: 1, MinTermLength: 1, MinFrequency: 1})
	s.AddTerm("acme", 2)
	s.AddTerm("ACME", 3)

	if !s.Contains("Acme") {
		t.Fatal("expected acme in dictionary")
	}
	if best := s.LookupBest("acme", 1); best.Frequency != 5 {
		t.Errorf("frequency = %d, want 5", best.Frequency)
	}
}

func TestCorrectorCorrectName(t *testing.T) {
	corrector := NewCorrector(buildTestDictionary(), &Config{MaxEditDistance: 2, MinTermLength: 4, Enabled: true})

	tests := []struct {
		name            string
		input           string
		want            string
		wantCorrections int
	}{
		{name: "one misspelling", input: "morgan stanely wealth mgmt", want: "morgan stanley wealth mgmt", wantCorrections: 1},
		{name: "two misspellings", input: "wels fargo finacial", want: "wells fargo financial", wantCorrections: 2},
		{name: "nothing to correct", input: "morgan stanley", want: "morgan stanley", wantCorrections: 0},
		{name: "digits skipped", input: "capitol 401k", want: "capital 401k", wantCorrections: 1},
		{name: "short tokens skipped", input: "jp morgan", want: "jp morgan", wantCorrections: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrections := corrector.CorrectName(tt.input)
			if got != tt.want {
				t.Errorf("CorrectName(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if len(corrections) != tt.wantCorrections {
				t.Errorf("CorrectName(%q) made %d corrections, want %d", tt.input, len(corrections), tt.wantCorrections)
			}
		})
	}
}

func TestNilCorrectorIsNoop(t *testing.T) {
	var c *Corrector
	if got, corrections := c.CorrectName("acme"); got != "acme" || corrections != nil {
		t.Errorf("nil corrector changed input: %q %v", got, corrections)
	}
	if res := c.CorrectToken("acme"); res.WasCorrected {
		t.Error("nil corrector corrected a token")
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		max  int
		want int
	}{
		{"abc", "abc", 2, 0},
		{"ca", "ac", 2, 1},
		{"kitten", "sitting", 3, 3},
		{"abc", "", 3, 3},
		{"abcdef", "uvwxyz", 2, -1},
		{"a", "abcd", 2, -1},
	}

	for _, tt := range tests {
		if got := editDistance(tt.a, tt.b, tt.max); got != tt.want {
			t.Errorf("editDistance(%q, %q, %d) = %d, want %d", tt.a, tt.b, tt.max, got, tt.want)
		}
	}
}

func TestDeletesOf(t *testing.T) {
	want := []string{"ab", "ac", "bc"}
	if got := deletesOf("abc", 1); !reflect.DeepEqual(got, want) {
		t.Errorf("deletesOf(abc, 1) = %v, want %v", got, want)
	}

	got := deletesOf("abc", 2)
	if len(got) != 6 {
		t.Errorf("deletesOf(abc, 2) = %v, want 6 entries", got)
	}
}

type fakeTokens map[string]int64

func (f fakeTokens) Tokens() map[string]int64 { return f }

func TestBuildFromIndexAndStats(t *testing.T) {
	s := BuildFromIndex(false, fakeTokens{"acme": 3, "wealth": 2, "co": 9}, DefaultConfig())

	stats := s.Stats()
	if stats.TermCount != 2 {
		t.Errorf("TermCount = %d, want 2 (short terms dropped)", stats.TermCount)
	}
	if stats.TotalFrequency != 5 || stats.MaxFrequency != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SYMSPELL_ENABLED", "true")
	t.Setenv("SYMSPELL_MAX_EDIT_DISTANCE", "9")
	t.Setenv("SYMSPELL_MIN_TERM_LENGTH", "5")

	cfg := LoadConfigFromEnv()
	if !cfg.Enabled {
		t.Error("expected enabled")
	}
	if cfg.MaxEditDistance != 2 {
		t.Errorf("out of range distance accepted: %d", cfg.MaxEditDistance)
	}
	if cfg.MinTermLength != 5 {
		t.Errorf("MinTermLength = %d, want 5", cfg.MinTermLength)
	}
}
