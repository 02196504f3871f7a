package registry

import (
	"errors"
	"testing"
)

func testRecords() []FirmRecord {
	return []FirmRecord{
		{Identifier: "149777", Name: "Morgan Stanley Wealth Management"},
		{Identifier: "19616", Name: "Wells Fargo Advisors"},
		{Identifier: "2001", Name: "ABC Capital"},
		{Identifier: "2002", Name: "ABC Capital Corp"},
		{Identifier: "3001", Name: "Acme Wealth Management"},
	}
}

func TestBuildDerivesKeys(t *testing.T) {
	idx, err := Build(false, testRecords(), nil, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	f, ok := idx.Firm("19616")
	if !ok {
		t.Fatal("firm 19616 not indexed")
	}
	if f.NormalizedName != "wells fargo advisors" {
		t.Errorf("NormalizedName = %q", f.NormalizedName)
	}
	if f.BaseName != "wells fargo" {
		t.Errorf("BaseName = %q", f.BaseName)
	}
	if f.BucketKey != "w" {
		t.Errorf("BucketKey = %q", f.BucketKey)
	}
	if idx.Len() != 5 {
		t.Errorf("Len() = %d, want 5", idx.Len())
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []FirmRecord
		aliases []Alias
		opts    Options
		wantErr error
	}{
		{
			name:    "empty identifier",
			records: []FirmRecord{{Identifier: " ", Name: "Acme"}},
			wantErr: ErrEmptyIdentifier,
		},
		{
			name:    "duplicate identifier",
			records: []FirmRecord{{Identifier: "1", Name: "Acme"}, {Identifier: "1", Name: "Beta"}},
			wantErr: ErrDuplicateIdentifier,
		},
		{
			name:    "empty name",
			records: []FirmRecord{{Identifier: "1", Name: ""}},
			wantErr: ErrEmptyName,
		},
		{
			name:    "alias to unknown firm",
			records: []FirmRecord{{Identifier: "1", Name: "Acme"}},
			aliases: []Alias{{Identifier: "2", Name: "Apex"}},
			wantErr: ErrUnknownAliasTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(false, tt.records, tt.aliases, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Build(false, testRecords(), nil, Options{BucketStrategy: "soundex"}); err == nil {
		t.Error("expected error for unknown bucket strategy")
	}
}

func TestLookups(t *testing.T) {
	idx, err := Build(false, testRecords(), []Alias{{Identifier: "3001", Name: "Apex Advisors LLC", Kind: "former"}}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if res := idx.ExactLookup("Morgan Stanley Wealth Management"); res.Status != LookupUnique || res.Firm().Identifier != "149777" {
		t.Errorf("ExactLookup = %+v", res)
	}
	if res := idx.ExactLookup("morgan stanley wealth management"); res.Status != LookupNone {
		t.Errorf("ExactLookup should be case sensitive, got %v", res.Status)
	}

	res := idx.NormalizedLookup("abc capital")
	if res.Status != LookupAmbiguous {
		t.Fatalf("NormalizedLookup status = %v, want ambiguous", res.Status)
	}
	if res.Firms[0].Identifier != "2001" || res.Firms[1].Identifier != "2002" {
		t.Errorf("ambiguous firms not ordered by identifier: %s, %s", res.Firms[0].Identifier, res.Firms[1].Identifier)
	}
	if res.Firm() != nil {
		t.Error("Firm() of ambiguous result should be nil")
	}

	if res := idx.BaseLookup("acme"); res.Status != LookupUnique || res.Firm().Identifier != "3001" {
		t.Errorf("BaseLookup(acme) = %+v", res)
	}
	if res := idx.AliasLookup("apex advisors"); res.Status != LookupUnique || res.Firm().Identifier != "3001" {
		t.Errorf("AliasLookup(apex advisors) = %+v", res)
	}
	if res := idx.AliasBaseLookup("apex"); res.Status != LookupUnique || res.Firm().Identifier != "3001" {
		t.Errorf("AliasBaseLookup(apex) = %+v", res)
	}
	if res := idx.AliasBaseLookup(""); res.Status != LookupNone {
		t.Errorf("AliasBaseLookup(\"\") status = %v", res.Status)
	}
	if res := idx.NormalizedLookup(""); res.Status != LookupNone {
		t.Errorf("empty lookup status = %v", res.Status)
	}
}

func TestUnion(t *testing.T) {
	idx, err := Build(false, testRecords(), []Alias{{Identifier: "3001", Name: "Acme Advisors"}}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	same := Union(idx.AliasBaseLookup("acme"), idx.BaseLookup("acme"))
	if same.Status != LookupUnique || same.Firm().Identifier != "3001" {
		t.Errorf("Union of the same firm = %+v, want unique 3001", same)
	}

	mixed := Union(idx.BaseLookup("acme"), idx.NormalizedLookup("abc capital"))
	if mixed.Status != LookupAmbiguous || len(mixed.Firms) != 3 {
		t.Fatalf("Union = %+v, want three firms", mixed)
	}
	if mixed.Firms[0].Identifier != "2001" || mixed.Firms[2].Identifier != "3001" {
		t.Errorf("Union not ordered by identifier: %s .. %s", mixed.Firms[0].Identifier, mixed.Firms[2].Identifier)
	}

	if none := Union(); none.Status != LookupNone {
		t.Errorf("empty Union status = %v", none.Status)
	}
}

func TestCollisionsAndMustUnique(t *testing.T) {
	idx, err := Build(false, testRecords(), nil, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	collisions := idx.Collisions()
	if len(collisions) != 1 || collisions[0].NormalizedName != "abc capital" {
		t.Fatalf("Collisions() = %+v", collisions)
	}

	if _, err := idx.MustUnique("abc capital"); !errors.Is(err, ErrAmbiguousName) {
		t.Errorf("MustUnique error = %v, want ErrAmbiguousName", err)
	}
	f, err := idx.MustUnique("wells fargo advisors")
	if err != nil || f == nil || f.Identifier != "19616" {
		t.Errorf("MustUnique = %v, %v", f, err)
	}
	if f, err := idx.MustUnique("nobody"); f != nil || err != nil {
		t.Errorf("MustUnique(nobody) = %v, %v", f, err)
	}
}

func TestEveryFirmInExactlyOneBucket(t *testing.T) {
	for _, strategy := range []BucketStrategy{BucketFirstChar, BucketFirstTwo, BucketFirstToken} {
		idx, err := Build(false, testRecords(), nil, Options{BucketStrategy: strategy})
		if err != nil {
			t.Fatalf("Build(%s) error = %v", strategy, err)
		}

		seen := make(map[string]int)
		for _, f := range idx.Firms() {
			for _, c := range idx.CandidatesForBucket(f.BucketKey) {
				if c == f {
					seen[f.Identifier]++
				}
			}
			if f.BucketKey != strategy.Key(f.NormalizedName) {
				t.Errorf("%s: bucket key %q not derived from %q", strategy, f.BucketKey, f.NormalizedName)
			}
		}
		total := 0
		for _, n := range seen {
			total += n
		}
		if total != idx.Len() || len(seen) != idx.Len() {
			t.Errorf("%s: firms placed %d times across %d distinct firms", strategy, total, len(seen))
		}
	}
}

func TestBucketKey(t *testing.T) {
	tests := []struct {
		strategy BucketStrategy
		in       string
		want     string
	}{
		{BucketFirstChar, "acme wealth", "a"},
		{BucketFirstTwo, "a bc", "ab"},
		{BucketFirstTwo, "x", "x"},
		{BucketFirstToken, "acme wealth", "acme"},
		{BucketFirstChar, "", ""},
	}
	for _, tt := range tests {
		if got := tt.strategy.Key(tt.in); got != tt.want {
			t.Errorf("%s.Key(%q) = %q, want %q", tt.strategy, tt.in, got, tt.want)
		}
	}
}

func TestBucketOrdering(t *testing.T) {
	idx, err := Build(false, testRecords(), nil, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	bucket := idx.CandidatesForBucket("a")
	if len(bucket) != 3 {
		t.Fatalf("bucket a has %d firms, want 3", len(bucket))
	}
	want := []string{"2001", "2002", "3001"}
	for i, f := range bucket {
		if f.Identifier != want[i] {
			t.Errorf("bucket[%d] = %s, want %s", i, f.Identifier, want[i])
		}
	}
}

func TestTokensAndStats(t *testing.T) {
	idx, err := Build(false, testRecords(), []Alias{{Identifier: "2001", Name: "ABC Holdings"}}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	tokens := idx.Tokens()
	if tokens["abc"] != 3 {
		t.Errorf("tokens[abc] = %d, want 3", tokens["abc"])
	}
	stats := idx.Stats()
	if stats.Firms != 5 || stats.Aliases != 1 || stats.Collisions != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}
