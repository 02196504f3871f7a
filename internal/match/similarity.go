package match

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/firm-crd-matching/internal/normalize"
)

// Scorer names accepted in Config.Scorer.
const (
	ScorerTokenSet    = "token_set"
	ScorerJaroWinkler = "jaro_winkler"
	ScorerEditRatio   = "edit_ratio"
)

// Similarity scores two normalized names in [0,1].
type Similarity interface {
	Score(a, b string) float64
	Name() string
}

// NewSimilarity returns the scorer registered under name.
func NewSimilarity(name string) (Similarity, error) {
	switch name {
	case ScorerTokenSet, "":
		return NewTokenSetRatio(), nil
	case ScorerJaroWinkler:
		return JaroWinkler{BoostThreshold: 0.7, PrefixSize: 4}, nil
	case ScorerEditRatio:
		return EditRatio{}, nil
	}
	return nil, fmt.Errorf("unknown similarity scorer %q", name)
}

// TokenSetRatio compares the significant words of two names independent of
// order. With I the sorted shared words and A, B each side's remaining
// sorted words, the score is
//
//	max(r(I+A, I+B), (r(I, I+A) + r(I, I+B)) / 2)
//
// where r is the indel similarity 1 - d/(len(x)+len(y)), d being the edit
// distance with insert and delete costing 1 and substitution 2.
type TokenSetRatio struct {
	lev *metrics.Levenshtein
}

// NewTokenSetRatio creates the default scorer.
func NewTokenSetRatio() *TokenSetRatio {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	lev.InsertCost = 1
	lev.DeleteCost = 1
	lev.ReplaceCost = 2
	return &TokenSetRatio{lev: lev}
}

func (t *TokenSetRatio) Name() string { return ScorerTokenSet }

func (t *TokenSetRatio) Score(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var shared, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(shared, " ")
	combA := joinNonEmpty(sect, strings.Join(onlyA, " "))
	combB := joinNonEmpty(sect, strings.Join(onlyB, " "))

	best := t.ratio(combA, combB)
	if sect != "" {
		if mean := (t.ratio(sect, combA) + t.ratio(sect, combB)) / 2; mean > best {
			best = mean
		}
	}
	return clamp01(best)
}

func (t *TokenSetRatio) ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0
	}
	return 1 - float64(t.lev.Distance(a, b))/float64(total)
}

// JaroWinkler scores the sorted significant words of each name with the
// Jaro-Winkler metric.
type JaroWinkler struct {
	BoostThreshold float64
	PrefixSize     int
}

func (j JaroWinkler) Name() string { return ScorerJaroWinkler }

func (j JaroWinkler) Score(a, b string) float64 {
	sa, sb := sortedSignificant(a), sortedSignificant(b)
	if sa == "" || sb == "" {
		return 0
	}
	return clamp01(smetrics.JaroWinkler(sa, sb, j.BoostThreshold, j.PrefixSize))
}

// EditRatio is one minus the Levenshtein distance over the longer length,
// computed on the sorted significant words.
type EditRatio struct{}

func (EditRatio) Name() string { return ScorerEditRatio }

func (EditRatio) Score(a, b string) float64 {
	sa, sb := sortedSignificant(a), sortedSignificant(b)
	if sa == "" || sb == "" {
		return 0
	}
	longest := utf8.RuneCountInString(sa)
	if n := utf8.RuneCountInString(sb); n > longest {
		longest = n
	}
	return clamp01(1 - float64(levenshtein.ComputeDistance(sa, sb))/float64(longest))
}

func tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range normalize.SignificantTokens(normalized) {
		set[tok] = true
	}
	return set
}

func sortedSignificant(normalized string) string {
	tokens := normalize.SignificantTokens(normalized)
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
