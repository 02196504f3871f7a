package match

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/normalize"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/symspell"
)

// Query is one name prepared for the tier chain.
type Query struct {
	Raw        string
	Normalized string
	Base       string
	// FuzzyNormalized is Normalized after optional spelling correction; only
	// the fuzzy tier reads it.
	FuzzyNormalized string
	Corrections     []symspell.CorrectionResult
}

// Candidate is a scored registry firm proposed by a tier.
type Candidate struct {
	Firm   *registry.ReferenceFirm
	Score  float64
	Method Method
}

// TierOutcome is what a tier reports back. A nil Candidate means the tier
// declined. Ambiguous is set when the tier declined because several firms
// fit equally.
type TierOutcome struct {
	Candidate *Candidate
	RunnerUp  *Candidate
	Ambiguous bool
}

// Tier is one matching strategy in the priority chain.
type Tier interface {
	Name() string
	Attempt(localDebug bool, q *Query) TierOutcome
}

// Override pins a raw name to a registry identifier by hand.
type Override struct {
	RawName    string
	Identifier string
	Reason     string
}

// ManualOverrideTier resolves names a reviewer has already decided.
type ManualOverrideTier struct {
	byNormalized map[string]*registry.ReferenceFirm
}

// NewManualOverrideTier indexes overrides by normalized name. Overrides
// naming firms missing from the registry are skipped; two overrides that
// pin the same normalized name to different firms are an error.
func NewManualOverrideTier(idx *registry.Index, overrides []Override) (*ManualOverrideTier, error) {
	t := &ManualOverrideTier{byNormalized: make(map[string]*registry.ReferenceFirm)}
	for _, o := range overrides {
		firm, ok := idx.Firm(strings.TrimSpace(o.Identifier))
		if !ok {
			debug.Logger().Warn("override names unknown identifier, skipped",
				zap.String("raw_name", o.RawName), zap.String("identifier", o.Identifier))
			continue
		}
		key := normalize.Normalize(o.RawName)
		if key == "" {
			continue
		}
		if existing, dup := t.byNormalized[key]; dup && existing != firm {
			return nil, fmt.Errorf("conflicting overrides for %q: %s and %s", key, existing.Identifier, firm.Identifier)
		}
		t.byNormalized[key] = firm
	}
	return t, nil
}

func (t *ManualOverrideTier) Name() string { return TierManual }

// Len returns the number of distinct overridden names.
func (t *ManualOverrideTier) Len() int { return len(t.byNormalized) }

func (t *ManualOverrideTier) Attempt(localDebug bool, q *Query) TierOutcome {
	firm, ok := t.byNormalized[q.Normalized]
	if !ok {
		return TierOutcome{}
	}
	debug.DebugOutput(localDebug, "manual override %q -> %s", q.Normalized, firm.Identifier)
	return TierOutcome{Candidate: &Candidate{Firm: firm, Score: 1.0, Method: MethodManual}}
}

// ExactTier matches the raw name against canonical names verbatim.
type ExactTier struct {
	index *registry.Index
}

func (t *ExactTier) Name() string { return TierExact }

func (t *ExactTier) Attempt(localDebug bool, q *Query) TierOutcome {
	res := t.index.ExactLookup(q.Raw)
	debug.DebugOutput(localDebug, "exact %q: %s", q.Raw, res.Status)
	return lookupOutcome(res, 1.0, MethodExact)
}

// NormalizedExactTier matches normalized names and declines on collisions.
type NormalizedExactTier struct {
	index      *registry.Index
	confidence float64
}

func (t *NormalizedExactTier) Name() string { return TierNormalizedExact }

func (t *NormalizedExactTier) Attempt(localDebug bool, q *Query) TierOutcome {
	res := t.index.NormalizedLookup(q.Normalized)
	debug.DebugOutput(localDebug, "normalized %q: %s", q.Normalized, res.Status)
	return lookupOutcome(res, t.confidence, MethodNormalizedExact)
}

// VariantTier matches the normalized name against the alias table, then
// the base name against the base names of aliases and registry firms.
type VariantTier struct {
	index           *registry.Index
	aliasConfidence float64
	baseConfidence  float64
}

func (t *VariantTier) Name() string { return TierVariant }

func (t *VariantTier) Attempt(localDebug bool, q *Query) TierOutcome {
	alias := t.index.AliasLookup(q.Normalized)
	debug.DebugOutput(localDebug, "alias %q: %s", q.Normalized, alias.Status)
	aliasOut := lookupOutcome(alias, t.aliasConfidence, MethodVariant)
	if aliasOut.Candidate != nil {
		return aliasOut
	}

	base := registry.Union(t.index.AliasBaseLookup(q.Base), t.index.BaseLookup(q.Base))
	debug.DebugOutput(localDebug, "base %q: %s", q.Base, base.Status)
	out := lookupOutcome(base, t.baseConfidence, MethodVariant)
	out.Ambiguous = out.Ambiguous || aliasOut.Ambiguous
	return out
}

// TokenFuzzyTier scores every firm in the query's bucket and proposes the
// best one above the acceptance threshold.
type TokenFuzzyTier struct {
	index      *registry.Index
	similarity Similarity
	acceptance float64
	guard      bool
	guardBelow float64
}

func (t *TokenFuzzyTier) Name() string { return TierTokenFuzzy }

func (t *TokenFuzzyTier) Attempt(localDebug bool, q *Query) TierOutcome {
	name := q.FuzzyNormalized
	if name == "" {
		return TierOutcome{}
	}

	bucket := t.index.CandidatesForBucket(t.index.BucketKey(name))
	debug.DebugOutput(localDebug, "fuzzy %q against %d bucket candidates (%s)", name, len(bucket), t.similarity.Name())

	scored := make([]Candidate, 0, len(bucket))
	for _, firm := range bucket {
		score := t.similarity.Score(name, firm.NormalizedName)
		if score <= 0 {
			continue
		}
		if t.guard && score < t.guardBelow && normalize.PhoneticTokenOverlap(name, firm.NormalizedName) == 0 {
			debug.DebugOutput(localDebug, "  %s %.3f rejected by phonetic guard", firm.Identifier, score)
			continue
		}
		scored = append(scored, Candidate{Firm: firm, Score: score, Method: MethodTokenFuzzy})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Firm.Identifier < scored[j].Firm.Identifier
	})

	if len(scored) == 0 || scored[0].Score < t.acceptance {
		return TierOutcome{}
	}

	out := TierOutcome{Candidate: &scored[0]}
	if len(scored) > 1 {
		out.RunnerUp = &scored[1]
	}
	debug.DebugOutput(localDebug, "  winner %s %.3f", out.Candidate.Firm.Identifier, out.Candidate.Score)
	return out
}

func lookupOutcome(res registry.LookupResult, confidence float64, method Method) TierOutcome {
	switch res.Status {
	case registry.LookupUnique:
		return TierOutcome{Candidate: &Candidate{Firm: res.Firms[0], Score: confidence, Method: method}}
	case registry.LookupAmbiguous:
		return TierOutcome{Ambiguous: true}
	default:
		return TierOutcome{}
	}
}

// buildTiers assembles the chain in configured order.
func buildTiers(idx *registry.Index, cfg *Config, sim Similarity, manual *ManualOverrideTier) []Tier {
	var tiers []Tier
	for _, name := range cfg.Tiers {
		switch name {
		case TierManual:
			if manual != nil && manual.Len() > 0 {
				tiers = append(tiers, manual)
			}
		case TierExact:
			tiers = append(tiers, &ExactTier{index: idx})
		case TierNormalizedExact:
			tiers = append(tiers, &NormalizedExactTier{index: idx, confidence: cfg.NormalizedExactConfidence})
		case TierVariant:
			if cfg.EnableVariantTier {
				tiers = append(tiers, &VariantTier{
					index:           idx,
					aliasConfidence: cfg.AliasConfidence,
					baseConfidence:  cfg.VariantConfidence,
				})
			}
		case TierTokenFuzzy:
			tiers = append(tiers, &TokenFuzzyTier{
				index:      idx,
				similarity: sim,
				acceptance: cfg.FuzzyAcceptance,
				guard:      cfg.EnablePhoneticGuard,
				guardBelow: cfg.PhoneticGuardBelow,
			})
		}
	}
	return tiers
}
