package match

// Decision is what a stability policy chose to emit.
type Decision struct {
	Result     MatchResult
	Divergence *Divergence
}

// StabilityPolicy decides between a freshly computed result and a prior
// decision for the same raw name.
type StabilityPolicy interface {
	Apply(raw string, computed MatchResult, prior *PriorResult, unlocked bool) Decision
}

// PassThrough always emits the computed result.
type PassThrough struct{}

func (PassThrough) Apply(_ string, computed MatchResult, _ *PriorResult, _ bool) Decision {
	return Decision{Result: computed}
}

// KnownGoodGuard keeps trusted prior decisions. A prior is trusted when its
// confidence reaches Threshold or it came from an exact, normalized exact
// or manual match. A trusted prior is emitted unchanged, even when the run
// agrees on the identifier, so a weaker method never replaces it in the
// stored history. Only a reviewer unlock releases it.
type KnownGoodGuard struct {
	Config *Config
}

// NewKnownGoodGuard creates a guard using cfg's stability threshold.
func NewKnownGoodGuard(cfg *Config) *KnownGoodGuard {
	return &KnownGoodGuard{Config: cfg}
}

// KnownGood reports whether prior must not be silently overturned.
func (g *KnownGoodGuard) KnownGood(prior *PriorResult) bool {
	if prior == nil || prior.Identifier == "" || prior.Method == MethodNone || prior.Confidence <= 0 {
		return false
	}
	return prior.Confidence >= g.Config.StabilityThreshold || prior.Method.Certain()
}

func (g *KnownGoodGuard) Apply(raw string, computed MatchResult, prior *PriorResult, unlocked bool) Decision {
	if unlocked || !g.KnownGood(prior) {
		return Decision{Result: computed}
	}

	kept := MatchResult{
		RawName:              raw,
		Identifier:           prior.Identifier,
		MatchedCanonicalName: prior.CanonicalName,
		Confidence:           clamp01(prior.Confidence),
		Method:               prior.Method,
	}
	if computed.Identifier == prior.Identifier {
		if computed.MatchedCanonicalName != "" {
			kept.MatchedCanonicalName = computed.MatchedCanonicalName
		}
		kept.MatchedOnVariant = computed.MatchedOnVariant
	}
	kept.NeedsReview = NeedsReview(g.Config, kept)

	if computed.Identifier == prior.Identifier {
		return Decision{Result: kept}
	}
	return Decision{
		Result: kept,
		Divergence: &Divergence{
			RawName:            raw,
			PriorIdentifier:    prior.Identifier,
			PriorMethod:        prior.Method,
			PriorConfidence:    prior.Confidence,
			ComputedIdentifier: computed.Identifier,
			ComputedMethod:     computed.Method,
			ComputedConfidence: computed.Confidence,
		},
	}
}
