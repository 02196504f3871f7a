package match

// Evaluate turns the winning tier's output into a MatchResult. It is pure:
// the result depends only on cfg and outcome.
func Evaluate(cfg *Config, outcome TierOutcome) MatchResult {
	if outcome.Candidate == nil || outcome.Candidate.Firm == nil {
		return MatchResult{
			Method:      MethodNone,
			NeedsReview: true,
			Ambiguous:   outcome.Ambiguous,
		}
	}

	winner := outcome.Candidate
	res := MatchResult{
		Identifier:           winner.Firm.Identifier,
		MatchedCanonicalName: winner.Firm.CanonicalName,
		Confidence:           clamp01(winner.Score),
		Method:               winner.Method,
		Ambiguous:            outcome.Ambiguous,
	}

	// Margins only exist between ranked candidates, never for lookup tiers.
	if winner.Method == MethodTokenFuzzy && outcome.RunnerUp != nil {
		res.ConfidenceMargin = floatPtr(clamp01(winner.Score - outcome.RunnerUp.Score))
		if *res.ConfidenceMargin < cfg.AmbiguityMargin {
			res.Ambiguous = true
		}
	}

	res.NeedsReview = NeedsReview(cfg, res)
	return res
}

// NeedsReview applies the review policy to a result.
func NeedsReview(cfg *Config, r MatchResult) bool {
	switch {
	case !r.Matched() || r.Method == MethodNone:
		return true
	case r.Confidence < cfg.HighConfidence:
		return true
	case r.ConfidenceMargin != nil && *r.ConfidenceMargin < cfg.AmbiguityMargin:
		return true
	case r.Method == MethodTokenFuzzy && !cfg.TrustFuzzyAboveThreshold:
		return true
	case r.Ambiguous:
		return true
	}
	return false
}

// unmatched is the result for a name no tier could resolve.
func unmatched(raw string) MatchResult {
	return MatchResult{RawName: raw, Method: MethodNone, NeedsReview: true}
}
