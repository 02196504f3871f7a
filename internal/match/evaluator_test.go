package match

import (
	"testing"

	"github.com/firm-crd-matching/internal/registry"
)

func candidate(id string, score float64, method Method) *Candidate {
	return &Candidate{
		Firm:   &registry.ReferenceFirm{Identifier: id, CanonicalName: "Firm " + id},
		Score:  score,
		Method: method,
	}
}

func TestEvaluate(t *testing.T) {
	trusting := DefaultConfig()
	trusting.TrustFuzzyAboveThreshold = true

	tests := []struct {
		name          string
		cfg           *Config
		outcome       TierOutcome
		wantReview    bool
		wantAmbiguous bool
		wantMargin    *float64
	}{
		{
			name:    "exact needs no review",
			cfg:     DefaultConfig(),
			outcome: TierOutcome{Candidate: candidate("1", 1.0, MethodExact)},
		},
		{
			name:    "lookup tier has no margin",
			cfg:     DefaultConfig(),
			outcome: TierOutcome{Candidate: candidate("1", 0.95, MethodNormalizedExact), RunnerUp: candidate("2", 0.95, MethodNormalizedExact)},
		},
		{
			name:       "variant below high confidence",
			cfg:        DefaultConfig(),
			outcome:    TierOutcome{Candidate: candidate("1", 0.85, MethodVariant)},
			wantReview: true,
		},
		{
			name:       "fuzzy untrusted by default",
			cfg:        DefaultConfig(),
			outcome:    TierOutcome{Candidate: candidate("1", 0.97, MethodTokenFuzzy), RunnerUp: candidate("2", 0.50, MethodTokenFuzzy)},
			wantReview: true,
			wantMargin: floatPtr(0.47),
		},
		{
			name:       "trusted fuzzy with clear margin",
			cfg:        trusting,
			outcome:    TierOutcome{Candidate: candidate("1", 0.97, MethodTokenFuzzy), RunnerUp: candidate("2", 0.50, MethodTokenFuzzy)},
			wantMargin: floatPtr(0.47),
		},
		{
			name:          "narrow margin",
			cfg:           trusting,
			outcome:       TierOutcome{Candidate: candidate("1", 0.94, MethodTokenFuzzy), RunnerUp: candidate("2", 0.91, MethodTokenFuzzy)},
			wantReview:    true,
			wantAmbiguous: true,
			wantMargin:    floatPtr(0.03),
		},
		{
			name:    "trusted fuzzy without runner-up",
			cfg:     trusting,
			outcome: TierOutcome{Candidate: candidate("1", 0.93, MethodTokenFuzzy)},
		},
		{
			name:          "ambiguity carried from earlier tier",
			cfg:           DefaultConfig(),
			outcome:       TierOutcome{Candidate: candidate("1", 1.0, MethodExact), Ambiguous: true},
			wantReview:    true,
			wantAmbiguous: true,
		},
		{
			name:          "declined",
			cfg:           DefaultConfig(),
			outcome:       TierOutcome{Ambiguous: true},
			wantReview:    true,
			wantAmbiguous: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.cfg, tt.outcome)

			if got.NeedsReview != tt.wantReview {
				t.Errorf("NeedsReview = %v, want %v", got.NeedsReview, tt.wantReview)
			}
			if got.Ambiguous != tt.wantAmbiguous {
				t.Errorf("Ambiguous = %v, want %v", got.Ambiguous, tt.wantAmbiguous)
			}
			switch {
			case tt.wantMargin == nil && got.ConfidenceMargin != nil:
				t.Errorf("ConfidenceMargin = %.3f, want none", *got.ConfidenceMargin)
			case tt.wantMargin != nil && got.ConfidenceMargin == nil:
				t.Errorf("ConfidenceMargin missing, want %.3f", *tt.wantMargin)
			case tt.wantMargin != nil && absDiff(*got.ConfidenceMargin, *tt.wantMargin) > 1e-9:
				t.Errorf("ConfidenceMargin = %.3f, want %.3f", *got.ConfidenceMargin, *tt.wantMargin)
			}
			if tt.outcome.Candidate == nil {
				if got.Matched() || got.Method != MethodNone || got.Confidence != 0 {
					t.Errorf("declined outcome produced %+v", got)
				}
			}
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	cfg := DefaultConfig()
	outcome := TierOutcome{Candidate: candidate("1", 0.8, MethodTokenFuzzy), RunnerUp: candidate("2", 0.7, MethodTokenFuzzy)}

	first := Evaluate(cfg, outcome)
	second := Evaluate(cfg, outcome)
	if first.Identifier != second.Identifier || *first.ConfidenceMargin != *second.ConfidenceMargin || first.NeedsReview != second.NeedsReview {
		t.Errorf("Evaluate not deterministic: %+v vs %+v", first, second)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
