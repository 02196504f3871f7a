package match

import (
	"encoding/json"
	"fmt"
)

// Method identifies which tier produced a match.
type Method int

const (
	MethodNone Method = iota
	MethodExact
	MethodNormalizedExact
	MethodVariant
	MethodTokenFuzzy
	MethodManual
)

var methodLabels = map[Method]string{
	MethodNone:            "none",
	MethodExact:           "exact",
	MethodNormalizedExact: "normalized_exact",
	MethodVariant:         "variant",
	MethodTokenFuzzy:      "token_fuzzy",
	MethodManual:          "manual",
}

// String returns the fixed label used in every serialized form.
func (m Method) String() string {
	if s, ok := methodLabels[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod converts a label back into a Method.
func ParseMethod(s string) (Method, error) {
	for m, label := range methodLabels {
		if label == s {
			return m, nil
		}
	}
	return MethodNone, fmt.Errorf("unknown match method %q", s)
}

// Certain reports whether results of this method are trusted without a
// confidence check: exact, normalized exact and manual decisions.
func (m Method) Certain() bool {
	return m == MethodExact || m == MethodNormalizedExact || m == MethodManual
}

func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Method) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PriorResult is a decision recorded by an earlier run for the same raw name.
type PriorResult struct {
	Identifier string  `json:"identifier"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
	// CanonicalName is optional; it is echoed back when the prior is kept.
	CanonicalName string `json:"canonical_name,omitempty"`
}

// InputRecord is one row of the filing to resolve.
type InputRecord struct {
	RawName     string       `json:"raw_name"`
	FormerNames []string     `json:"former_names,omitempty"`
	DBAs        []string     `json:"dbas,omitempty"`
	Prior       *PriorResult `json:"prior,omitempty"`
	// Unlocked marks a prior as reviewed by a person, releasing it from the
	// stability guard.
	Unlocked bool `json:"unlocked,omitempty"`
}

// MatchResult is the decision for one input. Identifier is empty exactly
// when Method is MethodNone and Confidence is zero.
type MatchResult struct {
	RawName              string   `json:"raw_name"`
	Identifier           string   `json:"identifier,omitempty"`
	MatchedCanonicalName string   `json:"matched_canonical_name,omitempty"`
	Confidence           float64  `json:"confidence"`
	Method               Method   `json:"method"`
	ConfidenceMargin     *float64 `json:"confidence_margin,omitempty"`
	NeedsReview          bool     `json:"needs_review"`
	Ambiguous            bool     `json:"ambiguous,omitempty"`
	MatchedOnVariant     string   `json:"matched_on_variant,omitempty"`
}

// Matched reports whether the result resolved to a registry firm.
func (r MatchResult) Matched() bool {
	return r.Identifier != ""
}

// Divergence records that a run would have changed a trusted decision.
type Divergence struct {
	RawName            string  `json:"raw_name"`
	PriorIdentifier    string  `json:"prior_identifier"`
	PriorMethod        Method  `json:"prior_method"`
	PriorConfidence    float64 `json:"prior_confidence"`
	ComputedIdentifier string  `json:"computed_identifier,omitempty"`
	ComputedMethod     Method  `json:"computed_method"`
	ComputedConfidence float64 `json:"computed_confidence"`
}

func (d Divergence) String() string {
	computed := d.ComputedIdentifier
	if computed == "" {
		computed = "unmatched"
	}
	return fmt.Sprintf("%q kept %s (%s %.2f); run computed %s (%s %.2f)",
		d.RawName, d.PriorIdentifier, d.PriorMethod, d.PriorConfidence,
		computed, d.ComputedMethod, d.ComputedConfidence)
}

// Outcome is the full per-input product of the engine.
type Outcome struct {
	Result     MatchResult `json:"result"`
	Divergence *Divergence `json:"divergence,omitempty"`
	Failed     bool        `json:"failed,omitempty"`
}

func floatPtr(f float64) *float64 {
	return &f
}
