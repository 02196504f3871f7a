package match

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/normalize"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/symspell"
)

// Observer receives results as they are produced. The metrics package
// provides the production implementation.
type Observer interface {
	ObserveResult(r MatchResult)
	ObserveDivergence(d Divergence)
	ObserveBatch(stats BatchStats, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveResult(MatchResult) {}
func (nopObserver) ObserveDivergence(Divergence) {}
func (nopObserver) ObserveBatch(BatchStats, time.Duration) {}

// Engine resolves firm names against a reference index. It holds no
// mutable state after construction and may be shared between goroutines.
type Engine struct {
	index      *registry.Index
	config     *Config
	similarity Similarity
	tiers      []Tier
	stability  StabilityPolicy
	corrector  *symspell.Corrector
	observer   Observer
	overrides  []Override
}

// Option customises an Engine.
type Option func(*Engine)

// WithOverrides installs manual override decisions.
func WithOverrides(overrides []Override) Option {
	return func(e *Engine) { e.overrides = overrides }
}

// WithCorrector enables spelling correction ahead of the fuzzy tier.
func WithCorrector(c *symspell.Corrector) Option {
	return func(e *Engine) { e.corrector = c }
}

// WithStabilityPolicy replaces the default known-good guard.
func WithStabilityPolicy(p StabilityPolicy) Option {
	return func(e *Engine) { e.stability = p }
}

// WithObserver reports results to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithSimilarity replaces the configured fuzzy scorer.
func WithSimilarity(s Similarity) Option {
	return func(e *Engine) { e.similarity = s }
}

// NewEngine creates a matching engine over idx.
func NewEngine(idx *registry.Index, cfg *Config, opts ...Option) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("match: nil reference index")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("match: invalid config: %w", err)
	}

	e := &Engine{index: idx, config: cfg, observer: nopObserver{}}
	for _, opt := range opts {
		opt(e)
	}

	if e.similarity == nil {
		sim, err := NewSimilarity(cfg.Scorer)
		if err != nil {
			return nil, err
		}
		e.similarity = sim
	}
	if e.stability == nil {
		if cfg.EnableStabilityGuard {
			e.stability = NewKnownGoodGuard(cfg)
		} else {
			e.stability = PassThrough{}
		}
	}

	manual, err := NewManualOverrideTier(idx, e.overrides)
	if err != nil {
		return nil, err
	}
	e.tiers = buildTiers(idx, cfg, e.similarity, manual)

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// TierNames lists the active tiers in dispatch order.
func (e *Engine) TierNames() []string {
	names := make([]string, len(e.tiers))
	for i, t := range e.tiers {
		names[i] = t.Name()
	}
	return names
}

// Match resolves one input record. Every name the record is known by is
// tried; the most confident result wins and earlier names win ties. An
// ambiguity met under any name flags the result. The stability policy is
// applied last.
func (e *Engine) Match(localDebug bool, rec InputRecord) Outcome {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	debug.DebugOutput(localDebug, "Raw name: %q", rec.RawName)
	computed := e.computeBest(localDebug, rec)
	return e.finish(localDebug, rec, computed, false)
}

// Query prepares a single name for the tier chain.
func (e *Engine) Query(name string) *Query {
	normalized := normalize.Normalize(name)
	q := &Query{
		Raw:             name,
		Normalized:      normalized,
		Base:            normalize.BaseOfNormalized(normalized),
		FuzzyNormalized: normalized,
	}
	if e.corrector != nil {
		q.FuzzyNormalized, q.Corrections = e.corrector.CorrectName(normalized)
	}
	return q
}

// Dispatch runs the tier chain for q and returns the first accepted
// candidate. Ambiguity reported by declining tiers is carried forward.
func (e *Engine) Dispatch(localDebug bool, q *Query) TierOutcome {
	ambiguous := false
	for _, tier := range e.tiers {
		out := tier.Attempt(localDebug, q)
		ambiguous = ambiguous || out.Ambiguous
		if out.Candidate != nil {
			debug.DebugOutput(localDebug, "tier %s accepted %s (%.3f)", tier.Name(), out.Candidate.Firm.Identifier, out.Candidate.Score)
			out.Ambiguous = ambiguous
			return out
		}
		debug.DebugOutput(localDebug, "tier %s declined (ambiguous=%v)", tier.Name(), out.Ambiguous)
	}
	return TierOutcome{Ambiguous: ambiguous}
}

func (e *Engine) computeBest(localDebug bool, rec InputRecord) MatchResult {
	names := e.nameVariants(rec)
	if len(names) == 0 {
		return unmatched(rec.RawName)
	}

	var best MatchResult
	ambiguous := false
	for i, name := range names {
		q := e.Query(name)
		if len(q.Corrections) > 0 {
			debug.DebugOutput(localDebug, "spelling corrected %q -> %q", q.Normalized, q.FuzzyNormalized)
		}

		res := Evaluate(e.config, e.Dispatch(localDebug, q))
		res.RawName = rec.RawName
		if i > 0 && res.Matched() {
			res.MatchedOnVariant = name
		}

		ambiguous = ambiguous || res.Ambiguous
		if i == 0 || res.Confidence > best.Confidence {
			best = res
		}
	}

	// Ambiguity seen under any name the firm is known by stays visible.
	if ambiguous && !best.Ambiguous {
		best.Ambiguous = true
		best.NeedsReview = NeedsReview(e.config, best)
	}
	return best
}

// nameVariants lists the raw name, then the parsed primary name, then
// former and trading names, without duplicates.
func (e *Engine) nameVariants(rec InputRecord) []string {
	names := []string{rec.RawName}
	if !e.config.UseNameVariants {
		return names
	}

	parsed := normalize.ParseFirmName(rec.RawName)
	candidates := []string{parsed.Primary}
	candidates = append(candidates, parsed.FormerNames...)
	candidates = append(candidates, rec.FormerNames...)
	candidates = append(candidates, parsed.DBAs...)
	candidates = append(candidates, rec.DBAs...)

	seen := map[string]bool{rec.RawName: true}
	for _, n := range candidates {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

// finish applies the stability policy and notifies the observer.
func (e *Engine) finish(localDebug bool, rec InputRecord, computed MatchResult, failed bool) Outcome {
	decision := e.stability.Apply(rec.RawName, computed, rec.Prior, rec.Unlocked)

	result := decision.Result
	if result.Matched() && result.MatchedCanonicalName == "" {
		if firm, ok := e.index.Firm(result.Identifier); ok {
			result.MatchedCanonicalName = firm.CanonicalName
		}
	}

	if d := decision.Divergence; d != nil {
		debug.Logger().Warn("stability guard kept prior decision",
			zap.String("raw_name", d.RawName),
			zap.String("prior_identifier", d.PriorIdentifier),
			zap.String("computed_identifier", d.ComputedIdentifier),
			zap.String("computed_method", d.ComputedMethod.String()),
			zap.Float64("computed_confidence", d.ComputedConfidence))
		e.observer.ObserveDivergence(*d)
	}

	debug.DebugOutput(localDebug, "Result: %s %s conf=%.3f review=%v",
		result.Method, result.Identifier, result.Confidence, result.NeedsReview)
	e.observer.ObserveResult(result)

	return Outcome{Result: result, Divergence: decision.Divergence, Failed: failed}
}
