package match

import (
	"fmt"
	"runtime"

	"github.com/firm-crd-matching/internal/config"
	"github.com/firm-crd-matching/internal/registry"
)

// Tier names accepted in Config.Tiers.
const (
	TierManual          = "manual"
	TierExact           = "exact"
	TierNormalizedExact = "normalized_exact"
	TierVariant         = "variant"
	TierTokenFuzzy      = "token_fuzzy"
)

// Config holds every threshold and toggle of the matching pipeline.
type Config struct {
	HighConfidence     float64 // >= 0.90 accepted without review
	AmbiguityMargin    float64 // fuzzy winner must lead runner-up by this much
	FuzzyAcceptance    float64 // minimum similarity for a fuzzy candidate
	StabilityThreshold float64 // prior confidence that makes a decision known-good

	NormalizedExactConfidence float64
	VariantConfidence         float64 // base-name hit
	AliasConfidence           float64 // former/trading name table hit
	PhoneticGuardBelow        float64 // fuzzy scores under this need a shared phonetic token

	EnableVariantTier        bool
	EnableStabilityGuard     bool
	TrustFuzzyAboveThreshold bool
	UseNameVariants          bool
	EnablePhoneticGuard      bool

	BucketStrategy registry.BucketStrategy
	Scorer         string
	Tiers          []string
	Workers        int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		HighConfidence:            0.90,
		AmbiguityMargin:           0.05,
		FuzzyAcceptance:           0.60,
		StabilityThreshold:        0.95,
		NormalizedExactConfidence: 0.95,
		VariantConfidence:         0.85,
		AliasConfidence:           0.88,
		PhoneticGuardBelow:        0.85,
		EnableVariantTier:         true,
		EnableStabilityGuard:      true,
		TrustFuzzyAboveThreshold:  false,
		UseNameVariants:           true,
		EnablePhoneticGuard:       true,
		BucketStrategy:            registry.BucketFirstChar,
		Scorer:                    ScorerTokenSet,
		Tiers:                     []string{TierManual, TierExact, TierNormalizedExact, TierVariant, TierTokenFuzzy},
		Workers:                   runtime.NumCPU(),
	}
}

// LoadConfigFromEnv overlays MATCH_* environment variables on the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	cfg.HighConfidence = config.GetEnvFloat("MATCH_HIGH_CONFIDENCE", cfg.HighConfidence)
	cfg.AmbiguityMargin = config.GetEnvFloat("MATCH_AMBIGUITY_MARGIN", cfg.AmbiguityMargin)
	cfg.FuzzyAcceptance = config.GetEnvFloat("MATCH_FUZZY_ACCEPTANCE", cfg.FuzzyAcceptance)
	cfg.StabilityThreshold = config.GetEnvFloat("MATCH_STABILITY_THRESHOLD", cfg.StabilityThreshold)
	cfg.NormalizedExactConfidence = config.GetEnvFloat("MATCH_NORMALIZED_EXACT_CONFIDENCE", cfg.NormalizedExactConfidence)
	cfg.VariantConfidence = config.GetEnvFloat("MATCH_VARIANT_CONFIDENCE", cfg.VariantConfidence)
	cfg.AliasConfidence = config.GetEnvFloat("MATCH_ALIAS_CONFIDENCE", cfg.AliasConfidence)

	cfg.EnableVariantTier = config.GetEnvBool("MATCH_ENABLE_VARIANT", cfg.EnableVariantTier)
	cfg.EnableStabilityGuard = config.GetEnvBool("MATCH_ENABLE_STABILITY", cfg.EnableStabilityGuard)
	cfg.TrustFuzzyAboveThreshold = config.GetEnvBool("MATCH_TRUST_FUZZY", cfg.TrustFuzzyAboveThreshold)
	cfg.UseNameVariants = config.GetEnvBool("MATCH_USE_NAME_VARIANTS", cfg.UseNameVariants)
	cfg.EnablePhoneticGuard = config.GetEnvBool("MATCH_PHONETIC_GUARD", cfg.EnablePhoneticGuard)

	cfg.BucketStrategy = registry.BucketStrategy(config.GetEnv("MATCH_BUCKET_STRATEGY", string(cfg.BucketStrategy)))
	cfg.Scorer = config.GetEnv("MATCH_SCORER", cfg.Scorer)
	cfg.Tiers = config.GetEnvList("MATCH_TIERS", cfg.Tiers)
	cfg.Workers = config.GetEnvInt("MATCH_WORKERS", cfg.Workers)

	return cfg
}

// Validate rejects out-of-range thresholds and unknown names.
func (c *Config) Validate() error {
	thresholds := map[string]float64{
		"high confidence":             c.HighConfidence,
		"ambiguity margin":            c.AmbiguityMargin,
		"fuzzy acceptance":            c.FuzzyAcceptance,
		"stability threshold":         c.StabilityThreshold,
		"normalized exact confidence": c.NormalizedExactConfidence,
		"variant confidence":          c.VariantConfidence,
		"alias confidence":            c.AliasConfidence,
		"phonetic guard":              c.PhoneticGuardBelow,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %.3f outside [0,1]", name, v)
		}
	}

	if !c.BucketStrategy.Valid() {
		return fmt.Errorf("unknown bucket strategy %q", c.BucketStrategy)
	}
	if _, err := NewSimilarity(c.Scorer); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, name := range c.Tiers {
		switch name {
		case TierManual, TierExact, TierNormalizedExact, TierVariant, TierTokenFuzzy:
		default:
			return fmt.Errorf("unknown tier %q", name)
		}
		if seen[name] {
			return fmt.Errorf("tier %q listed twice", name)
		}
		seen[name] = true
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("no tiers configured")
	}
	return nil
}

// Thresholds returns the decision thresholds for reporting.
func (c *Config) Thresholds() map[string]float64 {
	return map[string]float64{
		"high_confidence":     c.HighConfidence,
		"ambiguity_margin":    c.AmbiguityMargin,
		"fuzzy_acceptance":    c.FuzzyAcceptance,
		"stability_threshold": c.StabilityThreshold,
	}
}
