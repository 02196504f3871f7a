package main

import (
	"context"
	"fmt"

	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/metrics"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/store"
	"github.com/firm-crd-matching/internal/symspell"
)

// engineSources are the inputs an engine is built from.
type engineSources struct {
	firms     []registry.FirmRecord
	aliases   []registry.Alias
	overrides []match.Override
}

// loadSources reads the registry, alias table and overrides from the store.
func loadSources(ctx context.Context, st *store.Store) (engineSources, error) {
	var src engineSources
	var err error
	if src.firms, err = st.LoadReferenceFirms(ctx, localDebug); err != nil {
		return src, err
	}
	if src.aliases, err = st.LoadAliases(ctx, localDebug); err != nil {
		return src, err
	}
	if src.overrides, err = st.LoadOverrides(ctx, localDebug); err != nil {
		return src, err
	}
	return src, nil
}

// buildEngine indexes the registry and assembles the tier chain. Spelling
// correction is enabled through SYMSPELL_ENABLED.
func buildEngine(src engineSources, collector *metrics.Collector) (*match.Engine, *registry.Index, error) {
	cfg := match.LoadConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid matcher configuration: %w", err)
	}

	idx, err := registry.Build(localDebug, src.firms, src.aliases, registry.Options{BucketStrategy: cfg.BucketStrategy})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build reference index: %w", err)
	}

	opts := []match.Option{match.WithOverrides(src.overrides)}
	if collector != nil {
		opts = append(opts, match.WithObserver(collector))
	}

	spellConfig := symspell.LoadConfigFromEnv()
	if spellConfig.Enabled {
		dict := symspell.BuildFromIndex(localDebug, idx, spellConfig)
		opts = append(opts, match.WithCorrector(symspell.NewCorrector(dict, spellConfig)))
		fmt.Printf("Spelling correction: %d terms\n", dict.Stats().TermCount)
	}

	engine, err := match.NewEngine(idx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, idx, nil
}

func printStats(stats match.BatchStats) {
	fmt.Printf("Total Processed: %d\n", stats.Total)
	fmt.Printf("Matched: %d\n", stats.Matched)
	fmt.Printf("Needs Review: %d\n", stats.NeedsReview)
	fmt.Printf("Divergences: %d\n", stats.Divergences)
	fmt.Printf("Failed: %d\n", stats.Failed)
	if stats.Total > 0 {
		fmt.Printf("Coverage: %.2f%%\n", float64(stats.Matched)/float64(stats.Total)*100)
		fmt.Printf("Review Rate: %.2f%%\n", float64(stats.NeedsReview)/float64(stats.Total)*100)
	}
	for method, n := range stats.ByMethod {
		fmt.Printf("  %-18s %d\n", method, n)
	}
}
