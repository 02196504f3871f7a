package main

import (
	"context"
	"fmt"
	"log"

	"github.com/firm-crd-matching/internal/config"
	"github.com/firm-crd-matching/internal/db"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/metrics"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/store"
	"github.com/firm-crd-matching/internal/symspell"
	"github.com/firm-crd-matching/internal/web"
)

func main() {
	// Load environment configuration
	config.LoadEnv()

	fmt.Println("=== Firm CRD Matching API ===")

	webConfig := web.LoadConfigFromEnv()
	if path := config.GetEnv("WEB_CONFIG_FILE", ""); path != "" {
		var err error
		if webConfig, err = web.LoadConfig(path); err != nil {
			log.Fatalf("Failed to load web config: %v", err)
		}
	}

	// Initialize database connection
	dbConn, err := db.NewConnection()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	st := store.New(dbConn.DB)

	firms, err := st.LoadReferenceFirms(ctx, webConfig.Debug)
	if err != nil {
		log.Fatalf("Failed to load registry: %v", err)
	}
	aliases, err := st.LoadAliases(ctx, webConfig.Debug)
	if err != nil {
		log.Fatalf("Failed to load aliases: %v", err)
	}
	overrides, err := st.LoadOverrides(ctx, webConfig.Debug)
	if err != nil {
		log.Fatalf("Failed to load overrides: %v", err)
	}

	matchConfig := match.LoadConfigFromEnv()
	if err := matchConfig.Validate(); err != nil {
		log.Fatalf("Invalid matcher configuration: %v", err)
	}

	idx, err := registry.Build(webConfig.Debug, firms, aliases, registry.Options{BucketStrategy: matchConfig.BucketStrategy})
	if err != nil {
		log.Fatalf("Failed to build reference index: %v", err)
	}

	collector := metrics.NewCollector()
	opts := []match.Option{match.WithOverrides(overrides), match.WithObserver(collector)}
	if spellConfig := symspell.LoadConfigFromEnv(); spellConfig.Enabled {
		dict := symspell.BuildFromIndex(webConfig.Debug, idx, spellConfig)
		opts = append(opts, match.WithCorrector(symspell.NewCorrector(dict, spellConfig)))
	}

	engine, err := match.NewEngine(idx, matchConfig, opts...)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	stats := idx.Stats()
	fmt.Printf("Registry: %d firms, %d aliases, %d collisions\n", stats.Firms, stats.Aliases, stats.Collisions)
	fmt.Printf("Tiers: %v\n", engine.TierNames())

	server, err := web.NewServer(webConfig, web.Dependencies{
		Engine:  engine,
		Index:   idx,
		DB:      dbConn.DB,
		Metrics: collector,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	fmt.Printf("\nStarting web server on http://%s:%d\n", webConfig.Server.Host, webConfig.Server.Port)
	fmt.Println("\nFeatures enabled:")
	fmt.Printf("  • Manual Override: %v\n", webConfig.Features.ManualOverrideEnabled)
	fmt.Printf("  • Persist Batches: %v\n", webConfig.Features.PersistBatches)
	fmt.Printf("  • Metrics: %v\n", webConfig.Features.MetricsEnabled)
	fmt.Println()

	// Start server
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
