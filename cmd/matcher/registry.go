package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firm-crd-matching/internal/normalize"
	"github.com/firm-crd-matching/internal/source"
	"github.com/firm-crd-matching/internal/store"
	"github.com/firm-crd-matching/internal/symspell"
)

// createRegistryCmd creates the registry inspection subcommand
func createRegistryCmd() *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the reference registry",
	}

	registryCmd.AddCommand(createCollisionsCmd())
	registryCmd.AddCommand(createSuggestCmd())

	return registryCmd
}

func createCollisionsCmd() *cobra.Command {
	var firmsFile string

	cmd := &cobra.Command{
		Use:   "collisions",
		Short: "List normalized names shared by several firms",
		Run: func(cmd *cobra.Command, args []string) {
			var src engineSources
			var err error
			if firmsFile != "" {
				src.firms, err = source.ReadFirmsFile(firmsFile)
			} else {
				src, err = loadSources(context.Background(), store.New(connect().DB))
			}
			if err != nil {
				log.Fatalf("Failed to load registry: %v", err)
			}

			_, idx, err := buildEngine(src, nil)
			if err != nil {
				log.Fatalf("Failed to build index: %v", err)
			}

			stats := idx.Stats()
			fmt.Printf("Firms: %d  Aliases: %d  Buckets: %d  Collisions: %d\n",
				stats.Firms, stats.Aliases, stats.Buckets, stats.Collisions)
			for _, c := range idx.Collisions() {
				fmt.Printf("  %-40s %s\n", c.NormalizedName, strings.Join(c.Identifiers, ", "))
			}
		},
	}

	cmd.Flags().StringVar(&firmsFile, "firms", "", "Registry CSV; the database is used when omitted")
	return cmd
}

func createSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest [word]",
		Short: "Show spelling suggestions from the registry vocabulary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			spellConfig := symspell.LoadConfigFromEnv()
			builder := symspell.NewDictionaryBuilder(connect().DB, spellConfig)
			dict, err := builder.BuildFromRegistry(context.Background(), localDebug)
			if err != nil {
				log.Fatalf("Failed to build dictionary: %v", err)
			}
			corrector := symspell.NewCorrector(dict, spellConfig)

			stats := corrector.Stats()
			fmt.Printf("Dictionary: %d terms, %d deletes\n", stats.TermCount, stats.DeleteCount)

			word := normalize.Normalize(args[0])
			for _, s := range corrector.LookupSuggestions(word, limit) {
				fmt.Printf("  %-24s distance=%d frequency=%d\n", s.Term, s.Distance, s.Frequency)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum suggestions")
	return cmd
}
