package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/metrics"
	"github.com/firm-crd-matching/internal/source"
	"github.com/firm-crd-matching/internal/store"
)

// createMatchCmd creates the match subcommand
func createMatchCmd() *cobra.Command {
	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve firm names to CRD numbers",
	}

	matchCmd.AddCommand(createMatchCSVCmd())
	matchCmd.AddCommand(createMatchDBCmd())
	matchCmd.AddCommand(createMatchOneCmd())

	return matchCmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeMetrics(path string, collector *metrics.Collector) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, collector.Registry()); err != nil {
		log.Printf("Failed to write metrics: %v", err)
	}
}

func createMatchCSVCmd() *cobra.Command {
	var firmsFile, aliasesFile, overridesFile, outputFile, metricsFile string

	cmd := &cobra.Command{
		Use:   "csv [inputs.csv]",
		Short: "Match a CSV of filing names against a CSV registry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var src engineSources
			var err error

			if src.firms, err = source.ReadFirmsFile(firmsFile); err != nil {
				log.Fatalf("Failed to read registry: %v", err)
			}
			if aliasesFile != "" {
				if src.aliases, err = source.ReadAliasesFile(aliasesFile); err != nil {
					log.Fatalf("Failed to read aliases: %v", err)
				}
			}
			if overridesFile != "" {
				if src.overrides, err = source.ReadOverridesFile(overridesFile); err != nil {
					log.Fatalf("Failed to read overrides: %v", err)
				}
			}
			inputs, err := source.ReadInputsFile(args[0])
			if err != nil {
				log.Fatalf("Failed to read inputs: %v", err)
			}

			collector := metrics.NewCollector()
			engine, idx, err := buildEngine(src, collector)
			if err != nil {
				log.Fatalf("Failed to build engine: %v", err)
			}
			fmt.Printf("Registry: %d firms, %d collisions\n", idx.Len(), len(idx.Collisions()))

			ctx, cancel := signalContext()
			defer cancel()

			result, err := engine.MatchAll(ctx, localDebug, inputs)
			if err != nil {
				log.Fatalf("Matching cancelled: %v", err)
			}

			if err := source.WriteResultsFile(outputFile, result.Outcomes); err != nil {
				log.Fatalf("Failed to write results: %v", err)
			}
			writeMetrics(metricsFile, collector)

			fmt.Printf("\n=== Matching Results ===\n")
			fmt.Printf("Output: %s\n", outputFile)
			fmt.Printf("Elapsed: %v\n", result.Elapsed.Round(time.Millisecond))
			printStats(result.Stats)
			for _, d := range result.Divergences() {
				fmt.Printf("Kept prior: %s\n", d)
			}
		},
	}

	cmd.Flags().StringVar(&firmsFile, "firms", "", "Registry CSV (crd, firm_name)")
	cmd.Flags().StringVar(&aliasesFile, "aliases", "", "Alias CSV (crd, alias_name, alias_kind)")
	cmd.Flags().StringVar(&overridesFile, "overrides", "", "Manual override CSV (raw_name, crd, reason)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "results.csv", "Results CSV")
	cmd.Flags().StringVar(&metricsFile, "metrics-out", "", "Write Prometheus metrics to this file")
	cmd.MarkFlagRequired("firms")

	return cmd
}

func createMatchDBCmd() *cobra.Command {
	var runLabel, filingID, metricsFile string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Match stored filing firms and record the run",
		Run: func(cmd *cobra.Command, args []string) {
			if runLabel == "" {
				runLabel = fmt.Sprintf("match-%d", time.Now().Unix())
			}

			ctx, cancel := signalContext()
			defer cancel()

			conn := connect()
			st := store.New(conn.DB)
			tracker := audit.NewTracker(conn.DB)

			src, err := loadSources(ctx, st)
			if err != nil {
				log.Fatalf("Failed to load registry: %v", err)
			}
			collector := metrics.NewCollector()
			engine, idx, err := buildEngine(src, collector)
			if err != nil {
				log.Fatalf("Failed to build engine: %v", err)
			}
			fmt.Printf("Registry: %d firms, %d overrides\n", idx.Len(), len(src.overrides))

			inputs, err := st.LoadInputs(ctx, localDebug, filingID)
			if err != nil {
				log.Fatalf("Failed to load inputs: %v", err)
			}

			runID, err := st.CreateRun(ctx, localDebug, runLabel, engine.Config().Thresholds())
			if err != nil {
				log.Fatalf("Failed to create match run: %v", err)
			}

			result, err := engine.MatchAll(ctx, localDebug, inputs)
			if err != nil {
				log.Fatalf("Matching cancelled: %v", err)
			}

			if err := st.SaveResults(ctx, localDebug, runID, result.Outcomes); err != nil {
				log.Fatalf("Failed to save results: %v", err)
			}
			if err := tracker.RecordDivergences(ctx, localDebug, runID, result.Divergences()); err != nil {
				log.Fatalf("Failed to record divergences: %v", err)
			}
			if err := st.CompleteRun(ctx, localDebug, runID, result.Stats); err != nil {
				log.Printf("Failed to complete match run: %v", err)
			}
			writeMetrics(metricsFile, collector)

			fmt.Printf("\n=== Matching Results ===\n")
			fmt.Printf("Run ID: %s\n", runID)
			fmt.Printf("Run Label: %s\n", runLabel)
			fmt.Printf("Elapsed: %v\n", result.Elapsed.Round(time.Millisecond))
			printStats(result.Stats)

			breakdown, err := tracker.MethodBreakdown(ctx, localDebug, runID)
			if err != nil {
				log.Printf("Failed to load method breakdown: %v", err)
				return
			}
			fmt.Printf("\n%-18s %8s %8s %6s %6s %6s\n", "Method", "Count", "Review", "Avg", "Min", "Max")
			for _, s := range breakdown {
				fmt.Printf("%-18s %8d %8d %6.3f %6.3f %6.3f\n", s.Method, s.Count, s.NeedsReview, s.AvgScore, s.MinScore, s.MaxScore)
			}
		},
	}

	cmd.Flags().StringVar(&runLabel, "label", "", "Label for this matching run")
	cmd.Flags().StringVar(&filingID, "filing", "", "Only match firms from this filing")
	cmd.Flags().StringVar(&metricsFile, "metrics-out", "", "Write Prometheus metrics to this file")

	return cmd
}

func createMatchOneCmd() *cobra.Command {
	var firmsFile, aliasesFile string
	var formerNames, dbas []string

	cmd := &cobra.Command{
		Use:   "one [firm name]",
		Short: "Match a single name and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var src engineSources
			var err error

			if firmsFile != "" {
				if src.firms, err = source.ReadFirmsFile(firmsFile); err != nil {
					log.Fatalf("Failed to read registry: %v", err)
				}
				if aliasesFile != "" {
					if src.aliases, err = source.ReadAliasesFile(aliasesFile); err != nil {
						log.Fatalf("Failed to read aliases: %v", err)
					}
				}
			} else {
				ctx, cancel := signalContext()
				defer cancel()
				if src, err = loadSources(ctx, store.New(connect().DB)); err != nil {
					log.Fatalf("Failed to load registry: %v", err)
				}
			}

			engine, _, err := buildEngine(src, nil)
			if err != nil {
				log.Fatalf("Failed to build engine: %v", err)
			}

			out := engine.Match(localDebug, match.InputRecord{RawName: args[0], FormerNames: formerNames, DBAs: dbas})
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				log.Fatalf("Failed to encode result: %v", err)
			}
		},
	}

	cmd.Flags().StringVar(&firmsFile, "firms", "", "Registry CSV; the database is used when omitted")
	cmd.Flags().StringVar(&aliasesFile, "aliases", "", "Alias CSV")
	cmd.Flags().StringSliceVar(&formerNames, "former", nil, "Former names of the firm")
	cmd.Flags().StringSliceVar(&dbas, "dba", nil, "Trading names of the firm")

	return cmd
}
