package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/store"
)

// createReviewCmd creates the review subcommand
func createReviewCmd() *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Record reviewer decisions",
	}

	reviewCmd.AddCommand(createAcceptCmd())
	reviewCmd.AddCommand(createUnlockCmd())
	reviewCmd.AddCommand(createHistoryCmd())

	return reviewCmd
}

func createAcceptCmd() *cobra.Command {
	var reason, reviewer string

	cmd := &cobra.Command{
		Use:   "accept [raw name] [crd]",
		Short: "Pin a raw name to a registry firm",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conn := connect()
			st := store.New(conn.DB)

			override := match.Override{RawName: args[0], Identifier: args[1], Reason: reason}
			if err := st.SaveOverride(ctx, localDebug, override, reviewer); err != nil {
				log.Fatalf("Failed to save override: %v", err)
			}

			err := audit.NewTracker(conn.DB).RecordReview(ctx, localDebug, audit.ReviewDecision{
				RawName:    args[0],
				Event:      audit.EventReviewAccept,
				Identifier: args[1],
				Reason:     reason,
				DecidedBy:  reviewer,
			})
			if err != nil {
				log.Printf("Failed to audit review: %v", err)
			}
			fmt.Printf("Override saved: %q -> %s\n", args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the match is correct")
	cmd.Flags().StringVar(&reviewer, "reviewer", "cli", "Reviewer name")
	return cmd
}

func createUnlockCmd() *cobra.Command {
	var reason, reviewer string

	cmd := &cobra.Command{
		Use:   "unlock [raw name]",
		Short: "Allow the next run to change a known-good decision",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conn := connect()

			n, err := store.New(conn.DB).Unlock(ctx, localDebug, args[0])
			if err != nil {
				log.Fatalf("Failed to unlock: %v", err)
			}
			if n == 0 {
				log.Fatalf("No filing firm named %q", args[0])
			}

			err = audit.NewTracker(conn.DB).RecordReview(ctx, localDebug, audit.ReviewDecision{
				RawName:   args[0],
				Event:     audit.EventReviewUnlock,
				Reason:    reason,
				DecidedBy: reviewer,
			})
			if err != nil {
				log.Printf("Failed to audit review: %v", err)
			}
			fmt.Printf("Unlocked %d rows for %q\n", n, args[0])
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the decision may change")
	cmd.Flags().StringVar(&reviewer, "reviewer", "cli", "Reviewer name")
	return cmd
}

func createHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [raw name]",
		Short: "Show the audit trail of a raw name",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			history, err := audit.NewTracker(connect().DB).History(context.Background(), localDebug, args[0])
			if err != nil {
				log.Fatalf("Failed to load history: %v", err)
			}
			if len(history) == 0 {
				fmt.Println("No audit entries")
				return
			}
			for _, e := range history {
				fmt.Printf("%s  %-14s prior=%s(%s %.2f) computed=%s(%s %.2f) by=%s %s\n",
					e.CreatedAt.Format("2006-01-02 15:04"), e.Event,
					e.PriorIdentifier, e.PriorMethod, e.PriorConfidence,
					e.ComputedIdentifier, e.ComputedMethod, e.ComputedConfidence,
					e.DecidedBy, e.Reason)
			}
		},
	}
}
