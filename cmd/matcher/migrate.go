package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/firm-crd-matching/internal/store"
)

// createMigrateCmd creates the schema subcommand
func createMigrateCmd() *cobra.Command {
	var sqlFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the matching schema",
		Run: func(cmd *cobra.Command, args []string) {
			st := store.New(connect().DB)
			ctx := context.Background()

			if err := st.Migrate(ctx); err != nil {
				log.Fatalf("Failed to migrate: %v", err)
			}
			fmt.Println("Schema up to date")

			if sqlFile != "" {
				if err := st.ExecuteSQLFile(ctx, sqlFile); err != nil {
					log.Fatalf("Failed to execute %s: %v", sqlFile, err)
				}
				fmt.Printf("Executed %s\n", sqlFile)
			}
		},
	}

	cmd.Flags().StringVar(&sqlFile, "file", "", "Extra SQL file to run after the schema, such as seed data")
	return cmd
}
