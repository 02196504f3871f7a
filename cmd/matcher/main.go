package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/firm-crd-matching/internal/config"
	"github.com/firm-crd-matching/internal/db"
)

var (
	// Global database connection, opened by commands that need it
	dbConn *db.Connection

	localDebug bool
)

func main() {
	config.LoadEnv()

	// Create root command
	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "Firm name to CRD matching",
		Long:  `Resolves broker-dealer firm names from filings to registry CRD numbers`,
	}
	rootCmd.PersistentFlags().BoolVar(&localDebug, "debug", config.GetEnvBool("DEBUG", false), "Print debug trace")

	// Add subcommands
	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createRegistryCmd())
	rootCmd.AddCommand(createReviewCmd())
	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createMigrateCmd())

	err := rootCmd.Execute()
	if dbConn != nil {
		dbConn.Close()
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// connect opens the global database connection on first use.
func connect() *db.Connection {
	if dbConn != nil {
		return dbConn
	}
	var err error
	dbConn, err = db.NewConnection()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return dbConn
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			conn := connect()
			fmt.Println("Database connection successful!")

			var count int
			err := conn.DB.QueryRow("SELECT COUNT(*) FROM reference_firm").Scan(&count)
			if err != nil {
				log.Printf("Error counting reference_firm records: %v", err)
			} else {
				fmt.Printf("Registry firms loaded: %d\n", count)
			}

			err = conn.DB.QueryRow("SELECT COUNT(*) FROM broker_firm").Scan(&count)
			if err != nil {
				log.Printf("Error counting broker_firm records: %v", err)
			} else {
				fmt.Printf("Filing firms loaded: %d\n", count)
			}
		},
	}
}
