package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextiq/contextiq/internal/cli"
	"github.com/contextiq/contextiq/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "contextiq",
		Short: "ContextIQ CLI - context intelligence for personal task management",
		Long: `ContextIQ CLI sends context through the ingestion pipeline and
queries the knowledge graph.

Environment variables:
  CONTEXTIQ_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.EntityCmd())
	rootCmd.AddCommand(client.RelsCmd())
	rootCmd.AddCommand(client.StaleCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
