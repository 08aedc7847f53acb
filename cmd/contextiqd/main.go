package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextiq/contextiq/internal/cli"
	"github.com/contextiq/contextiq/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "contextiqd",
		Short: "ContextIQ daemon",
		Long:  "ContextIQ daemon for running the API server and knowledge-graph maintenance",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.DecayCmd())
	rootCmd.AddCommand(admin.PruneCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
