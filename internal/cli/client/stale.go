package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// StaleCmd creates the stale command.
func StaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "List stale relationships",
		Long:  "Lists relationships whose decayed strength fell below the stale threshold.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runStale(cmd, outputJSON)
		},
	}
}

func runStale(cmd *cobra.Command, outputJSON bool) error {
	api, err := NewAPIClient(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/graph/stale")
	if err != nil {
		return fmt.Errorf("stale lookup failed: %w", err)
	}

	var listResp RelationshipListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse relationships: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if listResp.Count == 0 {
		fmt.Println("No stale relationships.")
		return nil
	}

	fmt.Printf("%d stale relationships:\n\n", listResp.Count)
	printRelationships(listResp.Relationships)
	return nil
}
