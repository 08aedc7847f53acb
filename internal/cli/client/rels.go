package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// RelationshipResult represents a relationship edge in API responses.
type RelationshipResult struct {
	ID              string    `json:"id"`
	SubjectID       string    `json:"subject_id"`
	Predicate       string    `json:"predicate"`
	ObjectID        string    `json:"object_id"`
	Strength        float64   `json:"strength"`
	CurrentStrength float64   `json:"current_strength"`
	MentionCount    int       `json:"mention_count"`
	LastSeen        time.Time `json:"last_seen"`
	Stale           bool      `json:"stale"`
}

// RelationshipListResponse represents the relationship list API response.
type RelationshipListResponse struct {
	EntityID      string               `json:"entity_id,omitempty"`
	Relationships []RelationshipResult `json:"relationships"`
	Count         int                  `json:"count"`
}

// RelsCmd creates the rels command.
func RelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rels <entity-id>",
		Short: "List relationships for an entity",
		Long:  "Lists every edge touching the entity with its current decayed strength.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runRels(cmd, args[0], outputJSON)
		},
	}
}

func runRels(cmd *cobra.Command, entityID string, outputJSON bool) error {
	api, err := NewAPIClient(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Get("/graph/entities/" + entityID + "/relationships")
	if err != nil {
		return fmt.Errorf("relationship lookup failed: %w", err)
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
		fmt.Println("No relationships found.")
		return nil
	}

	printRelationships(listResp.Relationships)
	return nil
}

func printRelationships(rels []RelationshipResult) {
	for _, r := range rels {
		marker := ""
		if r.Stale {
			marker = " [stale]"
		}
		fmt.Printf("%s -%s-> %s  strength %.2f (stored %.2f)%s\n",
			r.SubjectID, r.Predicate, r.ObjectID, r.CurrentStrength, r.Strength, marker)
		fmt.Printf("   mentions: %d, last seen %s\n", r.MentionCount, r.LastSeen.Format("2006-01-02"))
	}
}
