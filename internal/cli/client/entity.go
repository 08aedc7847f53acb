package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// EntityResult represents an entity in API responses.
type EntityResult struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CanonicalName string    `json:"canonical_name"`
	Aliases       []string  `json:"aliases"`
	MentionCount  int       `json:"mention_count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// EntityListResponse represents the entity list API response.
type EntityListResponse struct {
	Entities []EntityResult `json:"entities"`
	Count    int            `json:"count"`
}

// EntityCmd creates the entity command.
func EntityCmd() *cobra.Command {
	var entityType string

	cmd := &cobra.Command{
		Use:   "entity [name]",
		Short: "Look up entities in the knowledge graph",
		Long:  "Lists graph entities, optionally filtered by fuzzy name match and type.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runEntity(cmd, name, entityType, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&entityType, "type", "t", "", "Filter by entity type (PERSON, PROJECT, TEAM, DATE, TOPIC)")

	return cmd
}

func runEntity(cmd *cobra.Command, name, entityType string, outputJSON bool) error {
	api, err := NewAPIClient(cmd)
	if err != nil {
		return err
	}

	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	if entityType != "" {
		query.Set("type", strings.ToUpper(entityType))
	}
	path := "/graph/entities"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("entity lookup failed: %w", err)
	}

	var listResp EntityListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse entities: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if listResp.Count == 0 {
		fmt.Println("No entities found.")
		return nil
	}

	for _, e := range listResp.Entities {
		fmt.Printf("%s  %s (%s)\n", e.ID, e.CanonicalName, e.Type)
		if len(e.Aliases) > 1 {
			fmt.Printf("   aliases: %s\n", strings.Join(e.Aliases, ", "))
		}
		fmt.Printf("   mentions: %d, last seen %s\n", e.MentionCount, e.LastSeen.Format("2006-01-02"))
	}

	return nil
}
