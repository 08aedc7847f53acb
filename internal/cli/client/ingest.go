package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	Text         string   `json:"text"`
	SourceType   string   `json:"source_type"`
	SourceID     string   `json:"source_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	KnownTaskIDs []string `json:"known_task_ids,omitempty"`
}

// IngestResponse represents the ingest API response.
type IngestResponse struct {
	ContextItemID  string   `json:"context_item_id"`
	Action         string   `json:"action"`
	Confidence     float64  `json:"confidence"`
	CreatedTaskIDs []string `json:"created_task_ids,omitempty"`
	UpdatedTaskIDs []string `json:"updated_task_ids,omitempty"`
	Questions      []string `json:"questions,omitempty"`
	Answer         string   `json:"answer,omitempty"`
	Trace          []string `json:"trace"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		sourceType string
		sourceID   string
		userID     string
		filePath   string
		taskIDs    []string
		showTrace  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Ingest a piece of context",
		Long:  "Sends text through the full pipeline. Reads from --file or stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := resolveText(args, filePath)
			if err != nil {
				return err
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIngest(cmd, IngestRequest{
				Text:         text,
				SourceType:   sourceType,
				SourceID:     sourceID,
				UserID:       userID,
				KnownTaskIDs: taskIDs,
			}, outputJSON, showTrace)
		},
	}

	cmd.Flags().StringVarP(&sourceType, "source", "s", "manual", "Source type (chat, transcript, manual, document)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Identifier of the originating message or document")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose profile scopes relevance")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Read text from a file instead of the argument")
	cmd.Flags().StringSliceVar(&taskIDs, "task", nil, "Known task IDs to consider for enrichment (repeatable)")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the pipeline's reasoning trace")

	return cmd
}

func resolveText(args []string, filePath string) (string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no text given (pass an argument, --file, or pipe to stdin)")
	}
	return text, nil
}

func runIngest(cmd *cobra.Command, req IngestRequest, outputJSON, showTrace bool) error {
	api, err := NewAPIClient(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/ingest", req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	var result IngestResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ingest result: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("%s (confidence %.2f)\n", result.Action, result.Confidence)
	fmt.Printf("Context item: %s\n", result.ContextItemID)

	for _, id := range result.CreatedTaskIDs {
		fmt.Printf("Created task: %s\n", id)
	}
	for _, id := range result.UpdatedTaskIDs {
		fmt.Printf("Updated task: %s\n", id)
	}
	if result.Answer != "" {
		fmt.Printf("\n%s\n", result.Answer)
	}
	if len(result.Questions) > 0 {
		fmt.Println("\nClarifying questions:")
		for _, q := range result.Questions {
			fmt.Printf("  - %s\n", q)
		}
	}
	if showTrace {
		fmt.Println("\nTrace:")
		for _, line := range result.Trace {
			fmt.Printf("  %s\n", line)
		}
	}

	return nil
}
