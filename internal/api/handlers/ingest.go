package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/contextiq/contextiq/internal/api"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/pipeline"
)

// Pipeline runs one ingestion through the full state machine.
type Pipeline interface {
	Run(ctx context.Context, input pipeline.IngestInput) (*pipeline.Result, error)
}

// TaskGetter resolves known task IDs supplied by the caller.
type TaskGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
}

// IngestHandler handles context ingestion requests
type IngestHandler struct {
	pipe  Pipeline
	tasks TaskGetter
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(pipe Pipeline, tasks TaskGetter) *IngestHandler {
	return &IngestHandler{pipe: pipe, tasks: tasks}
}

// IngestRequest represents the request body for ingesting context
type IngestRequest struct {
	Text         string   `json:"text"`
	SourceType   string   `json:"source_type"`
	SourceID     string   `json:"source_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	KnownTaskIDs []string `json:"known_task_ids,omitempty"`
}

// Ingest handles POST /ingest
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SourceType == "" {
		req.SourceType = string(domain.SourceTypeManual)
	}

	// The recent-task window defaults to the orchestrator's own fetch;
	// explicit IDs override it so callers can scope enrichment.
	var known []*domain.Task
	for _, id := range req.KnownTaskIDs {
		task, err := h.tasks.GetByID(r.Context(), id)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		known = append(known, task)
	}

	result, err := h.pipe.Run(r.Context(), pipeline.IngestInput{
		UserID:     req.UserID,
		SourceType: domain.SourceType(req.SourceType),
		SourceID:   req.SourceID,
		Text:       req.Text,
		KnownTasks: known,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}
