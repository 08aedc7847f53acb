package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contextiq/contextiq/internal/api"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/graph"
)

// Names within this similarity of the query count as a fuzzy hit.
const fuzzyMatchThreshold = 0.70

// GraphService exposes knowledge-graph reads and maintenance triggers.
type GraphService interface {
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	ListEntities(ctx context.Context, entityType string) ([]*domain.Entity, error)
	EntityRelationships(ctx context.Context, entityID string) ([]graph.RelationshipView, error)
	ListStale(ctx context.Context) ([]graph.RelationshipView, error)
	TriggerDecay(ctx context.Context, now time.Time) (*graph.DecayReport, error)
	PruneStale(ctx context.Context) (int64, error)
}

// GraphHandler handles knowledge-graph requests
type GraphHandler struct {
	svc GraphService
}

// NewGraphHandler creates a new GraphHandler
func NewGraphHandler(svc GraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

// EntityResponse represents an entity in API responses
type EntityResponse struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	CanonicalName string            `json:"canonical_name"`
	Aliases       []string          `json:"aliases"`
	MentionCount  int               `json:"mention_count"`
	FirstSeen     time.Time         `json:"first_seen"`
	LastSeen      time.Time         `json:"last_seen"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RelationshipResponse represents a relationship edge in API responses
type RelationshipResponse struct {
	ID              string    `json:"id"`
	SubjectID       string    `json:"subject_id"`
	Predicate       string    `json:"predicate"`
	ObjectID        string    `json:"object_id"`
	Strength        float64   `json:"strength"`
	CurrentStrength float64   `json:"current_strength"`
	MentionCount    int       `json:"mention_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Stale           bool      `json:"stale"`
}

func toEntityResponse(e *domain.Entity) EntityResponse {
	return EntityResponse{
		ID:            e.ID,
		Type:          string(e.Type),
		CanonicalName: e.CanonicalName,
		Aliases:       e.Aliases,
		MentionCount:  e.MentionCount,
		FirstSeen:     e.FirstSeen,
		LastSeen:      e.LastSeen,
		Metadata:      e.Metadata,
	}
}

func toRelationshipResponse(v graph.RelationshipView) RelationshipResponse {
	return RelationshipResponse{
		ID:              v.ID,
		SubjectID:       v.SubjectID,
		Predicate:       string(v.Predicate),
		ObjectID:        v.ObjectID,
		Strength:        v.Strength,
		CurrentStrength: v.CurrentStrength,
		MentionCount:    v.MentionCount,
		FirstSeen:       v.FirstSeen,
		LastSeen:        v.LastSeen,
		Stale:           v.Stale,
	}
}

// ListEntities handles GET /graph/entities with optional name and type filters
func (h *GraphHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("type")
	if entityType != "" && !domain.IsValidEntityType(domain.EntityType(entityType)) {
		api.Error(w, http.StatusBadRequest, "invalid entity type")
		return
	}

	entities, err := h.svc.ListEntities(r.Context(), entityType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	name := r.URL.Query().Get("name")
	responses := make([]EntityResponse, 0, len(entities))
	for _, e := range entities {
		if name != "" && !matchesName(e, name) {
			continue
		}
		responses = append(responses, toEntityResponse(e))
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"entities": responses,
		"count":    len(responses),
	})
}

// matchesName reports a fuzzy hit: substring on any known surface form, or
// edit-distance similarity above the threshold.
func matchesName(e *domain.Entity, query string) bool {
	lower := strings.ToLower(query)
	for _, candidate := range append([]string{e.CanonicalName}, e.Aliases...) {
		if strings.Contains(strings.ToLower(candidate), lower) {
			return true
		}
		if graph.NameSimilarity(candidate, query) >= fuzzyMatchThreshold {
			return true
		}
	}
	return false
}

// GetEntity handles GET /graph/entities/{id}
func (h *GraphHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	if entityID == "" {
		api.Error(w, http.StatusBadRequest, "entity ID is required")
		return
	}

	entity, err := h.svc.GetEntity(r.Context(), entityID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toEntityResponse(entity))
}

// EntityRelationships handles GET /graph/entities/{id}/relationships
func (h *GraphHandler) EntityRelationships(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	if entityID == "" {
		api.Error(w, http.StatusBadRequest, "entity ID is required")
		return
	}

	views, err := h.svc.EntityRelationships(r.Context(), entityID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]RelationshipResponse, 0, len(views))
	for _, v := range views {
		responses = append(responses, toRelationshipResponse(v))
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"entity_id":     entityID,
		"relationships": responses,
		"count":         len(responses),
	})
}

// ListStale handles GET /graph/stale with optional threshold and days filters
func (h *GraphHandler) ListStale(w http.ResponseWriter, r *http.Request) {
	threshold, err := parseFloatParam(r, "threshold")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid threshold")
		return
	}
	days, err := parseFloatParam(r, "days")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid days")
		return
	}

	views, err := h.svc.ListStale(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	now := time.Now().UTC()
	responses := make([]RelationshipResponse, 0, len(views))
	for _, v := range views {
		if threshold > 0 && v.CurrentStrength >= threshold {
			continue
		}
		if days > 0 && now.Sub(v.LastSeen).Hours() < days*24 {
			continue
		}
		responses = append(responses, toRelationshipResponse(v))
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"relationships": responses,
		"count":         len(responses),
	})
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// TriggerDecay handles POST /graph/decay
func (h *GraphHandler) TriggerDecay(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.TriggerDecay(r.Context(), time.Now().UTC())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, report)
}

// PruneStale handles POST /graph/prune
func (h *GraphHandler) PruneStale(w http.ResponseWriter, r *http.Request) {
	pruned, err := h.svc.PruneStale(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"pruned": pruned,
	})
}
