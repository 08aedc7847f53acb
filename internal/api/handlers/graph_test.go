package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/contextiq/contextiq/internal/api"
	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/graph"
)

type MockGraphService struct {
	mock.Mock
}

func (m *MockGraphService) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entity), args.Error(1)
}

func (m *MockGraphService) ListEntities(ctx context.Context, entityType string) ([]*domain.Entity, error) {
	args := m.Called(ctx, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entity), args.Error(1)
}

func (m *MockGraphService) EntityRelationships(ctx context.Context, entityID string) ([]graph.RelationshipView, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.RelationshipView), args.Error(1)
}

func (m *MockGraphService) ListStale(ctx context.Context) ([]graph.RelationshipView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.RelationshipView), args.Error(1)
}

func (m *MockGraphService) TriggerDecay(ctx context.Context, now time.Time) (*graph.DecayReport, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.DecayReport), args.Error(1)
}

func (m *MockGraphService) PruneStale(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func seedEntities(now time.Time) []*domain.Entity {
	mike := domain.NewEntity("ent-mike", domain.EntityTypePerson, "Mike Janssens", now)
	mike.RecordMention("Mike", now)
	apollo := domain.NewEntity("ent-apollo", domain.EntityTypeProject, "Apollo", now)
	return []*domain.Entity{mike, apollo}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp api.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestGraphHandler_ListEntities(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	svc.On("ListEntities", mock.Anything, "").Return(seedEntities(now), nil)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["count"])
}

func TestGraphHandler_ListEntities_FuzzyName(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	svc.On("ListEntities", mock.Anything, "").Return(seedEntities(now), nil)

	// "mikes" is a near-miss surface form that still resolves via the alias.
	req := httptest.NewRequest(http.MethodGet, "/graph/entities?name=mikes", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Equal(t, float64(1), data["count"])

	entities := data["entities"].([]interface{})
	first := entities[0].(map[string]interface{})
	assert.Equal(t, "ent-mike", first["id"])
}

func TestGraphHandler_ListEntities_TypeFilter(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	apollo := domain.NewEntity("ent-apollo", domain.EntityTypeProject, "Apollo", now)
	svc.On("ListEntities", mock.Anything, "PROJECT").Return([]*domain.Entity{apollo}, nil)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities?type=PROJECT", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["count"])
	svc.AssertExpectations(t)
}

func TestGraphHandler_ListEntities_InvalidType(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities?type=robot", nil)
	w := httptest.NewRecorder()
	h.ListEntities(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ListEntities", mock.Anything, mock.Anything)
}

func TestGraphHandler_GetEntity(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	mike := domain.NewEntity("ent-mike", domain.EntityTypePerson, "Mike Janssens", now)
	svc.On("GetEntity", mock.Anything, "ent-mike").Return(mike, nil)

	r := chi.NewRouter()
	r.Get("/graph/entities/{id}", h.GetEntity)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/ent-mike", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Mike Janssens", data["canonical_name"])
	assert.Equal(t, "PERSON", data["type"])
}

func TestGraphHandler_GetEntity_NotFound(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	svc.On("GetEntity", mock.Anything, "ghost").Return(nil, domain.ErrEntityNotFound)

	r := chi.NewRouter()
	r.Get("/graph/entities/{id}", h.GetEntity)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGraphHandler_EntityRelationships(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	rel := domain.NewRelationship("rel-1", "ent-mike", domain.PredicateWorksOn, "ent-apollo", now)
	views := []graph.RelationshipView{{Relationship: rel, CurrentStrength: 0.42}}
	svc.On("EntityRelationships", mock.Anything, "ent-mike").Return(views, nil)

	r := chi.NewRouter()
	r.Get("/graph/entities/{id}/relationships", h.EntityRelationships)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/ent-mike/relationships", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "ent-mike", data["entity_id"])

	rels := data["relationships"].([]interface{})
	require.Len(t, rels, 1)
	first := rels[0].(map[string]interface{})
	assert.Equal(t, "WORKS_ON", first["predicate"])
	assert.InDelta(t, 0.42, first["current_strength"].(float64), 1e-9)
	assert.InDelta(t, domain.InitialStrength, first["strength"].(float64), 1e-9)
}

func TestGraphHandler_EntityRelationships_NotFound(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	svc.On("EntityRelationships", mock.Anything, "ghost").Return(nil, domain.ErrEntityNotFound)

	r := chi.NewRouter()
	r.Get("/graph/entities/{id}/relationships", h.EntityRelationships)

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/ghost/relationships", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGraphHandler_ListStale(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	rel := domain.NewRelationship("rel-1", "ent-a", domain.PredicateRelatesTo, "ent-b", now)
	rel.Stale = true
	svc.On("ListStale", mock.Anything).Return([]graph.RelationshipView{{Relationship: rel, CurrentStrength: 0.05}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/graph/stale", nil)
	w := httptest.NewRecorder()
	h.ListStale(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["count"])
}

func TestGraphHandler_ListStale_Filters(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	now := time.Now().UTC()
	weak := domain.NewRelationship("rel-weak", "ent-a", domain.PredicateRelatesTo, "ent-b", now.AddDate(0, -6, 0))
	weak.Stale = true
	weak.LastSeen = now.AddDate(0, -6, 0)
	fresh := domain.NewRelationship("rel-fresh", "ent-a", domain.PredicateRelatesTo, "ent-c", now)
	fresh.Stale = true
	views := []graph.RelationshipView{
		{Relationship: weak, CurrentStrength: 0.05},
		{Relationship: fresh, CurrentStrength: 0.30},
	}
	svc.On("ListStale", mock.Anything).Return(views, nil)

	req := httptest.NewRequest(http.MethodGet, "/graph/stale?threshold=0.1&days=30", nil)
	w := httptest.NewRecorder()
	h.ListStale(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["count"])

	req = httptest.NewRequest(http.MethodGet, "/graph/stale?threshold=abc", nil)
	w = httptest.NewRecorder()
	h.ListStale(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphHandler_TriggerDecay(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	report := &graph.DecayReport{Examined: 10, MarkedStale: 2, TotalStale: 3, RanAt: time.Now().UTC()}
	svc.On("TriggerDecay", mock.Anything, mock.AnythingOfType("time.Time")).Return(report, nil)

	req := httptest.NewRequest(http.MethodPost, "/graph/decay", nil)
	w := httptest.NewRecorder()
	h.TriggerDecay(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(10), data["examined"])
	assert.Equal(t, float64(2), data["marked_stale"])
}

func TestGraphHandler_PruneStale(t *testing.T) {
	svc := new(MockGraphService)
	h := NewGraphHandler(svc)

	svc.On("PruneStale", mock.Anything).Return(int64(4), nil)

	req := httptest.NewRequest(http.MethodPost, "/graph/prune", nil)
	w := httptest.NewRecorder()
	h.PruneStale(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(4), data["pruned"])
}
