// Package graph maintains the knowledge graph: canonical entities with
// similarity-based dedup, reinforced relationships, and time decay.
package graph

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/telemetry"
)

// DefaultDedupThreshold is the combined-similarity score at or above which
// a new mention merges into an existing entity.
const DefaultDedupThreshold = 0.70

// lockShardCount sizes the fixed lock table that serializes observations.
const lockShardCount = 64

// EntityRepositoryInterface defines the repository interface for entity persistence
type EntityRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Entity) error
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	List(ctx context.Context) ([]*domain.Entity, error)
	ListByType(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error)
	Update(ctx context.Context, e *domain.Entity) error
}

// RelationshipRepositoryInterface defines the repository interface for relationship persistence
type RelationshipRepositoryInterface interface {
	Create(ctx context.Context, r *domain.Relationship) error
	GetByTriple(ctx context.Context, subjectID string, predicate domain.Predicate, objectID string) (*domain.Relationship, error)
	List(ctx context.Context) ([]*domain.Relationship, error)
	ListByEntity(ctx context.Context, entityID string) ([]*domain.Relationship, error)
	ListStale(ctx context.Context) ([]*domain.Relationship, error)
	Update(ctx context.Context, r *domain.Relationship) error
	DeleteStale(ctx context.Context) (int64, error)
}

// Embedder generates embedding vectors for entity names.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCacheRepositoryInterface caches name embeddings so repeated
// mentions of the same surface form cost one API call, not many.
type EmbeddingCacheRepositoryInterface interface {
	Get(ctx context.Context, text string) ([]float32, error)
	Put(ctx context.Context, text string, embedding []float32) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Options tunes dedup and decay behavior. Zero values fall back to defaults.
type Options struct {
	DedupThreshold float64
	HalfLifeDays   float64
	StaleThreshold float64
}

func (o Options) withDefaults() Options {
	if o.DedupThreshold <= 0 {
		o.DedupThreshold = DefaultDedupThreshold
	}
	if o.HalfLifeDays <= 0 {
		o.HalfLifeDays = domain.DefaultHalfLifeDays
	}
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = domain.DefaultStaleThreshold
	}
	return o
}

// Store handles business logic for the knowledge graph.
type Store struct {
	entityRepo       EntityRepositoryInterface
	relationshipRepo RelationshipRepositoryInterface
	embedder         Embedder
	embeddingCache   EmbeddingCacheRepositoryInterface
	opts             Options
	uuidGen          UUIDGenerator

	locks [lockShardCount]sync.Mutex
}

// NewStore creates a new Store instance without an embedding backend;
// dedup runs on name similarity alone.
func NewStore(entityRepo EntityRepositoryInterface, relationshipRepo RelationshipRepositoryInterface) *Store {
	return NewStoreWithEmbedder(entityRepo, relationshipRepo, nil, nil, Options{})
}

// NewStoreWithEmbedder creates a new Store instance with an embedding
// backend and cache for combined similarity.
func NewStoreWithEmbedder(
	entityRepo EntityRepositoryInterface,
	relationshipRepo RelationshipRepositoryInterface,
	embedder Embedder,
	embeddingCache EmbeddingCacheRepositoryInterface,
	opts Options,
) *Store {
	return &Store{
		entityRepo:       entityRepo,
		relationshipRepo: relationshipRepo,
		embedder:         embedder,
		embeddingCache:   embeddingCache,
		opts:             opts.withDefaults(),
		uuidGen:          &DefaultUUIDGenerator{},
	}
}

// lockKey serializes observations that could race on the same dedup or
// reinforcement decision. Keys hash onto a fixed set of shards so the lock
// table stays bounded no matter how many triples the graph accumulates; a
// shard collision only over-serializes, never under-serializes.
func (s *Store) lockKey(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	l := &s.locks[h.Sum32()%lockShardCount]
	l.Lock()
	return l.Unlock
}

// ObserveEntity records one mention of a named entity. The mention merges
// into the most similar existing entity of the same type when the combined
// score meets the dedup threshold; otherwise a new canonical node is
// created. Returns the canonical entity and whether it was newly created.
func (s *Store) ObserveEntity(ctx context.Context, name string, entityType domain.EntityType, seenAt time.Time) (*domain.Entity, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphStore.ObserveEntity", telemetry.SpanAttributes{
		Operation: "observe_entity",
	})
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, domain.ErrMissingRequiredField
	}
	if !domain.IsValidEntityType(entityType) {
		return nil, false, domain.ErrInvalidEntityType
	}

	unlock := s.lockKey("entity:" + string(entityType))
	defer unlock()

	candidates, err := s.entityRepo.ListByType(ctx, entityType)
	if err != nil {
		return nil, false, err
	}

	// Exact alias match needs no scoring.
	for _, c := range candidates {
		if c.HasAlias(name) {
			c.RecordMention(name, seenAt)
			if err := s.entityRepo.Update(ctx, c); err != nil {
				return nil, false, err
			}
			return c, false, nil
		}
	}

	embedding := s.embeddingFor(ctx, name)

	var best *domain.Entity
	bestScore := 0.0
	for _, c := range candidates {
		score := similarityToEntity(name, embedding, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	if best != nil && bestScore >= s.opts.DedupThreshold {
		best.RecordMention(name, seenAt)
		if err := s.entityRepo.Update(ctx, best); err != nil {
			return nil, false, err
		}
		return best, false, nil
	}

	entity := domain.NewEntity(s.uuidGen.NewString(), entityType, name, seenAt)
	entity.Embedding = embedding
	if err := domain.ValidateEntity(entity); err != nil {
		return nil, false, err
	}
	if err := s.entityRepo.Create(ctx, entity); err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

// similarityToEntity scores a mention against an entity over its canonical
// name and every alias, taking the maximum.
func similarityToEntity(name string, embedding []float32, e *domain.Entity) float64 {
	score := CombinedSimilarity(name, e.CanonicalName, embedding, e.Embedding)
	for _, alias := range e.Aliases {
		if s := CombinedSimilarity(name, alias, embedding, e.Embedding); s > score {
			score = s
		}
	}
	return score
}

// embeddingFor resolves a name embedding through the cache. Any failure
// degrades to string-only similarity instead of failing the observation.
func (s *Store) embeddingFor(ctx context.Context, name string) []float32 {
	if s.embedder == nil {
		return nil
	}

	key := strings.ToLower(name)
	if s.embeddingCache != nil {
		if cached, err := s.embeddingCache.Get(ctx, key); err == nil && len(cached) > 0 {
			return cached
		}
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, name)
	if err != nil {
		log.Printf("graph: embedding unavailable for %q, using name similarity only: %v", name, err)
		return nil
	}

	if s.embeddingCache != nil {
		if err := s.embeddingCache.Put(ctx, key, embedding); err != nil {
			log.Printf("graph: failed to cache embedding for %q: %v", name, err)
		}
	}
	return embedding
}

// ObserveRelationship records one observation of a directed edge. A first
// observation creates the edge at initial strength; re-observations
// reinforce it. Returns the edge and whether it was newly created.
func (s *Store) ObserveRelationship(ctx context.Context, subjectID string, predicate domain.Predicate, objectID string, seenAt time.Time) (*domain.Relationship, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphStore.ObserveRelationship", telemetry.SpanAttributes{
		Operation: "observe_relationship",
	})
	defer span.End()

	if subjectID == "" || objectID == "" {
		return nil, false, domain.ErrMissingRequiredField
	}
	if subjectID == objectID {
		return nil, false, domain.NewDomainError(domain.ErrCodeValidation, "relationship cannot connect an entity to itself")
	}
	if !domain.IsValidPredicate(predicate) {
		return nil, false, domain.ErrInvalidPredicate
	}

	unlock := s.lockKey("rel:" + subjectID + "|" + string(predicate) + "|" + objectID)
	defer unlock()

	existing, err := s.relationshipRepo.GetByTriple(ctx, subjectID, predicate, objectID)
	switch {
	case err == nil:
		existing.Reinforce(seenAt)
		if err := s.relationshipRepo.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case errors.Is(err, domain.ErrRelationshipNotFound):
		rel := domain.NewRelationship(s.uuidGen.NewString(), subjectID, predicate, objectID, seenAt)
		if err := domain.ValidateRelationship(rel); err != nil {
			return nil, false, err
		}
		if err := s.relationshipRepo.Create(ctx, rel); err != nil {
			return nil, false, err
		}
		return rel, true, nil
	default:
		return nil, false, err
	}
}

// GetEntity retrieves a canonical entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	return s.entityRepo.GetByID(ctx, id)
}

// ListEntities retrieves canonical entities, optionally filtered by type.
func (s *Store) ListEntities(ctx context.Context, entityType string) ([]*domain.Entity, error) {
	if entityType == "" {
		return s.entityRepo.List(ctx)
	}
	t := domain.EntityType(entityType)
	if !domain.IsValidEntityType(t) {
		return nil, domain.ErrInvalidEntityType
	}
	return s.entityRepo.ListByType(ctx, t)
}

// RelationshipView is a relationship annotated with its decayed strength
// as of read time. Stored strength only moves through reinforcement, so
// readers always see the current effective value.
type RelationshipView struct {
	*domain.Relationship
	CurrentStrength float64
}

// EntityRelationships returns every edge touching the entity, with current
// decayed strengths.
func (s *Store) EntityRelationships(ctx context.Context, entityID string) ([]RelationshipView, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphStore.EntityRelationships", telemetry.SpanAttributes{
		EntityID:  entityID,
		Operation: "list_relationships",
	})
	defer span.End()

	if _, err := s.entityRepo.GetByID(ctx, entityID); err != nil {
		return nil, err
	}

	rels, err := s.relationshipRepo.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.views(rels, time.Now().UTC()), nil
}

func (s *Store) views(rels []*domain.Relationship, now time.Time) []RelationshipView {
	views := make([]RelationshipView, 0, len(rels))
	for _, r := range rels {
		views = append(views, RelationshipView{
			Relationship:    r,
			CurrentStrength: r.DecayedStrength(now, s.opts.HalfLifeDays),
		})
	}
	return views
}
