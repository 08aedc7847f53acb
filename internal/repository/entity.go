package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/contextiq/contextiq/internal/domain"
)

// EntityRepository persists canonical knowledge-graph entities.
type EntityRepository struct {
	db dbtx
}

func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{db: pool}
}

func NewEntityRepositoryWithTx(tx pgx.Tx) *EntityRepository {
	return &EntityRepository{db: tx}
}

func (r *EntityRepository) Create(ctx context.Context, e *domain.Entity) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO entities (id, type, canonical_name, aliases, mention_count, first_seen, last_seen, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Type, e.CanonicalName, e.Aliases, e.MentionCount, e.FirstSeen, e.LastSeen, metadata, nullableVector(e.Embedding),
	)
	return err
}

func (r *EntityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, type, canonical_name, aliases, mention_count, first_seen, last_seen, metadata, embedding
		 FROM entities WHERE id = $1`,
		id,
	)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EntityRepository) List(ctx context.Context) ([]*domain.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, type, canonical_name, aliases, mention_count, first_seen, last_seen, metadata, embedding
		 FROM entities ORDER BY last_seen DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

func (r *EntityRepository) ListByType(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, type, canonical_name, aliases, mention_count, first_seen, last_seen, metadata, embedding
		 FROM entities WHERE type = $1 ORDER BY last_seen DESC`,
		t,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

func (r *EntityRepository) Update(ctx context.Context, e *domain.Entity) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE entities SET canonical_name = $1, aliases = $2, mention_count = $3, last_seen = $4, metadata = $5, embedding = $6
		 WHERE id = $7`,
		e.CanonicalName, e.Aliases, e.MentionCount, e.LastSeen, metadata, nullableVector(e.Embedding), e.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntityNotFound
	}
	return nil
}

// SearchByEmbedding returns the entities nearest the query vector, most
// similar first. Entities without an embedding are skipped.
func (r *EntityRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*domain.Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, type, canonical_name, aliases, mention_count, first_seen, last_seen, metadata, embedding
		 FROM entities
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntityRows(rows)
}

type entityScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row entityScanner) (*domain.Entity, error) {
	var (
		e        domain.Entity
		metadata []byte
		vec      *pgvector.Vector
	)
	if err := row.Scan(&e.ID, &e.Type, &e.CanonicalName, &e.Aliases, &e.MentionCount, &e.FirstSeen, &e.LastSeen, &metadata, &vec); err != nil {
		return nil, err
	}
	e.FirstSeen = e.FirstSeen.UTC()
	e.LastSeen = e.LastSeen.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, err
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return &e, nil
}

func scanEntityRows(rows pgx.Rows) ([]*domain.Entity, error) {
	var results []*domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}
