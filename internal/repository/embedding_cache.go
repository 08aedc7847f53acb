package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepository stores name embeddings keyed by lowercased
// surface form. A cache miss returns (nil, nil); callers fall back to the
// embedding service.
type EmbeddingCacheRepository struct {
	db dbtx
}

func NewEmbeddingCacheRepository(pool *pgxpool.Pool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: pool}
}

func (r *EmbeddingCacheRepository) Get(ctx context.Context, text string) ([]float32, error) {
	var vec pgvector.Vector
	err := r.db.QueryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE text_key = $1`,
		text,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return vec.Slice(), nil
}

func (r *EmbeddingCacheRepository) Put(ctx context.Context, text string, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO embedding_cache (text_key, embedding, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (text_key) DO UPDATE SET embedding = EXCLUDED.embedding`,
		text, pgvector.NewVector(embedding),
	)
	return err
}
