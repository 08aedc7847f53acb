package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/domain"
)

// ContextItemRepository persists ingested context. Rows are append-only;
// there is deliberately no Update.
type ContextItemRepository struct {
	db dbtx
}

func NewContextItemRepository(pool *pgxpool.Pool) *ContextItemRepository {
	return &ContextItemRepository{db: pool}
}

func NewContextItemRepositoryWithTx(tx pgx.Tx) *ContextItemRepository {
	return &ContextItemRepository{db: tx}
}

func (r *ContextItemRepository) Create(ctx context.Context, item *domain.ContextItem) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO context_items (id, user_id, source_type, source_id, raw_text, complexity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.UserID, item.SourceType, nullableString(item.SourceID), item.RawText, item.Complexity, item.CreatedAt,
	)
	return err
}

func (r *ContextItemRepository) GetByID(ctx context.Context, id string) (*domain.ContextItem, error) {
	var (
		item     domain.ContextItem
		sourceID *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, source_type, source_id, raw_text, complexity, created_at
		 FROM context_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.UserID, &item.SourceType, &sourceID, &item.RawText, &item.Complexity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContextItemNotFound
		}
		return nil, err
	}
	if sourceID != nil {
		item.SourceID = *sourceID
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (r *ContextItemRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*domain.ContextItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, source_type, source_id, raw_text, complexity, created_at
		 FROM context_items WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ContextItem
	for rows.Next() {
		var (
			item     domain.ContextItem
			sourceID *string
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.SourceType, &sourceID, &item.RawText, &item.Complexity, &item.CreatedAt); err != nil {
			return nil, err
		}
		if sourceID != nil {
			item.SourceID = *sourceID
		}
		item.CreatedAt = item.CreatedAt.UTC()
		results = append(results, &item)
	}
	return results, rows.Err()
}
