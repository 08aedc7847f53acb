package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/domain"
)

// CommentRepository persists pipeline-written task notes.
type CommentRepository struct {
	db dbtx
}

func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{db: pool}
}

func NewCommentRepositoryWithTx(tx pgx.Tx) *CommentRepository {
	return &CommentRepository{db: tx}
}

func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO comments (id, task_id, context_item_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TaskID, c.ContextItemID, c.Body, c.CreatedAt,
	)
	return err
}

func (r *CommentRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.Comment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, task_id, context_item_id, body, created_at
		 FROM comments WHERE task_id = $1 ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.ContextItemID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		results = append(results, &c)
	}
	return results, rows.Err()
}
