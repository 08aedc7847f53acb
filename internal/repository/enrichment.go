package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/domain"
)

// EnrichmentRepository is the ledger of applied enrichments. The unique
// (task_id, context_key) pair enforces at-most-once application across
// retried ingests.
type EnrichmentRepository struct {
	db dbtx
}

func NewEnrichmentRepository(pool *pgxpool.Pool) *EnrichmentRepository {
	return &EnrichmentRepository{db: pool}
}

func NewEnrichmentRepositoryWithTx(tx pgx.Tx) *EnrichmentRepository {
	return &EnrichmentRepository{db: tx}
}

func (r *EnrichmentRepository) Exists(ctx context.Context, taskID, contextKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM enrichments WHERE task_id = $1 AND context_key = $2)`,
		taskID, contextKey,
	).Scan(&exists)
	return exists, err
}

func (r *EnrichmentRepository) Record(ctx context.Context, taskID, contextKey string, op *domain.EnrichmentOperation) error {
	diffs, err := json.Marshal(op.Diffs)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO enrichments (task_id, context_key, diffs, confidence, reasoning, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (task_id, context_key) DO NOTHING`,
		taskID, contextKey, diffs, op.Confidence, op.Reasoning, time.Now().UTC(),
	)
	return err
}

// AppliedEnrichment is one ledger row, read back for audit listings.
type AppliedEnrichment struct {
	TaskID     string
	ContextKey string
	Diffs      []domain.FieldDiff
	Confidence float64
	Reasoning  string
	AppliedAt  time.Time
}

func (r *EnrichmentRepository) ListByTask(ctx context.Context, taskID string) ([]*AppliedEnrichment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT task_id, context_key, diffs, confidence, reasoning, applied_at
		 FROM enrichments WHERE task_id = $1 ORDER BY applied_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*AppliedEnrichment
	for rows.Next() {
		var (
			a     AppliedEnrichment
			diffs []byte
		)
		if err := rows.Scan(&a.TaskID, &a.ContextKey, &diffs, &a.Confidence, &a.Reasoning, &a.AppliedAt); err != nil {
			return nil, err
		}
		if len(diffs) > 0 {
			if err := json.Unmarshal(diffs, &a.Diffs); err != nil {
				return nil, err
			}
		}
		a.AppliedAt = a.AppliedAt.UTC()
		results = append(results, &a)
	}
	return results, rows.Err()
}
