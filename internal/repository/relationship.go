package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/domain"
)

// RelationshipRepository persists directed edges between entities. The
// (subject, predicate, object) triple is unique; reinforcement updates the
// existing row.
type RelationshipRepository struct {
	db dbtx
}

func NewRelationshipRepository(pool *pgxpool.Pool) *RelationshipRepository {
	return &RelationshipRepository{db: pool}
}

func NewRelationshipRepositoryWithTx(tx pgx.Tx) *RelationshipRepository {
	return &RelationshipRepository{db: tx}
}

func (r *RelationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO relationships (id, subject_id, predicate, object_id, strength, mention_count, first_seen, last_seen, stale)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rel.ID, rel.SubjectID, rel.Predicate, rel.ObjectID, rel.Strength, rel.MentionCount, rel.FirstSeen, rel.LastSeen, rel.Stale,
	)
	return err
}

func (r *RelationshipRepository) GetByTriple(ctx context.Context, subjectID string, predicate domain.Predicate, objectID string) (*domain.Relationship, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, subject_id, predicate, object_id, strength, mention_count, first_seen, last_seen, stale
		 FROM relationships WHERE subject_id = $1 AND predicate = $2 AND object_id = $3`,
		subjectID, predicate, objectID,
	)
	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRelationshipNotFound
		}
		return nil, err
	}
	return rel, nil
}

func (r *RelationshipRepository) List(ctx context.Context) ([]*domain.Relationship, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subject_id, predicate, object_id, strength, mention_count, first_seen, last_seen, stale
		 FROM relationships ORDER BY last_seen DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationshipRows(rows)
}

func (r *RelationshipRepository) ListByEntity(ctx context.Context, entityID string) ([]*domain.Relationship, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subject_id, predicate, object_id, strength, mention_count, first_seen, last_seen, stale
		 FROM relationships WHERE subject_id = $1 OR object_id = $1 ORDER BY strength DESC`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationshipRows(rows)
}

func (r *RelationshipRepository) ListStale(ctx context.Context) ([]*domain.Relationship, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subject_id, predicate, object_id, strength, mention_count, first_seen, last_seen, stale
		 FROM relationships WHERE stale ORDER BY last_seen ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationshipRows(rows)
}

func (r *RelationshipRepository) Update(ctx context.Context, rel *domain.Relationship) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE relationships SET strength = $1, mention_count = $2, last_seen = $3, stale = $4
		 WHERE id = $5`,
		rel.Strength, rel.MentionCount, rel.LastSeen, rel.Stale, rel.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrRelationshipNotFound
	}
	return nil
}

func (r *RelationshipRepository) DeleteStale(ctx context.Context) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM relationships WHERE stale`)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanRelationship(row entityScanner) (*domain.Relationship, error) {
	var rel domain.Relationship
	if err := row.Scan(&rel.ID, &rel.SubjectID, &rel.Predicate, &rel.ObjectID, &rel.Strength, &rel.MentionCount, &rel.FirstSeen, &rel.LastSeen, &rel.Stale); err != nil {
		return nil, err
	}
	rel.FirstSeen = rel.FirstSeen.UTC()
	rel.LastSeen = rel.LastSeen.UTC()
	return &rel, nil
}

func scanRelationshipRows(rows pgx.Rows) ([]*domain.Relationship, error) {
	var results []*domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rel)
	}
	return results, rows.Err()
}
