package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextiq/contextiq/internal/domain"
)

// ProfileRepository persists user profiles, one active profile per user id.
type ProfileRepository struct {
	db dbtx
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: pool}
}

func NewProfileRepositoryWithTx(tx pgx.Tx) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	err := r.db.QueryRow(ctx,
		`SELECT user_id, name, aliases, role, projects, markets, colleagues
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Aliases, &p.Role, &p.Projects, &p.Markets, &p.Colleagues)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Upsert replaces the user's profile wholesale. Profiles are small and
// edited rarely; merging fields is not worth the complexity.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	if err := domain.ValidateUserProfile(p); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (user_id, name, aliases, role, projects, markets, colleagues)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   aliases = EXCLUDED.aliases,
		   role = EXCLUDED.role,
		   projects = EXCLUDED.projects,
		   markets = EXCLUDED.markets,
		   colleagues = EXCLUDED.colleagues`,
		p.UserID, p.Name, p.Aliases, p.Role, p.Projects, p.Markets, p.Colleagues,
	)
	return err
}

func (r *ProfileRepository) Delete(ctx context.Context, userID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
