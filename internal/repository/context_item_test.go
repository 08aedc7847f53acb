//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextiq/contextiq/internal/domain"
	"github.com/contextiq/contextiq/internal/testutil"
)

func TestContextItemRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewContextItemRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	item := domain.NewContextItem(uuid.NewString(), "user-1", domain.SourceTypeChat, "msg-42", "Sarah asked Mike to review the budget", now)
	item.Complexity = 0.4

	require.NoError(t, repo.Create(ctx, item))

	retrieved, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.RawText, retrieved.RawText)
	assert.Equal(t, domain.SourceTypeChat, retrieved.SourceType)
	assert.Equal(t, "msg-42", retrieved.SourceID)
	assert.InDelta(t, 0.4, retrieved.Complexity, 1e-9)
}

func TestContextItemRepository_Create_WithoutSourceID(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewContextItemRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	item := domain.NewContextItem(uuid.NewString(), "user-1", domain.SourceTypeManual, "", "remember to renew the certificates", now)

	require.NoError(t, repo.Create(ctx, item))

	retrieved, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, retrieved.SourceID)
}

func TestContextItemRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewContextItemRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrContextItemNotFound)
}

func TestContextItemRepository_ListRecentByUser(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewContextItemRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		item := domain.NewContextItem(uuid.NewString(), "user-1", domain.SourceTypeChat, "", "message", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, item))
	}

	items, err := repo.ListRecentByUser(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt), "newest first")
}
