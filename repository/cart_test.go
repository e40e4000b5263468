package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/database"
	"shop-service/repository"
)

func openCartDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DialectSQLite))
	return db
}

func TestCartRepositoryUpsertReplacesQuantity(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCartRepository(openCartDB(t))
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, "u1", "p1", 2, now))
	require.NoError(t, repo.Upsert(ctx, "u1", "p2", 1, now))
	require.NoError(t, repo.Upsert(ctx, "u1", "p1", 5, now.Add(time.Minute)))
	require.NoError(t, repo.Upsert(ctx, "u2", "p1", 1, now))

	items, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 5, items[0].Quantity)
	assert.True(t, items[0].UpdatedAt.After(items[0].CreatedAt))
	assert.Equal(t, "p2", items[1].ProductID)
}

func TestCartRepositoryRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCartRepository(openCartDB(t))
	now := time.Now().UTC()

	for _, p := range []string{"p1", "p2", "p3"} {
		require.NoError(t, repo.Upsert(ctx, "u1", p, 1, now))
	}
	require.NoError(t, repo.Upsert(ctx, "u2", "p1", 1, now))

	require.NoError(t, repo.Remove(ctx, "u1", "p2"))
	items, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, repo.Clear(ctx, "u1"))
	items, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = repo.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCartRepositoryRejectsZeroQuantity(t *testing.T) {
	repo := repository.NewCartRepository(openCartDB(t))
	assert.Error(t, repo.Upsert(context.Background(), "u1", "p1", 0, time.Now()))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openCartDB(t)
	require.NoError(t, database.Migrate(context.Background(), db, database.DialectSQLite))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}
