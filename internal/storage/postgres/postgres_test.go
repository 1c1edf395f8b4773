package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// setupTestDB starts a PostgreSQL container and applies migrations. The test
// is skipped when no container runtime is available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "migrations must be idempotent")
	return pool
}

func transfers(start, end uint64) []transaction.Transaction {
	from := account.Of(account.Principal("\x0a"))
	to := account.Of(account.Principal("\x0b"))
	recorded := time.Unix(1700000000, 0).UTC()
	out := make([]transaction.Transaction, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, transaction.Transaction{
			Index: i, Kind: transaction.KindTransfer,
			From: &from, To: &to, Amount: i + 1, Fee: 1, RecordedAt: recorded,
		})
	}
	return out
}

func TestPostgresStorage(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	t.Run("journal", func(t *testing.T) {
		j := NewJournal(pool)
		for _, tx := range transfers(0, 4) {
			require.NoError(t, j.Append(ctx, tx))
		}
		require.ErrorIs(t, j.Append(ctx, transfers(1, 2)[0]), storage.ErrDuplicateKey)
		require.NoError(t, j.Truncate(ctx, 2))

		loaded, err := j.Load(ctx)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, uint64(2), loaded[0].Index)
		assert.True(t, loaded[0].RecordedAt.Equal(time.Unix(1700000000, 0)))
	})

	t.Run("shards", func(t *testing.T) {
		store := NewShardStore(pool, "pg-0", 8)
		d0 := storage.ShardDescriptor{ID: 0, Start: 0, End: 5, StoreID: store.ID()}
		require.NoError(t, store.WriteShard(ctx, d0, transfers(0, 5)))
		require.ErrorIs(t, store.WriteShard(ctx, d0, transfers(0, 5)), storage.ErrDuplicateKey)

		d1 := storage.ShardDescriptor{ID: 1, Start: 5, End: 10, StoreID: store.ID()}
		require.ErrorIs(t, store.WriteShard(ctx, d1, transfers(5, 10)), storage.ErrStoreFull)

		got, err := store.ReadRange(ctx, d0, 1, 3)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(2), got[0].Amount)

		_, err = store.ReadRange(ctx, d1, 5, 10)
		require.ErrorIs(t, err, storage.ErrNotFound)

		stored, err := store.Lookup(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, storage.ShardDescriptor{ID: 0, Start: 0, End: 5, StoreID: "pg-0"}, stored)
		_, err = store.Lookup(ctx, 1)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("directory", func(t *testing.T) {
		dir := NewDirectory(pool)
		require.NoError(t, dir.Append(ctx, storage.ShardDescriptor{ID: 1, Start: 5, End: 10, StoreID: "b"}))
		require.NoError(t, dir.Append(ctx, storage.ShardDescriptor{ID: 0, Start: 0, End: 5, StoreID: "a"}))
		require.ErrorIs(t, dir.Append(ctx, storage.ShardDescriptor{ID: 0, Start: 0, End: 5}), storage.ErrDuplicateKey)

		list, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].StoreID)
		assert.Equal(t, uint64(10), list[1].End)
	})
}
