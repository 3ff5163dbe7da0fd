package pgstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/fairyhunter13/order-checkout-service/internal/store/storetest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	// A second run must be a no-op.
	require.NoError(t, RunMigrations(dsn))
	return s
}

func TestPostgresBackend(t *testing.T) {
	s := setupTestDB(t)
	storetest.Run(t, func(t *testing.T) store.Backend {
		_, err := s.pool.Exec(context.Background(), `TRUNCATE order_items, orders, products`)
		require.NoError(t, err)
		return s
	})
}

func TestNewWrapsPool(t *testing.T) {
	var pool *pgxpool.Pool
	assert.Same(t, pool, New(pool).pool)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))

	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := classify(&pgconn.PgError{Code: code, Message: "contention"})
		assert.ErrorIs(t, err, store.ErrConflict, code)
		assert.True(t, store.Retryable(err), code)
	}

	unique := &pgconn.PgError{Code: codeUniqueViolation}
	assert.True(t, isUniqueViolation(unique))
	assert.False(t, store.Retryable(classify(unique)))

	assert.ErrorIs(t, classify(context.DeadlineExceeded), store.ErrUnavailable)
	assert.ErrorIs(t, classify(context.Canceled), store.ErrUnavailable)

	plain := errors.New("syntax")
	assert.Equal(t, plain, classify(plain))
}
