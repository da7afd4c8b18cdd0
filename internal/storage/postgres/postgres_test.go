//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	pgContainer *postgres.PostgresContainer
	databaseURL string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	pgContainer, err = postgres.Run(
		ctx, "postgres:16-alpine",
		postgres.WithDatabase("tucano"),
		postgres.WithUsername("tucano"),
		postgres.WithPassword("tucano"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		os.Exit(1)
	}
	databaseURL, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to read connection string: %s", err)
		os.Exit(1)
	}

	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgresql://u:p@h/db"))
}

func TestStore_SetGetRemove(t *testing.T) {
	t.Run("should persist documents per partition", func(t *testing.T) {
		// given
		ctx := context.Background()
		db, err := NewStore(ctx, databaseURL)
		require.NoError(t, err)
		defer db.Close()

		// when
		require.NoError(t, db.Set(ctx, "transactions/pg-u1/t1", json.RawMessage(`{"amount":29.90}`)))
		require.NoError(t, db.Set(ctx, "transactions/pg-u10/t1", json.RawMessage(`{"amount":1}`)))

		// then
		snap, err := db.Get(ctx, "transactions/pg-u1")
		require.NoError(t, err)
		b, err := snap.JSON()
		require.NoError(t, err)
		assert.Equal(t, `{"t1":{"amount":29.90}}`, string(b))

		require.NoError(t, db.Remove(ctx, "transactions/pg-u1"))
		snap, err = db.Get(ctx, "transactions/pg-u1")
		require.NoError(t, err)
		assert.False(t, snap.Exists)

		other, err := db.Get(ctx, "transactions/pg-u10")
		require.NoError(t, err)
		assert.True(t, other.Exists)
	})

	t.Run("should not lose concurrent writes to one partition", func(t *testing.T) {
		// given
		ctx := context.Background()
		db, err := NewStore(ctx, databaseURL)
		require.NoError(t, err)
		defer db.Close()

		// when
		var wg sync.WaitGroup
		for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				assert.NoError(t, db.Set(ctx, "transactions/pg-conc/"+id, map[string]any{"name": id}))
			}(id)
		}
		wg.Wait()

		// then
		snap, err := db.Get(ctx, "transactions/pg-conc")
		require.NoError(t, err)
		assert.Len(t, snap.Keys(), 6)
	})
}
