//go:build integration

package promplate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer creates an ephemeral PostgreSQL container for testing.
func setupPostgresContainer(t *testing.T) *PostgresStorage {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("promplate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	storage, err := NewPostgresStorage(PostgresConfig{
		ConnectionString: connStr,
		AutoMigrate:      true,
		QueryTimeout:     30 * time.Second,
	})
	require.NoError(t, err, "failed to create postgres storage")
	t.Cleanup(func() { _ = storage.Close() })

	return storage
}

func TestPostgresStorage_Integration(t *testing.T) {
	storage := setupPostgresContainer(t)
	ctx := context.Background()

	t.Run("contract", func(t *testing.T) {
		// each subtest gets its own table so the contract sees an empty store
		n := 0
		storageContract(t, func(t *testing.T) TemplateStorage {
			n++
			s, err := NewPostgresStorage(PostgresConfig{
				ConnectionString: storage.config.ConnectionString,
				TableName:        fmt.Sprintf("contract_%d", n),
				AutoMigrate:      true,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		})
	})

	t.Run("numbers come back as float64", func(t *testing.T) {
		st := &StoredTemplate{Name: "numbers", Source: "{{ n }}", Context: map[string]any{"n": 3}}
		require.NoError(t, storage.Save(ctx, st))

		got, err := storage.Get(ctx, "numbers")
		require.NoError(t, err)
		assert.Equal(t, float64(3), got.Context["n"])

		out, err := got.Template().Render(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "3.0", out)
	})

	t.Run("schema is idempotent", func(t *testing.T) {
		require.NoError(t, storage.EnsureSchema(ctx))
		require.NoError(t, storage.EnsureSchema(ctx))
	})

	t.Run("concurrent saves get distinct versions", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- storage.Save(ctx, &StoredTemplate{Name: "contended", Source: fmt.Sprint(i)})
			}(i)
		}
		wg.Wait()
		close(errs)

		saved := 0
		for err := range errs {
			if err == nil {
				saved++
			}
		}
		versions, err := storage.ListVersions(ctx, "contended")
		require.NoError(t, err)
		assert.Len(t, versions, saved)
		assert.Positive(t, saved)
	})

	t.Run("driver", func(t *testing.T) {
		s, err := OpenStorage(StorageDriverPostgres, storage.config.ConnectionString)
		require.NoError(t, err)
		defer s.Close()

		exists, err := s.Exists(ctx, "numbers")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}
