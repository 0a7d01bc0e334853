//go:build integration

package shorturl_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/database/dbtest"
	"github.com/redmonkez12/go-shortener-api/internal/shorturl"
)

func TestRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := shorturl.NewRepository(dbtest.NewDB(t))

	t.Run("create and lookup", func(t *testing.T) {
		created, err := repo.Create(ctx, "abc123", "https://example.com/a")
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Zero(t, created.AccessCount)

		exists, err := repo.ExistsByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, exists)

		byID, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", byID.OriginalURL)
	})

	t.Run("duplicate code", func(t *testing.T) {
		_, err := repo.Create(ctx, "dup001", "https://example.com/1")
		require.NoError(t, err)
		_, err = repo.Create(ctx, "dup001", "https://example.com/2")
		assert.ErrorIs(t, err, shorturl.ErrDuplicateCode)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		_, err := repo.Create(ctx, "hits01", "https://example.com/hits")
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.IncrementAccess(ctx, "hits01")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetByCode(ctx, "hits01")
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.AccessCount)
	})

	t.Run("delete", func(t *testing.T) {
		created, err := repo.Create(ctx, "gone01", "https://example.com/gone")
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, created.ID))
		assert.ErrorIs(t, repo.Delete(ctx, created.ID), shorturl.ErrNotFound)

		_, err = repo.GetByCode(ctx, "gone01")
		assert.ErrorIs(t, err, shorturl.ErrNotFound)
		_, err = repo.IncrementAccess(ctx, "gone01")
		assert.ErrorIs(t, err, shorturl.ErrNotFound)
	})

	t.Run("list pages by id", func(t *testing.T) {
		all, err := repo.List(ctx, 0, 100)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 3)

		page, err := repo.List(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, all[1].ID, page[0].ID)
	})
}
