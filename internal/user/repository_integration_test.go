//go:build integration

package user_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/database/dbtest"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

func strPtr(s string) *string { return &s }

func TestRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	repo := user.NewRepository(dbtest.NewDB(t))

	t.Run("create and fetch", func(t *testing.T) {
		u, err := repo.Create(ctx, user.NewUser{
			Email:             "alice@example.com",
			PasswordHash:      "hash",
			VerificationToken: strPtr("digest-alice"),
		})
		require.NoError(t, err)
		assert.Equal(t, user.RoleUser, u.Role)
		assert.True(t, u.IsActive)
		assert.False(t, u.IsVerified)

		byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", byID.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.Create(ctx, user.NewUser{Email: "dup@example.com", PasswordHash: "h"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, user.NewUser{Email: "dup@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, user.ErrDuplicateEmail)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, user.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("verification token consumed once", func(t *testing.T) {
		_, err := repo.Create(ctx, user.NewUser{
			Email:             "bob@example.com",
			PasswordHash:      "h",
			VerificationToken: strPtr("digest-bob"),
		})
		require.NoError(t, err)

		u, err := repo.ConsumeVerificationToken(ctx, "digest-bob", time.Now())
		require.NoError(t, err)
		assert.True(t, u.IsVerified)
		assert.Nil(t, u.VerificationToken)

		_, err = repo.ConsumeVerificationToken(ctx, "digest-bob", time.Now())
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("expired token is not consumed", func(t *testing.T) {
		u, err := repo.Create(ctx, user.NewUser{Email: "carol@example.com", PasswordHash: "old"})
		require.NoError(t, err)

		expires := time.Now().Add(time.Minute)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "digest-carol", &expires))

		_, err = repo.ConsumeResetToken(ctx, "digest-carol", "new", expires.Add(time.Second))
		assert.ErrorIs(t, err, user.ErrNotFound)

		got, err := repo.ConsumeResetToken(ctx, "digest-carol", "new", time.Now())
		require.NoError(t, err)
		assert.Equal(t, "new", got.PasswordHash)
		assert.Nil(t, got.ResetToken)
	})

	t.Run("concurrent consumers", func(t *testing.T) {
		u, err := repo.Create(ctx, user.NewUser{Email: "dave@example.com", PasswordHash: "old"})
		require.NoError(t, err)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "digest-dave", nil))

		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ConsumeResetToken(ctx, "digest-dave", "new", time.Now())
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var ok int
		for err := range results {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, user.ErrNotFound)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("list and update", func(t *testing.T) {
		admin, err := repo.Create(ctx, user.NewUser{Email: "admin@corp.test", PasswordHash: "h", Role: user.RoleAdmin})
		require.NoError(t, err)

		admins, err := repo.List(ctx, user.Filter{Role: user.RoleAdmin})
		require.NoError(t, err)
		require.Len(t, admins, 1)
		assert.Equal(t, admin.ID, admins[0].ID)

		byEmail, err := repo.List(ctx, user.Filter{Email: "corp.test", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, byEmail, 1)

		inactive := false
		updated, err := repo.Update(ctx, admin.ID, user.Update{IsActive: &inactive})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		verified := true
		updated, err = repo.Update(ctx, admin.ID, user.Update{IsVerified: &verified})
		require.NoError(t, err)
		assert.True(t, updated.IsVerified)

		taken := "alice@example.com"
		_, err = repo.Update(ctx, admin.ID, user.Update{Email: &taken})
		assert.ErrorIs(t, err, user.ErrDuplicateEmail)

		_, err = repo.Update(ctx, uuid.New(), user.Update{IsActive: &inactive})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
