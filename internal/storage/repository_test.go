package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profitdash/internal/core"
	"profitdash/internal/products"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(context.Background(), SQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testSnapshot(user, upload string, n int) core.Snapshot {
	s := core.Snapshot{
		UserID:     user,
		UploadID:   upload,
		FileName:   upload + ".xlsx",
		UploadedAt: time.UnixMilli(1_700_000_000_000).UTC(),
	}
	for i := 0; i < n; i++ {
		s.Products = append(s.Products, core.Product{
			ID:               fmt.Sprintf("product-%s-%d", upload, i),
			Name:             upload,
			Sales:            100 + float64(i),
			Profit:           25.5,
			TotalExpense:     40,
			Credit:           3,
			MarketplaceFee:   15.25,
			ProfitPercentage: 25.5,
		})
	}
	return s
}

func TestRepository_ReplaceAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "first", 3)))
	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "second", 2)))

	got, err := repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testSnapshot("u1", "second", 2), got)
}

func TestRepository_SnapshotKeepsUploadOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	snap := testSnapshot("u1", "a", 0)
	for _, id := range []string{"z", "m", "a"} {
		snap.Products = append(snap.Products, core.Product{ID: id, Name: id})
	}
	require.NoError(t, repo.Replace(ctx, snap))

	got, err := repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Products, 3)
	assert.Equal(t, "z", got.Products[0].ID)
	assert.Equal(t, "a", got.Products[2].ID)
}

func TestRepository_SnapshotUnknownUser(t *testing.T) {
	got, err := newTestRepo(t).Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Equal(t, "nobody", got.UserID)
	assert.Empty(t, got.UploadID)
}

func TestRepository_EmptyUploadStillRecorded(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "full", 2)))
	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "empty", 0)))

	got, err := repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "empty", got.UploadID)
	assert.True(t, got.Empty())

	id, err := repo.CurrentUploadID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "empty", id)
}

func TestRepository_Get(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "a", 2)))

	p, err := repo.Get(ctx, "u1", "product-a-1")
	require.NoError(t, err)
	assert.Equal(t, 101.0, p.Sales)
	assert.Equal(t, 15.25, p.MarketplaceFee)

	_, err = repo.Get(ctx, "u2", "product-a-1")
	assert.ErrorIs(t, err, products.ErrNotFound)
}

func TestRepository_Clear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "a", 2)))
	require.NoError(t, repo.Replace(ctx, testSnapshot("u2", "b", 1)))

	require.NoError(t, repo.Clear(ctx, "u1"))

	got, err := repo.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, got.UploadID)

	other, err := repo.Snapshot(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, other.Products, 1)
}

func TestRepository_ReplaceRejectsInvalid(t *testing.T) {
	err := newTestRepo(t).Replace(context.Background(), core.Snapshot{UserID: "u1"})
	assert.ErrorIs(t, err, core.ErrEmptyUploadID)
}

func TestRepository_ConcurrentReplaceAndRead(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.Replace(ctx, testSnapshot("u1", "a", 5)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			upload := "a"
			if i%2 == 0 {
				upload = "b"
			}
			assert.NoError(t, repo.Replace(ctx, testSnapshot("u1", upload, 5)))
			snap, err := repo.Snapshot(ctx, "u1")
			if !assert.NoError(t, err) {
				return
			}
			for _, p := range snap.Products {
				assert.Equal(t, snap.UploadID, p.Name)
			}
		}(i)
	}
	wg.Wait()
}

func TestRepository_UsersAndSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now()

	user := core.User{ID: "dev:ana@example.com", Email: "ana@example.com", DisplayName: "Ana"}
	require.NoError(t, repo.UpsertUser(ctx, user, now))

	user.DisplayName = "Ana B."
	require.NoError(t, repo.UpsertUser(ctx, user, now.Add(time.Minute)))

	got, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana B.", got.DisplayName)

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	require.NoError(t, repo.CreateSession(ctx, "live", user.ID, now, now.Add(time.Hour)))
	require.NoError(t, repo.CreateSession(ctx, "old", user.ID, now.Add(-2*time.Hour), now.Add(-time.Hour)))

	got, err = repo.SessionUser(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.SessionUser(ctx, "old", now)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	n, err := repo.PurgeExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.DeleteSession(ctx, "live"))
	_, err = repo.SessionUser(ctx, "live", now)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRepository_UpsertUserValidates(t *testing.T) {
	err := newTestRepo(t).UpsertUser(context.Background(), core.User{ID: "x"}, time.Now())
	assert.ErrorIs(t, err, core.ErrEmptyEmail)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	require.NoError(t, RunMigrations(SQLite, SQLiteDSN(path)))
	require.NoError(t, RunMigrations(SQLite, SQLiteDSN(path)))
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("mysql"), "x")
	assert.Error(t, err)
}
