package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/whisper/pairchat/internal/store"
)

// newTestStore starts a throwaway PostgreSQL container. Tests are skipped
// when Docker is not available.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pairchat"),
		tcpostgres.WithUsername("pairchat"),
		tcpostgres.WithPassword("pairchat"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("skipping: postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DSN = dsn
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dsn
}

func TestPostgresStore(t *testing.T) {
	s, dsn := newTestStore(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, Migrate(dsn))
	})

	t.Run("queue keeps arrival order", func(t *testing.T) {
		for _, id := range []int64{101, 102, 103} {
			require.NoError(t, s.Enqueue(ctx, id))
		}
		require.NoError(t, s.Enqueue(ctx, 101))

		first, ok, err := s.FirstInQueue(ctx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(101), first)

		first, ok, err = s.FirstInQueue(ctx, 101)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(102), first)

		n, err := s.QueueLen(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		for _, id := range []int64{101, 102, 103} {
			require.NoError(t, s.Dequeue(ctx, id))
		}
	})

	t.Run("pairing removes both from queue", func(t *testing.T) {
		require.NoError(t, s.Enqueue(ctx, 201))
		require.NoError(t, s.Enqueue(ctx, 202))
		require.NoError(t, s.CreatePairing(ctx, 202, 201))

		queued, err := s.IsQueued(ctx, 201)
		require.NoError(t, err)
		assert.False(t, queued)

		p, ok, err := s.Partner(ctx, 201)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(202), p)

		err = s.CreatePairing(ctx, 201, 203)
		assert.ErrorIs(t, err, store.ErrAlreadyPaired)

		require.NoError(t, s.DeletePairing(ctx, 201, 202))
		_, ok, err = s.Partner(ctx, 202)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("blocks", func(t *testing.T) {
		require.NoError(t, s.Block(ctx, 301))
		require.NoError(t, s.Block(ctx, 301))
		blocked, err := s.IsBlocked(ctx, 301)
		require.NoError(t, err)
		assert.True(t, blocked)

		require.NoError(t, s.Unblock(ctx, 301))
		blocked, err = s.IsBlocked(ctx, 301)
		require.NoError(t, err)
		assert.False(t, blocked)
	})

	t.Run("quota round trip", func(t *testing.T) {
		rec, err := s.Quota(ctx, 401)
		require.NoError(t, err)
		assert.Equal(t, store.QuotaRecord{}, rec)

		want := store.QuotaRecord{UsedCount: 5, ResetAt: 1700000000, Premium: true}
		require.NoError(t, s.SaveQuota(ctx, 401, want))
		rec, err = s.Quota(ctx, 401)
		require.NoError(t, err)
		assert.Equal(t, want, rec)
	})

	t.Run("reports and stats", func(t *testing.T) {
		require.NoError(t, s.UpsertUser(ctx, store.User{ID: 501, Username: "a"}))
		require.NoError(t, s.UpsertUser(ctx, store.User{ID: 501, Username: "b"}))
		require.NoError(t, s.AddReport(ctx, store.Report{ReporterID: 501, ReportedID: 502, Reason: "spam"}))
		require.NoError(t, s.AddReport(ctx, store.Report{ReporterID: 501, ReportedID: 502, Reason: "spam"}))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Users)
		assert.Equal(t, 2, st.Reports)
		assert.Equal(t, 0, st.ActiveChats)
	})
}
