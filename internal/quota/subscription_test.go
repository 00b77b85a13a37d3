package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGuardedChecker_PassesThrough(t *testing.T) {
	g := NewGuardedChecker(subscribedIs(true, nil), DefaultGuardConfig(), zap.NewNop())
	ok, err := g.IsSubscribed(context.Background(), 1, "@c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardedChecker_Timeout(t *testing.T) {
	slow := CheckerFunc(func(ctx context.Context, _ int64, _ string) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
			return true, nil
		}
	})
	cfg := DefaultGuardConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := NewGuardedChecker(slow, cfg, zap.NewNop())

	ok, err := g.IsSubscribed(context.Background(), 1, "@c")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardedChecker_OpensAfterFailures(t *testing.T) {
	var calls int
	failing := CheckerFunc(func(context.Context, int64, string) (bool, error) {
		calls++
		return false, errors.New("upstream down")
	})
	cfg := DefaultGuardConfig()
	cfg.MaxFailures = 2
	cfg.OpenFor = time.Minute
	g := NewGuardedChecker(failing, cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := g.IsSubscribed(context.Background(), 1, "@c")
		require.Error(t, err)
	}
	ok, err := g.IsSubscribed(context.Background(), 1, "@c")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCheckUnavailable)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "open", g.State())
}

// Requires Redis on localhost:6379; skipped otherwise.
func TestRedisMembership(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	rdb.FlushDB(ctx)
	defer func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	}()

	m := NewRedisMembership(rdb)
	ok, err := m.IsSubscribed(ctx, 7, "@c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rdb.SAdd(ctx, membersKey("@c"), "7").Err())
	ok, err = m.IsSubscribed(ctx, 7, "@c")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rdb.SRem(ctx, membersKey("@c"), "7").Err())
	ok, err = m.IsSubscribed(ctx, 7, "@c")
	require.NoError(t, err)
	assert.False(t, ok)
}
