package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/pairchat/internal/store"
)

func TestEnqueue_KeepsOriginalPosition(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, 1))
	require.NoError(t, s.Enqueue(ctx, 2))
	require.NoError(t, s.Enqueue(ctx, 1))

	n, err := s.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, ok, err := s.FirstInQueue(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), first)
}

func TestFirstInQueue_SkipsExcluded(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, 7))
	_, ok, err := s.FirstInQueue(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Enqueue(ctx, 8))
	first, ok, err := s.FirstInQueue(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(8), first)
}

func TestCreatePairing_RemovesBothFromQueue(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, 1))
	require.NoError(t, s.Enqueue(ctx, 2))
	require.NoError(t, s.CreatePairing(ctx, 1, 2))

	for _, id := range []int64{1, 2} {
		queued, err := s.IsQueued(ctx, id)
		require.NoError(t, err)
		assert.False(t, queued, "user %d still queued", id)
	}

	p, ok, err := s.Partner(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), p)

	err = s.CreatePairing(ctx, 1, 3)
	assert.ErrorIs(t, err, store.ErrAlreadyPaired)
}

func TestDeletePairing(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreatePairing(ctx, 1, 2))
	require.NoError(t, s.DeletePairing(ctx, 2, 1))

	_, ok, err := s.Partner(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Partner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, store.User{ID: 1}))
	require.NoError(t, s.UpsertUser(ctx, store.User{ID: 2}))
	require.NoError(t, s.UpsertUser(ctx, store.User{ID: 3}))
	require.NoError(t, s.UpsertUser(ctx, store.User{ID: 1, Username: "renamed"}))
	require.NoError(t, s.CreatePairing(ctx, 1, 2))
	require.NoError(t, s.Enqueue(ctx, 3))
	require.NoError(t, s.AddReport(ctx, store.Report{ReporterID: 1, ReportedID: 2}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Users: 3, ActiveChats: 1, Reports: 1, Queue: 1}, st)

	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.NotEmpty(t, reports[0].ID)
}

func TestQuota_DefaultsToZero(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.Quota(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, store.QuotaRecord{}, rec)

	want := store.QuotaRecord{UsedCount: 3, ResetAt: 100, Premium: true}
	require.NoError(t, s.SaveQuota(ctx, 42, want))
	rec, err = s.Quota(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, want, rec)
}
