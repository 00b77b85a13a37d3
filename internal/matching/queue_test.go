package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/pairchat/internal/store/memory"
)

func newTestQueue() *Queue {
	return NewQueue(memory.New())
}

func TestQueue_FIFO(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, q.Enqueue(ctx, id))
	}

	got, ok, err := q.DequeueFirstExcluding(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueue_EnqueueIsIdempotent(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))
	require.NoError(t, q.Enqueue(ctx, 1))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _, err := q.DequeueFirstExcluding(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "re-enqueue must not move user to the back")
}

func TestQueue_DequeueSkipsRequester(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))

	got, ok, err := q.DequeueFirstExcluding(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got)

	in, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.True(t, in, "requester keeps its place")
}

func TestQueue_DequeueOnlySelf(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	_, ok, err := q.DequeueFirstExcluding(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := newTestQueue()
	_, ok, err := q.DequeueFirstExcluding(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Remove(ctx, 1))
	require.NoError(t, q.Remove(ctx, 1))

	in, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestQueue_ReenqueueAfterRemoveGoesToBack(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		require.NoError(t, q.Enqueue(ctx, id))
	}
	require.NoError(t, q.Remove(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 1))

	got, _, err := q.DequeueFirstExcluding(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestQueue_FirstExcludingDoesNotRemove(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	got, ok, err := q.FirstExcluding(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got)

	in, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.True(t, in)
}
