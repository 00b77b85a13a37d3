package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/matching"
	"github.com/whisper/pairchat/internal/store/memory"
)

type recorder struct {
	events []string
}

func (r *recorder) SessionEnded(userID int64, reason EndReason) {
	r.events = append(r.events, fmt.Sprintf("ended:%d:%s", userID, reason))
}

func (r *recorder) Paired(userID, partnerID int64) {
	r.events = append(r.events, fmt.Sprintf("paired:%d:%d", userID, partnerID))
}

func (r *recorder) Queued(userID int64) {
	r.events = append(r.events, fmt.Sprintf("queued:%d", userID))
}

func newTestManager() (*Manager, *memory.Store, *matching.Queue) {
	s := memory.New()
	q := matching.NewQueue(s)
	return NewManager(s, q, zap.NewNop()), s, q
}

// checkInvariant asserts every user is in at most one pairing and no paired
// user is queued.
func checkInvariant(t *testing.T, s *memory.Store, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		p, paired, err := s.Partner(ctx, id)
		require.NoError(t, err)
		queued, err := s.IsQueued(ctx, id)
		require.NoError(t, err)
		if paired {
			assert.False(t, queued, "user %d paired and queued", id)
			back, ok, err := s.Partner(ctx, p)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, id, back, "pairing of %d not symmetric", id)
		}
	}
}

func TestRequestMatch_QueuesWhenEmpty(t *testing.T) {
	m, s, q := newTestManager()
	rec := &recorder{}
	ctx := context.Background()

	out, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	assert.False(t, out.Paired)
	assert.Equal(t, []string{"queued:1"}, rec.events)

	in, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.True(t, in)
	checkInvariant(t, s, 1)
}

func TestRequestMatch_PairsOldest(t *testing.T) {
	m, s, q := newTestManager()
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, q.Enqueue(ctx, id))
	}

	rec := &recorder{}
	out, err := m.RequestMatch(ctx, 4, rec)
	require.NoError(t, err)
	require.True(t, out.Paired)
	assert.Equal(t, int64(1), out.Partner)
	assert.Equal(t, []string{"paired:1:4", "paired:4:1"}, rec.events)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	checkInvariant(t, s, 1, 2, 3, 4)
}

func TestRequestMatch_RepeatWhileQueuedKeepsPosition(t *testing.T) {
	m, s, q := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, 2))

	// 1 asks again: 2 is waiting, so they pair.
	out, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	require.True(t, out.Paired)
	assert.Equal(t, int64(2), out.Partner)
	checkInvariant(t, s, 1, 2)
}

func TestRequestMatch_RepeatAloneStaysQueuedOnce(t *testing.T) {
	m, _, q := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	_, err = m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequestMatch_EndsExistingPairing(t *testing.T) {
	m, s, _ := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	_, err = m.RequestMatch(ctx, 2, rec)
	require.NoError(t, err)
	_, err = m.RequestMatch(ctx, 3, rec)
	require.NoError(t, err)

	rec.events = nil
	out, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	assert.True(t, out.LeftPrevious)
	assert.Equal(t, int64(2), out.PreviousPartner)
	assert.True(t, out.Paired)
	assert.Equal(t, int64(3), out.Partner)
	assert.Equal(t, []string{"ended:2:next", "paired:3:1", "paired:1:3"}, rec.events)

	_, ok, err := s.Partner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	checkInvariant(t, s, 1, 2, 3)
}

func TestLeave(t *testing.T) {
	m, s, q := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	_, err = m.RequestMatch(ctx, 2, rec)
	require.NoError(t, err)

	rec.events = nil
	res, err := m.Leave(ctx, 1, rec)
	require.NoError(t, err)
	assert.True(t, res.HadPartner)
	assert.Equal(t, int64(2), res.Partner)
	assert.Equal(t, []string{"ended:2:stop"}, rec.events)

	_, ok, err := s.Partner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "leaving does not re-queue either side")
}

func TestLeave_WhileQueued(t *testing.T) {
	m, _, q := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)

	rec.events = nil
	res, err := m.Leave(ctx, 1, rec)
	require.NoError(t, err)
	assert.False(t, res.HadPartner)
	assert.Empty(t, rec.events)

	in, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestDisconnect(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	_, err := m.RequestMatch(ctx, 1, rec)
	require.NoError(t, err)
	_, err = m.RequestMatch(ctx, 2, rec)
	require.NoError(t, err)

	rec.events = nil
	_, err = m.Disconnect(ctx, 2, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"ended:1:disconnect"}, rec.events)
}

func TestEndToEndScenario(t *testing.T) {
	m, s, q := newTestManager()
	ctx := context.Background()
	rec := &recorder{}

	for _, id := range []int64{1, 2, 3} {
		_, err := m.RequestMatch(ctx, id, rec)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"queued:1", "paired:1:2", "paired:2:1", "queued:3"}, rec.events)

	p, ok, err := s.Partner(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), p)

	first, ok, err := q.FirstExcluding(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), first)

	rec.events = nil
	_, err = m.Leave(ctx, 1, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"ended:2:stop"}, rec.events)
	_, ok, err = s.Partner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// 3 asks again while alone: still waiting.
	out, err := m.RequestMatch(ctx, 3, rec)
	require.NoError(t, err)
	assert.False(t, out.Paired)

	// 2 re-requests and meets 3.
	out, err = m.RequestMatch(ctx, 2, rec)
	require.NoError(t, err)
	require.True(t, out.Paired)
	assert.Equal(t, int64(3), out.Partner)
	checkInvariant(t, s, 1, 2, 3)
}
