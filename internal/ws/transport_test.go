package ws

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/protocol"
)

func newTestTransport(t *testing.T, size int) (*Transport, *ConnectionManager) {
	t.Helper()
	cm := NewConnectionManager()
	tr, err := NewTransport(cm, 1, size)
	require.NoError(t, err)
	return tr, cm
}

func TestTransport_SendText(t *testing.T) {
	tr, cm := newTestTransport(t, 10)
	c, frames := pipeConn(t, 5)
	cm.Add(c)

	require.NoError(t, tr.SendText(context.Background(), 5, "hello"))
	m := nextFrame(t, frames)
	assert.Equal(t, protocol.TypeNotice, m["type"])
	assert.Equal(t, "hello", m["text"])
}

func TestTransport_NotConnected(t *testing.T) {
	tr, _ := newTestTransport(t, 10)
	err := tr.SendText(context.Background(), 5, "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransport_RelayAndForward(t *testing.T) {
	tr, cm := newTestTransport(t, 10)
	partner, partnerFrames := pipeConn(t, 2)
	mod, modFrames := pipeConn(t, 99)
	cm.Add(partner)
	cm.Add(mod)
	ctx := context.Background()

	ref := tr.Accept(1, "hi there")
	assert.Equal(t, int64(1), ref.ChatID)
	assert.NotZero(t, ref.MessageID)

	require.NoError(t, tr.RelayText(ctx, 2, ref, "hi there"))
	m := nextFrame(t, partnerFrames)
	assert.Equal(t, protocol.TypeMessage, m["type"])
	assert.Equal(t, "hi there", m["text"])

	require.NoError(t, tr.ForwardMessage(ctx, 99, ref))
	m = nextFrame(t, modFrames)
	assert.Equal(t, protocol.TypeForwarded, m["type"])
	assert.Equal(t, "hi there", m["text"])
	assert.EqualValues(t, 1, m["from_user_id"])
}

func TestTransport_ForwardExpired(t *testing.T) {
	tr, cm := newTestTransport(t, 2)
	mod, _ := pipeConn(t, 99)
	cm.Add(mod)

	old := tr.Accept(1, "a")
	tr.Accept(1, "b")
	tr.Accept(1, "c")

	err := tr.ForwardMessage(context.Background(), 99, old)
	assert.ErrorIs(t, err, ErrMessageExpired)

	err = tr.ForwardMessage(context.Background(), 99, chat.MessageRef{ChatID: 1, MessageID: 12345})
	assert.ErrorIs(t, err, ErrMessageExpired)
}

func TestTransport_IDsAreUnique(t *testing.T) {
	tr, _ := newTestTransport(t, 100)
	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		ref := tr.Accept(1, "x")
		assert.False(t, seen[ref.MessageID])
		seen[ref.MessageID] = true
	}
}

func TestTransport_ConcurrentSendsToStalledPeerTimeOut(t *testing.T) {
	tr, cm := newTestTransport(t, 10)
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	// Nobody reads from client, so every write must end on its deadline.
	cm.Add(newConnection(5, server, rate.Inf, 1, 50*time.Millisecond))

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.SendText(context.Background(), 5, "hello")
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a send lost its write deadline")
	}

	for _, err := range errs {
		var netErr net.Error
		require.ErrorAs(t, err, &netErr)
		assert.True(t, netErr.Timeout())
	}
}
