package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pipeConn returns a server-side Connection and a channel of the frames the
// client end receives.
func pipeConn(t *testing.T, userID int64) (*Connection, <-chan map[string]interface{}) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	frames := make(chan map[string]interface{}, 16)
	go func() {
		defer close(frames)
		for {
			data, err := wsutil.ReadServerText(client)
			if err != nil {
				return
			}
			var m map[string]interface{}
			if json.Unmarshal(data, &m) == nil {
				frames <- m
			}
		}
	}()
	return newConnection(userID, server, rate.Inf, 1, time.Second), frames
}

func nextFrame(t *testing.T, frames <-chan map[string]interface{}) map[string]interface{} {
	t.Helper()
	select {
	case m, ok := <-frames:
		require.True(t, ok, "connection closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.WorkerPoolSize = 8
	s, err := NewServer(cfg, QueryAuth{}, zap.NewNop())
	require.NoError(t, err)
	return s
}
