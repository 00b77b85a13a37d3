// Package ws is the WebSocket front end of pairchat. It authenticates and
// upgrades clients, multiplexes reads with epoll, hands frames to a bounded
// worker pool and implements chat.Transport over the open connections.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/metrics"
	"github.com/whisper/pairchat/internal/protocol"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string
	WorkerPoolSize int // max concurrent frame handlers
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	FrameRate      float64 // sustained data frames per second per connection
	FrameBurst     int
	MaxFrameBytes  int64 // larger frames close the connection
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		FrameRate:      10,
		FrameBurst:     20,
		MaxFrameBytes:  chat.MaxMessageBytes,
	}
}

// Server accepts WebSocket clients and feeds their frames to a handler.
type Server struct {
	config ServerConfig
	auth   Authenticator
	log    *zap.Logger

	epoll *Epoll
	conns *ConnectionManager
	pool  *ants.Pool

	onMessage    func(c *Connection, data []byte)
	onDisconnect func(userID int64)

	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
	startedAt  time.Time
}

// NewServer creates a Server. Call SetHandlers before Start.
func NewServer(config ServerConfig, auth Authenticator, log *zap.Logger) (*Server, error) {
	log = log.Named("ws")

	pool, err := ants.NewPool(config.WorkerPoolSize,
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("frame handler panic", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ws: worker pool: %w", err)
	}

	epoll, err := NewEpoll()
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	return &Server{
		config:    config,
		auth:      auth,
		log:       log,
		epoll:     epoll,
		conns:     NewConnectionManager(),
		pool:      pool,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}, nil
}

// SetHandlers registers the frame handler and the callback run when a user's
// last connection goes away.
func (s *Server) SetHandlers(onMessage func(*Connection, []byte), onDisconnect func(userID int64)) {
	s.onMessage = onMessage
	s.onDisconnect = onDisconnect
}

// Connections returns the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Start runs the event loop and heartbeat, then serves handler until
// Shutdown.
func (s *Server) Start(handler http.Handler) error {
	go s.eventLoop()
	StartHeartbeat(s, DefaultHeartbeatConfig())

	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: s.config.ReadTimeout,
	}

	s.log.Info("listening",
		zap.String("addr", s.config.ListenAddr),
		zap.Int("workers", s.config.WorkerPoolSize),
		zap.Int("max_conns", s.config.MaxConnections),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// HandleUpgrade authenticates r and upgrades it. A user connecting again
// replaces the older connection without ending their chat.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		s.log.Debug("auth failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(userID, conn, rate.Limit(s.config.FrameRate), s.config.FrameBurst, s.config.WriteTimeout)
	if old := s.conns.Add(c); old != nil {
		_ = s.epoll.Remove(old.Conn)
		old.Close()
		s.log.Info("connection replaced", zap.Int64("user_id", userID))
	}
	if err := s.epoll.Add(conn); err != nil {
		s.log.Error("epoll add failed", zap.Int64("user_id", userID), zap.Error(err))
		s.RemoveConnection(c)
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	hello, err := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{UserID: userID})
	if err == nil {
		err = c.WriteMessage(hello)
	}
	if err != nil {
		s.log.Warn("send session_created failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	s.log.Debug("connected", zap.Int64("user_id", userID), zap.Int("fd", c.Fd), zap.Int("total", s.conns.Count()))
}

func (s *Server) eventLoop() {
	for {
		ready, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Warn("epoll wait error", zap.Error(err))
			continue
		}

		for _, conn := range ready {
			conn := conn
			if err := s.pool.Submit(func() { s.handleConn(conn) }); err != nil {
				s.log.Warn("submit frame handler", zap.Error(err))
			}
		}
	}
}

// handleConn reads one frame from a readable connection. Control frames are
// handled here; data frames go to onMessage.
func (s *Server) handleConn(netConn net.Conn) {
	defer s.epoll.Resume(netConn)

	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}
	// Level-triggered epoll may report the same conn twice.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(s.epoll.Reader(netConn), ws.StateServerSide)
	if err != nil {
		// Stale readiness; the heartbeat takes care of dead peers.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	c.Touch(time.Now())

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
			return
		}
		if _, err := io.Copy(io.Discard, reader); err != nil {
			s.RemoveConnection(c)
			return
		}
		_ = netConn.SetReadDeadline(time.Time{})
		return
	}

	if s.config.MaxFrameBytes > 0 && header.Length > s.config.MaxFrameBytes {
		s.log.Warn("frame too large",
			zap.Int64("user_id", c.UserID),
			zap.Int64("length", header.Length),
			zap.Int64("limit", s.config.MaxFrameBytes),
		)
		_ = c.WriteClose(ws.StatusMessageTooBig, "message too big")
		s.RemoveConnection(c)
		return
	}

	// The read deadline stays armed until the whole payload is in.
	data := make([]byte, header.Length)
	if _, err := io.ReadFull(reader, data); err != nil {
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})
	if len(data) > 0 && s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection closes c. If c was still the user's current connection
// the disconnect callback runs.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)
	c.Close()

	if !s.conns.Remove(c) {
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if s.onDisconnect != nil {
		s.onDisconnect(c.UserID)
	}
	s.log.Debug("disconnected", zap.Int64("user_id", c.UserID), zap.Int("total", s.conns.Count()))
}

// Shutdown stops accepting clients and closes every connection. Chats are
// left as they are so a restarted process can pick them up from the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, c := range s.conns.All() {
		_ = s.epoll.Remove(c.Conn)
		c.Close()
	}
	_ = s.epoll.Close()
	s.pool.Release()

	s.log.Info("server stopped")
	return err
}
