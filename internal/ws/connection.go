package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"golang.org/x/time/rate"
)

// Connection is one authenticated WebSocket client. A user has at most one
// registered Connection; a newer one replaces it.
type Connection struct {
	UserID    int64
	Conn      net.Conn
	Fd        int
	CreatedAt time.Time

	lastSeen atomic.Int64 // unix nanos of the last frame
	// frames throttles inbound data frames independently of command cooldowns.
	frames       *rate.Limiter
	writeMu      sync.Mutex
	writeTimeout time.Duration
	processing   int32 // 0 idle, 1 being read by handleConn
}

func newConnection(userID int64, conn net.Conn, limit rate.Limit, burst int, writeTimeout time.Duration) *Connection {
	now := time.Now()
	c := &Connection{
		UserID:       userID,
		Conn:         conn,
		Fd:           socketFD(conn),
		CreatedAt:    now,
		frames:       rate.NewLimiter(limit, burst),
		writeTimeout: writeTimeout,
	}
	c.Touch(now)
	return c
}

// Touch records activity at t.
func (c *Connection) Touch(t time.Time) { c.lastSeen.Store(t.UnixNano()) }

// LastSeen returns the time of the last recorded activity.
func (c *Connection) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// Allow reports whether another data frame may be processed now.
func (c *Connection) Allow() bool {
	return c.frames.Allow()
}

// WriteMessage sends a text frame. Concurrent writers are serialized.
func (c *Connection) WriteMessage(data []byte) error {
	return c.write(func() error {
		return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
	})
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	return c.write(func() error {
		return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
	})
}

// WriteClose sends a close frame with code and reason.
func (c *Connection) WriteClose(code ws.StatusCode, reason string) error {
	return c.write(func() error {
		return ws.WriteFrame(c.Conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
	})
}

// write runs fn under the write lock with the write deadline armed, so one
// writer never clears another's deadline.
func (c *Connection) write(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return fn()
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager maps user ids and network connections to connections.
type ConnectionManager struct {
	mu     sync.RWMutex
	byUser map[int64]*Connection
	byConn map[net.Conn]*Connection
}

// NewConnectionManager creates an empty ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byUser: make(map[int64]*Connection),
		byConn: make(map[net.Conn]*Connection),
	}
}

// Add registers conn and returns the connection it displaced for the same
// user, if any. The displaced connection is not closed.
func (cm *ConnectionManager) Add(conn *Connection) *Connection {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	old := cm.byUser[conn.UserID]
	if old != nil {
		delete(cm.byConn, old.Conn)
	}
	cm.byUser[conn.UserID] = conn
	cm.byConn[conn.Conn] = conn
	return old
}

// Remove unregisters conn if it is still the user's current connection.
// It returns false when conn was already removed or replaced.
func (cm *ConnectionManager) Remove(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.byUser[conn.UserID] != conn {
		return false
	}
	delete(cm.byUser, conn.UserID)
	delete(cm.byConn, conn.Conn)
	return true
}

// Get returns the current connection of userID, or nil.
func (cm *ConnectionManager) Get(userID int64) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byUser[userID]
}

// GetByConn returns the connection wrapping c, or nil.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byConn[c]
}

// Count returns the number of registered connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byUser)
}

// All returns a snapshot of the registered connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byUser))
	for _, conn := range cm.byUser {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
