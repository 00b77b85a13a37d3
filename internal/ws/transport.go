package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/protocol"
)

var (
	// ErrNotConnected means the recipient has no open connection.
	ErrNotConnected = errors.New("ws: recipient not connected")
	// ErrMessageExpired means a forwarded message fell out of the history.
	ErrMessageExpired = errors.New("ws: message no longer available")
)

// DefaultHistorySize is how many relayed messages stay forwardable.
const DefaultHistorySize = 100000

type storedMessage struct {
	from int64
	text string
	ts   int64
}

// Transport delivers chat output over WebSocket connections. Every relayed
// message gets a snowflake id and is kept in a bounded LRU so that reports
// can forward it to the moderator later.
type Transport struct {
	conns   *ConnectionManager
	ids     *snowflake.Node
	history *lru.Cache[int64, storedMessage]
	now     func() time.Time
}

var (
	_ chat.Transport = (*Transport)(nil)
	_ chat.Relayer   = (*Transport)(nil)
)

// NewTransport creates a Transport. nodeID must be unique per process
// sharing a moderator (0-1023).
func NewTransport(conns *ConnectionManager, nodeID int64, historySize int) (*Transport, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ws: snowflake node: %w", err)
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	history, err := lru.New[int64, storedMessage](historySize)
	if err != nil {
		return nil, fmt.Errorf("ws: message history: %w", err)
	}
	return &Transport{
		conns:   conns,
		ids:     node,
		history: history,
		now:     time.Now,
	}, nil
}

// Accept records text sent by from and returns its reference.
func (t *Transport) Accept(from int64, text string) chat.MessageRef {
	id := t.ids.Generate().Int64()
	t.history.Add(id, storedMessage{from: from, text: text, ts: t.now().Unix()})
	return chat.MessageRef{ChatID: from, MessageID: id}
}

// SendText sends a bot notice.
func (t *Transport) SendText(_ context.Context, userID int64, text string) error {
	return t.send(userID, protocol.Notice(text))
}

// RelayText sends partner text under its message id.
func (t *Transport) RelayText(_ context.Context, toID int64, ref chat.MessageRef, text string) error {
	data, err := protocol.NewServerMessage(protocol.TypeMessage, protocol.ServerChatMsg{
		MessageID: ref.MessageID,
		Text:      text,
		Ts:        t.now().Unix(),
	})
	if err != nil {
		return err
	}
	return t.send(toID, data)
}

// ForwardMessage re-delivers a remembered message to toID.
func (t *Transport) ForwardMessage(_ context.Context, toID int64, ref chat.MessageRef) error {
	m, ok := t.history.Get(ref.MessageID)
	if !ok || m.from != ref.ChatID {
		return fmt.Errorf("%w: %d", ErrMessageExpired, ref.MessageID)
	}
	data, err := protocol.NewServerMessage(protocol.TypeForwarded, protocol.ForwardedMsg{
		FromUserID: m.from,
		MessageID:  ref.MessageID,
		Text:       m.text,
		Ts:         m.ts,
	})
	if err != nil {
		return err
	}
	return t.send(toID, data)
}

func (t *Transport) send(userID int64, data []byte) error {
	c := t.conns.Get(userID)
	if c == nil {
		return fmt.Errorf("%w: user %d", ErrNotConnected, userID)
	}
	return c.WriteMessage(data)
}
