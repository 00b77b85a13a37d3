package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/metrics"
	"github.com/whisper/pairchat/internal/protocol"
	"github.com/whisper/pairchat/internal/store"
)

// Commander is the command surface the dispatcher drives. *chat.Service
// implements it.
type Commander interface {
	OnStart(ctx context.Context, userID int64, p chat.Profile) error
	OnCommands(ctx context.Context, userID int64) error
	OnMatchRequest(ctx context.Context, userID int64, p chat.Profile) error
	OnLeave(ctx context.Context, userID int64) error
	OnReport(ctx context.Context, userID int64) error
	OnAdminStats(ctx context.Context, callerID int64) (store.Stats, error)
	OnAdminBlock(ctx context.Context, callerID int64, arg string) error
	OnAdminUnblock(ctx context.Context, callerID int64, arg string) error
	OnIncomingText(ctx context.Context, userID int64, text string, ref chat.MessageRef) error
	OnUnsupportedContent(ctx context.Context, userID int64) error
}

// Dispatcher turns client frames into service commands. The service reports
// command failures to the user itself, so the dispatcher only answers frames
// it cannot hand over: bad JSON, flooding and pings.
type Dispatcher struct {
	commands  Commander
	transport *Transport
	timeout   time.Duration
	log       *zap.Logger
}

// NewDispatcher creates a Dispatcher. timeout bounds each command.
func NewDispatcher(commands Commander, transport *Transport, timeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		commands:  commands,
		transport: transport,
		timeout:   timeout,
		log:       log.Named("dispatch"),
	}
}

// Dispatch handles one data frame from conn.
func (d *Dispatcher) Dispatch(conn *Connection, data []byte) {
	uid := conn.UserID

	if !conn.Allow() {
		metrics.RateLimited.WithLabelValues("frame").Inc()
		d.sendError(conn, "rate_limited", "slow down")
		return
	}

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.log.Debug("parse error", zap.Int64("user_id", uid), zap.Error(err))
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		conn.Touch(time.Now())
		d.reply(conn, protocol.TypePong, protocol.PongMsg{})
		return
	}

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	switch m := msg.(type) {
	case protocol.StartMsg:
		err = d.commands.OnStart(ctx, uid, profile(m.Profile))
	case protocol.NextMsg:
		err = d.commands.OnMatchRequest(ctx, uid, profile(m.Profile))
	case protocol.StopMsg:
		err = d.commands.OnLeave(ctx, uid)
	case protocol.ReportMsg:
		err = d.commands.OnReport(ctx, uid)
	case protocol.CommandsMsg:
		err = d.commands.OnCommands(ctx, uid)
	case protocol.StatsMsg:
		var st store.Stats
		if st, err = d.commands.OnAdminStats(ctx, uid); err == nil {
			d.reply(conn, protocol.TypeStats, protocol.ServerStatsMsg{
				Users:       st.Users,
				ActiveChats: st.ActiveChats,
				Reports:     st.Reports,
				Queue:       st.Queue,
			})
		}
	case protocol.BlockMsg:
		err = d.commands.OnAdminBlock(ctx, uid, m.Target)
	case protocol.UnblockMsg:
		err = d.commands.OnAdminUnblock(ctx, uid, m.Target)
	case protocol.ChatMsg:
		ref := d.transport.Accept(uid, m.Text)
		err = d.commands.OnIncomingText(ctx, uid, m.Text, ref)
	case protocol.MediaMsg:
		err = d.commands.OnUnsupportedContent(ctx, uid)
	default:
		d.sendError(conn, "unsupported_type", "unsupported message type")
		return
	}

	if err != nil {
		d.log.Debug("command rejected",
			zap.Int64("user_id", uid),
			zap.String("type", msgType),
			zap.String("kind", chat.KindOf(err).String()),
			zap.String("code", chat.CodeOf(err)),
		)
	}
}

func profile(p protocol.Profile) chat.Profile {
	return chat.Profile{Username: p.Username, FirstName: p.FirstName, LastName: p.LastName}
}

func (d *Dispatcher) reply(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		d.log.Error("build reply failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		d.log.Debug("write reply failed", zap.Int64("user_id", conn.UserID), zap.Error(err))
	}
}

func (d *Dispatcher) sendError(conn *Connection, code, message string) {
	d.reply(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
