// Package chat is the command surface of pairchat. Service serializes every
// command behind one lock, applies rate limits, quotas and blocks, drives
// matching and moderation, and hands the resulting notifications to the
// transport after the lock is released.
package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/matching"
	"github.com/whisper/pairchat/internal/metrics"
	"github.com/whisper/pairchat/internal/moderation"
	"github.com/whisper/pairchat/internal/quota"
	"github.com/whisper/pairchat/internal/ratelimit"
	"github.com/whisper/pairchat/internal/session"
	"github.com/whisper/pairchat/internal/store"
)

// MessageRef identifies a message the transport can re-deliver.
type MessageRef = moderation.MessageRef

// Transport delivers text to users. Both calls may fail; the service logs
// the failure and keeps its own state.
type Transport interface {
	SendText(ctx context.Context, userID int64, text string) error
	ForwardMessage(ctx context.Context, toID int64, ref MessageRef) error
}

// Relayer is implemented by transports that render partner text apart from
// bot notices. Transports without it get relayed text through SendText.
type Relayer interface {
	RelayText(ctx context.Context, toID int64, ref MessageRef, text string) error
}

// Profile is the display metadata a transport knows about a user.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

func (p Profile) user(id int64) store.User {
	return store.User{ID: id, Username: p.Username, FirstName: p.FirstName, LastName: p.LastName}
}

// Config holds service settings.
type Config struct {
	// ModeratorID is the only identity allowed to run stats, block and unblock.
	ModeratorID int64
	NextRule    ratelimit.Rule
	ReportRule  ratelimit.Rule
}

// DefaultConfig returns the default cooldowns. ModeratorID must be set.
func DefaultConfig() Config {
	return Config{
		NextRule:   ratelimit.RuleNext,
		ReportRule: ratelimit.RuleReport,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithEventSink publishes moderation events to sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecentMessages shares a message window store.
func WithRecentMessages(r *moderation.RecentMessages) Option {
	return func(s *Service) { s.recent = r }
}

// Service coordinates all commands.
type Service struct {
	// mu is held for the read-decide-write part of every command.
	mu sync.Mutex

	cfg       Config
	store     store.Store
	limiter   ratelimit.Limiter
	quota     *quota.Tracker
	queue     *matching.Queue
	sessions  *session.Manager
	moderator *moderation.Moderator
	recent    *moderation.RecentMessages
	transport Transport
	order     *sequencer
	sink      EventSink
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires a Service over st.
func NewService(
	cfg Config,
	st store.Store,
	limiter ratelimit.Limiter,
	tracker *quota.Tracker,
	transport Transport,
	log *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:       cfg,
		store:     st,
		limiter:   limiter,
		quota:     tracker,
		transport: transport,
		order:     newSequencer(),
		log:       log.Named("chat"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recent == nil {
		s.recent = moderation.NewRecentMessages()
	}

	s.queue = matching.NewQueue(st)
	s.sessions = session.NewManager(st, s.queue, s.log.Named("session"))
	s.moderator = moderation.NewModerator(st, st, s.sessions, s.queue, s.recent, s.log.Named("moderation"))
	return s
}

// IsModerator reports whether userID is the configured moderator.
func (s *Service) IsModerator(userID int64) bool {
	return s.cfg.ModeratorID != 0 && userID == s.cfg.ModeratorID
}

// run executes fn under the lock, tells the actor about any failure and
// flushes the outbox once the recipients' earlier deliveries are out.
func (s *Service) run(ctx context.Context, command string, actor int64, fn func(ob *outbox) error) error {
	start := time.Now()
	ob := newOutbox(actor)

	s.mu.Lock()
	cerr := asError(fn(ob))
	if cerr != nil {
		ob.say(actor, cerr.Message)
	}
	tickets := s.order.reserve(ob.recipients())
	s.mu.Unlock()

	if cerr != nil {
		if cerr.Kind == KindPersistence {
			s.log.Error("command failed",
				zap.String("command", command),
				zap.Int64("user_id", actor),
				zap.Error(cerr.Cause),
			)
		} else {
			s.log.Debug("command refused",
				zap.String("command", command),
				zap.Int64("user_id", actor),
				zap.String("code", cerr.Code),
			)
		}
	}

	if relayErr := s.flush(ctx, ob, tickets); relayErr != nil && cerr == nil {
		cerr = deliveryFailed(TextDeliveryFailed, relayErr)
	}

	outcome := "ok"
	if cerr != nil {
		outcome = cerr.Kind.String()
	}
	metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
	metrics.CommandLatency.WithLabelValues(command).Observe(time.Since(start).Seconds())

	if cerr == nil {
		return nil
	}
	return cerr
}

func (s *Service) guardBlocked(ctx context.Context, userID int64, msg string) error {
	blocked, err := s.moderator.IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		return denied(CodeBlocked, msg)
	}
	return nil
}

func (s *Service) limited(ctx context.Context, userID int64, rule ratelimit.Rule) bool {
	if ratelimit.Limited(ctx, s.limiter, userID, rule) {
		metrics.RateLimited.WithLabelValues(string(rule.Action)).Inc()
		return true
	}
	return false
}

// OnStart registers the user and greets them.
func (s *Service) OnStart(ctx context.Context, userID int64, p Profile) error {
	return s.run(ctx, "start", userID, func(ob *outbox) error {
		if err := s.store.UpsertUser(ctx, p.user(userID)); err != nil {
			return err
		}
		if err := s.guardBlocked(ctx, userID, TextBlockedStart); err != nil {
			return err
		}
		ob.say(userID, TextWelcome)
		return nil
	})
}

// OnCommands lists the available commands.
func (s *Service) OnCommands(ctx context.Context, userID int64) error {
	return s.run(ctx, "commands", userID, func(ob *outbox) error {
		ob.say(userID, TextCommands)
		return nil
	})
}

// OnMatchRequest handles "next": cooldown, block guard and quota first, then
// any current pairing ends and the user is matched or queued.
func (s *Service) OnMatchRequest(ctx context.Context, userID int64, p Profile) error {
	return s.run(ctx, "next", userID, func(ob *outbox) error {
		if s.limited(ctx, userID, s.cfg.NextRule) {
			return denied(CodeRateLimited, TextNextCooldown)
		}
		if err := s.store.UpsertUser(ctx, p.user(userID)); err != nil {
			return err
		}
		if err := s.guardBlocked(ctx, userID, TextBlockedFeature); err != nil {
			return err
		}

		d, err := s.quota.Evaluate(ctx, userID, s.now())
		if err != nil {
			return err
		}
		// Committed on the deny path too, so a rolled-over window is kept.
		if err := s.quota.Commit(ctx, userID, d); err != nil {
			return err
		}
		if !d.Allow {
			metrics.QuotaDenials.Inc()
			cfg := s.quota.Config()
			return denied(CodeQuotaExceeded, textQuotaExceeded(cfg.Limit, cfg.Channel))
		}
		if d.Upgraded {
			metrics.PremiumUpgrades.Inc()
			ob.say(userID, TextUpgraded)
		}

		_, err = s.sessions.RequestMatch(ctx, userID, ob)
		return err
	})
}

// OnLeave handles "stop".
func (s *Service) OnLeave(ctx context.Context, userID int64) error {
	return s.run(ctx, "stop", userID, func(ob *outbox) error {
		if err := s.guardBlocked(ctx, userID, TextBlockedFeature); err != nil {
			return err
		}
		res, err := s.sessions.Leave(ctx, userID, ob)
		if err != nil {
			return err
		}
		if res.HadPartner {
			ob.say(userID, TextYouStopped)
		} else {
			ob.say(userID, TextNotInChat)
		}
		return nil
	})
}

// OnDisconnect ends whatever the user was doing when its connection went
// away. The user is not notified.
func (s *Service) OnDisconnect(ctx context.Context, userID int64) error {
	return s.run(ctx, "disconnect", userID, func(ob *outbox) error {
		_, err := s.sessions.Disconnect(ctx, userID, ob)
		return err
	})
}

// OnReport files a report against the user's partner and forwards the
// partner's recent messages to the moderator.
func (s *Service) OnReport(ctx context.Context, userID int64) error {
	return s.run(ctx, "report", userID, func(ob *outbox) error {
		if s.limited(ctx, userID, s.cfg.ReportRule) {
			return denied(CodeRateLimited, TextReportCooldown)
		}
		if err := s.guardBlocked(ctx, userID, TextBlockedFeature); err != nil {
			return err
		}

		batch, err := s.moderator.Report(ctx, userID)
		if errors.Is(err, moderation.ErrNoActiveSession) {
			return denied(CodeNoActiveSession, TextNothingToReport)
		}
		if err != nil {
			return err
		}

		ob.say(userID, TextReportSent)

		r := batch.Report
		mod := s.cfg.ModeratorID
		if len(batch.Messages) == 0 {
			ob.say(mod, textReportEmpty(r.ReporterID, r.ReportedID))
		} else {
			ob.say(mod, textReportHeader(r.ReporterID, r.ReportedID))
			for _, ref := range batch.Messages {
				ob.forward(mod, ref)
			}
			ob.say(mod, textReportFooter(r.ReporterID, r.ReportedID))
		}

		ob.reports = append(ob.reports, ReportEvent{
			ReportID:   r.ID,
			ReporterID: r.ReporterID,
			ReportedID: r.ReportedID,
			Reason:     r.Reason,
			Messages:   len(batch.Messages),
			Ts:         r.CreatedAt.Unix(),
		})
		return nil
	})
}

// OnAdminStats returns aggregate counts and sends them to the moderator.
func (s *Service) OnAdminStats(ctx context.Context, callerID int64) (store.Stats, error) {
	var st store.Stats
	err := s.run(ctx, "stats", callerID, func(ob *outbox) error {
		if !s.IsModerator(callerID) {
			return denied(CodeNotModerator, TextStatsDenied)
		}
		var err error
		st, err = s.store.Stats(ctx)
		if err != nil {
			return err
		}
		metrics.Observe(st)
		ob.say(callerID, textStats(st.Users, st.ActiveChats, st.Reports, st.Queue))
		return nil
	})
	return st, err
}

// OnAdminBlock blocks the user named by arg.
func (s *Service) OnAdminBlock(ctx context.Context, callerID int64, arg string) error {
	return s.run(ctx, "block", callerID, func(ob *outbox) error {
		if !s.IsModerator(callerID) {
			return denied(CodeNotModerator, TextBlockDenied)
		}
		target, err := parseTarget(arg, TextBlockUsage)
		if err != nil {
			return err
		}
		if _, _, err := s.moderator.Block(ctx, target, ob); err != nil {
			return err
		}
		ob.say(callerID, textUserBlocked(target))
		ob.blocks = append(ob.blocks, BlockEvent{UserID: target, Blocked: true, Ts: s.now().Unix()})
		return nil
	})
}

// OnAdminUnblock unblocks the user named by arg.
func (s *Service) OnAdminUnblock(ctx context.Context, callerID int64, arg string) error {
	return s.run(ctx, "unblock", callerID, func(ob *outbox) error {
		if !s.IsModerator(callerID) {
			return denied(CodeNotModerator, TextUnblockDenied)
		}
		target, err := parseTarget(arg, TextUnblockUsage)
		if err != nil {
			return err
		}
		if err := s.moderator.Unblock(ctx, target, ob); err != nil {
			return err
		}
		ob.say(callerID, textUserUnblocked(target))
		ob.blocks = append(ob.blocks, BlockEvent{UserID: target, Blocked: false, Ts: s.now().Unix()})
		return nil
	})
}

// OnIncomingText relays text to the sender's partner and remembers it for
// reports. If the partner cannot be reached the sender is told so.
func (s *Service) OnIncomingText(ctx context.Context, userID int64, text string, ref MessageRef) error {
	return s.run(ctx, "message", userID, func(ob *outbox) error {
		if err := s.guardBlocked(ctx, userID, TextBlockedFeature); err != nil {
			return err
		}
		if verr := validateText(text); verr != nil {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return verr
		}

		partner, ok, err := s.sessions.Partner(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return denied(CodeNoActiveSession, TextNoPartner)
		}

		s.recent.Push(userID, ref)
		ob.relay(userID, partner, text, ref)
		return nil
	})
}

// OnUnsupportedContent rejects anything that is not text.
func (s *Service) OnUnsupportedContent(ctx context.Context, userID int64) error {
	return s.run(ctx, "media", userID, func(*outbox) error {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return userError(CodeInvalidMessage, TextOnlyText)
	})
}

func parseTarget(arg, usage string) (int64, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return 0, userError(CodeMissingTarget, usage)
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, userError(CodeInvalidTarget, TextInvalidUserID)
	}
	return id, nil
}
