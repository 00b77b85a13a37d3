// Package session owns the pairing relation between users. A user has at
// most one partner, and a paired user is never waiting in the queue.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/matching"
	"github.com/whisper/pairchat/internal/store"
)

// EndReason says why a pairing ended, from the point of view of the partner
// who stayed.
type EndReason int

const (
	// EndNext means the partner asked for someone new.
	EndNext EndReason = iota
	// EndStop means the partner stopped chatting.
	EndStop
	// EndBlocked means the partner was blocked by the moderator.
	EndBlocked
	// EndDisconnect means the partner's connection went away.
	EndDisconnect
)

func (r EndReason) String() string {
	switch r {
	case EndNext:
		return "next"
	case EndStop:
		return "stop"
	case EndBlocked:
		return "blocked"
	case EndDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Notifier receives the user-visible consequences of pairing changes.
// Implementations must not fail; delivery errors are theirs to log.
type Notifier interface {
	// SessionEnded tells userID that their partner is gone.
	SessionEnded(userID int64, reason EndReason)
	// Paired tells userID they are now talking to partnerID.
	Paired(userID, partnerID int64)
	// Queued tells userID they are waiting for a partner.
	Queued(userID int64)
}

// Outcome describes what RequestMatch did.
type Outcome struct {
	// PreviousPartner is set when an existing pairing was ended first.
	PreviousPartner int64
	LeftPrevious    bool

	// Partner is set when a new pairing was created.
	Partner int64
	Paired  bool
}

// LeaveResult describes what Leave or Disconnect did.
type LeaveResult struct {
	Partner    int64
	HadPartner bool
}

// Manager creates and destroys pairings. It performs no locking; every call
// must run under the coordinator lock so that multi-row steps are atomic.
type Manager struct {
	pairs store.PairingStore
	queue *matching.Queue
	log   *zap.Logger
}

// NewManager creates a Manager.
func NewManager(pairs store.PairingStore, queue *matching.Queue, log *zap.Logger) *Manager {
	return &Manager{pairs: pairs, queue: queue, log: log}
}

// Partner returns the current partner of userID.
func (m *Manager) Partner(ctx context.Context, userID int64) (int64, bool, error) {
	p, ok, err := m.pairs.Partner(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("session: partner of %d: %w", userID, err)
	}
	return p, ok, nil
}

// LeaveCurrentPairing deletes the pairing of userID, if any, and returns the
// partner that was left behind.
func (m *Manager) LeaveCurrentPairing(ctx context.Context, userID int64) (int64, bool, error) {
	partner, ok, err := m.Partner(ctx, userID)
	if err != nil || !ok {
		return 0, false, err
	}
	if err := m.pairs.DeletePairing(ctx, userID, partner); err != nil {
		return 0, false, fmt.Errorf("session: delete pairing %d-%d: %w", userID, partner, err)
	}
	m.log.Debug("pairing ended", zap.Int64("user_id", userID), zap.Int64("partner_id", partner))
	return partner, true, nil
}

// End leaves the current pairing and tells the partner why.
func (m *Manager) End(ctx context.Context, userID int64, reason EndReason, n Notifier) (int64, bool, error) {
	partner, ok, err := m.LeaveCurrentPairing(ctx, userID)
	if err != nil || !ok {
		return 0, false, err
	}
	n.SessionEnded(partner, reason)
	return partner, true, nil
}

// RequestMatch ends any current pairing of userID and then pairs it with
// the longest-waiting other user, or queues it when nobody is waiting.
// A user that is already queued keeps its position.
func (m *Manager) RequestMatch(ctx context.Context, userID int64, n Notifier) (Outcome, error) {
	var out Outcome

	prev, left, err := m.End(ctx, userID, EndNext, n)
	if err != nil {
		return out, err
	}
	out.PreviousPartner, out.LeftPrevious = prev, left

	candidate, found, err := m.queue.FirstExcluding(ctx, userID)
	if err != nil {
		return out, err
	}
	if !found {
		if err := m.queue.Enqueue(ctx, userID); err != nil {
			return out, err
		}
		n.Queued(userID)
		return out, nil
	}

	// CreatePairing takes both users out of the queue in the same step.
	if err := m.pairs.CreatePairing(ctx, userID, candidate); err != nil {
		if errors.Is(err, store.ErrAlreadyPaired) {
			m.log.Error("queued user already paired",
				zap.Int64("user_id", userID),
				zap.Int64("candidate_id", candidate),
			)
		}
		return out, fmt.Errorf("session: pair %d-%d: %w", userID, candidate, err)
	}

	out.Partner, out.Paired = candidate, true
	n.Paired(candidate, userID)
	n.Paired(userID, candidate)
	m.log.Info("users paired", zap.Int64("user_id", userID), zap.Int64("partner_id", candidate))
	return out, nil
}

// Leave ends the pairing of userID and notifies the partner, or removes
// userID from the queue when it has no partner.
func (m *Manager) Leave(ctx context.Context, userID int64, n Notifier) (LeaveResult, error) {
	return m.leave(ctx, userID, EndStop, n)
}

// Disconnect is Leave for a user whose connection went away.
func (m *Manager) Disconnect(ctx context.Context, userID int64, n Notifier) (LeaveResult, error) {
	return m.leave(ctx, userID, EndDisconnect, n)
}

func (m *Manager) leave(ctx context.Context, userID int64, reason EndReason, n Notifier) (LeaveResult, error) {
	partner, ok, err := m.End(ctx, userID, reason, n)
	if err != nil {
		return LeaveResult{}, err
	}
	if ok {
		return LeaveResult{Partner: partner, HadPartner: true}, nil
	}
	if err := m.queue.Remove(ctx, userID); err != nil {
		return LeaveResult{}, err
	}
	return LeaveResult{}, nil
}
