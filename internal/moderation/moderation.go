// Package moderation records reports and manages the block list. Blocked
// users are barred from every interactive action until unblocked.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/matching"
	"github.com/whisper/pairchat/internal/session"
	"github.com/whisper/pairchat/internal/store"
)

// DefaultReason is stored when the reporter gives none.
const DefaultReason = "No reason provided"

// ErrNoActiveSession is returned by Report when the reporter has no partner.
var ErrNoActiveSession = errors.New("moderation: no active session")

// Notifier extends session.Notifier with block state changes.
type Notifier interface {
	session.Notifier
	Blocked(userID int64)
	Unblocked(userID int64)
}

// ReportBatch is what the moderator receives for one report.
type ReportBatch struct {
	Report store.Report
	// Messages are the reported user's latest messages, oldest first.
	Messages []MessageRef
}

// Moderator implements report, block and unblock. Like session.Manager it
// expects its callers to hold the coordinator lock.
type Moderator struct {
	reports  store.ReportStore
	blocks   store.BlockStore
	sessions *session.Manager
	queue    *matching.Queue
	recent   *RecentMessages
	log      *zap.Logger
	now      func() time.Time
}

// NewModerator creates a Moderator.
func NewModerator(
	reports store.ReportStore,
	blocks store.BlockStore,
	sessions *session.Manager,
	queue *matching.Queue,
	recent *RecentMessages,
	log *zap.Logger,
) *Moderator {
	return &Moderator{
		reports:  reports,
		blocks:   blocks,
		sessions: sessions,
		queue:    queue,
		recent:   recent,
		log:      log,
		now:      time.Now,
	}
}

// Recent returns the message window store.
func (m *Moderator) Recent() *RecentMessages {
	return m.recent
}

// IsBlocked reports whether userID is on the block list.
func (m *Moderator) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	blocked, err := m.blocks.IsBlocked(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("moderation: is blocked %d: %w", userID, err)
	}
	return blocked, nil
}

// Block ends userID's pairing, takes it out of the queue, adds it to the
// block list and tells it. The returned partner, if any, was notified.
// The block row is written last: a failure before it leaves the user
// unblocked, never blocked while still paired or queued.
func (m *Moderator) Block(ctx context.Context, userID int64, n Notifier) (int64, bool, error) {
	partner, hadPartner, err := m.sessions.End(ctx, userID, session.EndBlocked, n)
	if err != nil {
		return 0, false, err
	}
	if err := m.queue.Remove(ctx, userID); err != nil {
		return partner, hadPartner, err
	}
	if err := m.blocks.Block(ctx, userID); err != nil {
		return partner, hadPartner, fmt.Errorf("moderation: block %d: %w", userID, err)
	}

	n.Blocked(userID)
	m.log.Info("user blocked", zap.Int64("user_id", userID), zap.Bool("had_partner", hadPartner))
	return partner, hadPartner, nil
}

// Unblock removes userID from the block list and tells it.
func (m *Moderator) Unblock(ctx context.Context, userID int64, n Notifier) error {
	if err := m.blocks.Unblock(ctx, userID); err != nil {
		return fmt.Errorf("moderation: unblock %d: %w", userID, err)
	}
	n.Unblocked(userID)
	m.log.Info("user unblocked", zap.Int64("user_id", userID))
	return nil
}

// Report files a report by reporterID against its current partner and
// returns the batch to forward. The session is left running.
func (m *Moderator) Report(ctx context.Context, reporterID int64) (ReportBatch, error) {
	partner, ok, err := m.sessions.Partner(ctx, reporterID)
	if err != nil {
		return ReportBatch{}, err
	}
	if !ok {
		return ReportBatch{}, ErrNoActiveSession
	}

	r := store.Report{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		ReportedID: partner,
		Reason:     DefaultReason,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.reports.AddReport(ctx, r); err != nil {
		return ReportBatch{}, fmt.Errorf("moderation: add report: %w", err)
	}

	batch := ReportBatch{Report: r, Messages: m.recent.Window(partner)}
	m.log.Info("report filed",
		zap.Int64("reporter_id", reporterID),
		zap.Int64("reported_id", partner),
		zap.Int("messages", len(batch.Messages)),
	)
	return batch, nil
}
