// Package quota limits how many match attempts a user may make per window.
// Users who belong to the configured channel are upgraded to premium, which
// lifts the limit permanently.
package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/store"
)

// Config holds quota tuning parameters.
type Config struct {
	// Limit is the number of match attempts allowed per window.
	Limit int
	// Window is the length of a counting window.
	Window time.Duration
	// Channel is the channel whose members are granted premium.
	Channel string
}

// DefaultConfig returns five attempts per hour.
func DefaultConfig() Config {
	return Config{
		Limit:   5,
		Window:  time.Hour,
		Channel: "@nedo_dev",
	}
}

// Decision is the outcome of one Evaluate call. Used, ResetAt and Premium
// are the record to persist with Commit.
type Decision struct {
	Allow   bool
	Used    int
	ResetAt int64
	Premium bool
	// Upgraded is set when this call granted premium.
	Upgraded bool
}

// Record returns the persisted form of the decision.
func (d Decision) Record() store.QuotaRecord {
	return store.QuotaRecord{UsedCount: d.Used, ResetAt: d.ResetAt, Premium: d.Premium}
}

// Tracker evaluates and persists quota records. It holds no state of its
// own; callers serialize access per user.
type Tracker struct {
	store   store.QuotaStore
	checker SubscriptionChecker
	cfg     Config
	log     *zap.Logger
}

// NewTracker creates a Tracker.
func NewTracker(s store.QuotaStore, checker SubscriptionChecker, cfg Config, log *zap.Logger) *Tracker {
	return &Tracker{store: s, checker: checker, cfg: cfg, log: log}
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Evaluate decides whether userID may make a match attempt at now. It does
// not write anything; the caller must Commit the returned decision exactly
// once, including when Allow is false, so a rolled-over window is kept.
func (t *Tracker) Evaluate(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	rec, err := t.store.Quota(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: load %d: %w", userID, err)
	}

	d := Decision{Used: rec.UsedCount, ResetAt: rec.ResetAt, Premium: rec.Premium}

	nowSec := now.Unix()
	if nowSec > d.ResetAt {
		d.Used = 0
		d.ResetAt = nowSec + int64(t.cfg.Window/time.Second)
	}

	if d.Premium {
		d.Allow = true
		return d, nil
	}

	if d.Used >= t.cfg.Limit {
		if t.subscribed(ctx, userID) {
			d.Premium = true
			d.Upgraded = true
			d.Allow = true
		}
		return d, nil
	}

	d.Used++
	d.Allow = true
	return d, nil
}

// Commit persists the record carried by d.
func (t *Tracker) Commit(ctx context.Context, userID int64, d Decision) error {
	if err := t.store.SaveQuota(ctx, userID, d.Record()); err != nil {
		return fmt.Errorf("quota: save %d: %w", userID, err)
	}
	return nil
}

// Consume runs Evaluate followed by Commit.
func (t *Tracker) Consume(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	d, err := t.Evaluate(ctx, userID, now)
	if err != nil {
		return Decision{}, err
	}
	if err := t.Commit(ctx, userID, d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// subscribed treats every checker error as "not subscribed".
func (t *Tracker) subscribed(ctx context.Context, userID int64) bool {
	if t.checker == nil {
		return false
	}
	ok, err := t.checker.IsSubscribed(ctx, userID, t.cfg.Channel)
	if err != nil {
		t.log.Warn("subscription check failed",
			zap.Int64("user_id", userID),
			zap.String("channel", t.cfg.Channel),
			zap.Error(err),
		)
		return false
	}
	return ok
}
