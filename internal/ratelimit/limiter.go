// Package ratelimit guards per-user, per-action cooldowns. A call that
// arrives sooner than the cooldown after the last allowed call for the same
// (user, action) is limited and does not move the stamp.
//
// MemoryLimiter keeps stamps for the lifetime of the process. RedisLimiter
// keeps them in Redis so they survive a restart.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Action names a guarded command.
type Action string

const (
	ActionNext   Action = "next"
	ActionReport Action = "report"
)

// Rule pairs an action with its cooldown.
type Rule struct {
	Action   Action
	Cooldown time.Duration
}

// Default cooldowns.
var (
	// RuleNext allows one match request every 5 seconds per user.
	RuleNext = Rule{Action: ActionNext, Cooldown: 5 * time.Second}

	// RuleReport allows one report every 10 seconds per user.
	RuleReport = Rule{Action: ActionReport, Cooldown: 10 * time.Second}
)

// Limiter is implemented by MemoryLimiter and RedisLimiter.
type Limiter interface {
	// CheckAndStamp returns true when the call is limited and must be
	// rejected. A call that is not limited records now as the new stamp.
	CheckAndStamp(ctx context.Context, userID int64, action Action, cooldown time.Duration) bool
}

// Limited is a convenience wrapper that applies a Rule.
func Limited(ctx context.Context, l Limiter, userID int64, rule Rule) bool {
	return l.CheckAndStamp(ctx, userID, rule.Action, rule.Cooldown)
}

func stampKey(userID int64, action Action) string {
	return fmt.Sprintf("%d:%s", userID, action)
}
