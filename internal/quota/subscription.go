package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// SubscriptionChecker reports whether a user belongs to a channel.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64, channel string) (bool, error)
}

// CheckerFunc adapts an ordinary function to SubscriptionChecker.
type CheckerFunc func(ctx context.Context, userID int64, channel string) (bool, error)

// IsSubscribed calls f.
func (f CheckerFunc) IsSubscribed(ctx context.Context, userID int64, channel string) (bool, error) {
	return f(ctx, userID, channel)
}

// NeverSubscribed is used when no membership backend is configured.
var NeverSubscribed = CheckerFunc(func(context.Context, int64, string) (bool, error) {
	return false, nil
})

// ErrCheckUnavailable is returned by GuardedChecker when the breaker is open.
var ErrCheckUnavailable = errors.New("quota: subscription check unavailable")

// GuardConfig tunes GuardedChecker.
type GuardConfig struct {
	Timeout time.Duration
	// Breaker opens after this many consecutive failures.
	MaxFailures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// DefaultGuardConfig returns a 500ms timeout and a breaker that opens after
// five consecutive failures for 30s. The check runs while every other
// command waits, so the timeout stays short.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:     500 * time.Millisecond,
		MaxFailures: 5,
		OpenFor:     30 * time.Second,
	}
}

// GuardedChecker bounds every call to the wrapped checker with a timeout and
// stops calling it while it keeps failing.
type GuardedChecker struct {
	next    SubscriptionChecker
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

// NewGuardedChecker wraps next.
func NewGuardedChecker(next SubscriptionChecker, cfg GuardConfig, log *zap.Logger) *GuardedChecker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "subscription-check",
		MaxRequests: 1,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &GuardedChecker{next: next, timeout: cfg.Timeout, cb: cb}
}

// IsSubscribed implements SubscriptionChecker. Any failure yields false
// together with the cause.
func (g *GuardedChecker) IsSubscribed(ctx context.Context, userID int64, channel string) (bool, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.next.IsSubscribed(ctx, userID, channel)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, ErrCheckUnavailable
		}
		return false, fmt.Errorf("quota: check %d in %s: %w", userID, channel, err)
	}
	return res.(bool), nil
}

// State exposes the breaker state for health reporting.
func (g *GuardedChecker) State() string {
	return g.cb.State().String()
}
