package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLimiter stores last-allowed stamps in a map owned by the limiter.
// All access goes through its mutex, so it is safe for concurrent use.
type MemoryLimiter struct {
	mu     sync.Mutex
	stamps map[string]time.Time
	now    func() time.Time
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		stamps: make(map[string]time.Time),
		now:    time.Now,
	}
}

// CheckAndStamp implements Limiter.
func (l *MemoryLimiter) CheckAndStamp(_ context.Context, userID int64, action Action, cooldown time.Duration) bool {
	key := stampKey(userID, action)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.stamps[key]; ok && now.Sub(last) < cooldown {
		return true
	}
	l.stamps[key] = now
	return false
}

// Prune drops stamps older than maxAge and returns how many were removed.
// maxAge should exceed the longest cooldown in use.
func (l *MemoryLimiter) Prune(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, last := range l.stamps {
		if now.Sub(last) > maxAge {
			delete(l.stamps, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked stamps.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stamps)
}

// StartCleanup prunes stale stamps every interval until ctx is cancelled.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("ratelimit cleanup stopped")
			return
		case <-ticker.C:
			if n := l.Prune(maxAge); n > 0 {
				log.Debug("ratelimit cleanup", zap.Int("removed", n))
			}
		}
	}
}
