package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix is the Redis key prefix for cooldown stamps.
const KeyPrefix = "rl:cooldown:"

// RedisLimiter keeps cooldown stamps in Redis. A stamp is a key that lives
// for exactly the cooldown, so "limited" is simply "the key still exists".
type RedisLimiter struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisLimiter creates a RedisLimiter backed by client.
func NewRedisLimiter(client *redis.Client, log *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, log: log}
}

// CheckAndStamp implements Limiter. SET NX only succeeds when no stamp is
// live, which makes check and stamp a single atomic step. On Redis errors
// the limiter fails open so an outage does not lock every user out.
func (l *RedisLimiter) CheckAndStamp(ctx context.Context, userID int64, action Action, cooldown time.Duration) bool {
	key := KeyPrefix + stampKey(userID, action)

	stamped, err := l.client.SetNX(ctx, key, time.Now().UnixMilli(), cooldown).Result()
	if err != nil {
		l.log.Warn("redis SETNX failed, failing open", zap.String("key", key), zap.Error(err))
		return false
	}
	return !stamped
}
