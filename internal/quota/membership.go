package quota

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisMembership answers subscription checks from a Redis set per channel
// ("channel:<name>:members"), written by whatever imports the roster.
type RedisMembership struct {
	client *redis.Client
}

// NewRedisMembership creates a RedisMembership.
func NewRedisMembership(client *redis.Client) *RedisMembership {
	return &RedisMembership{client: client}
}

func membersKey(channel string) string {
	return "channel:" + channel + ":members"
}

// IsSubscribed implements SubscriptionChecker.
func (m *RedisMembership) IsSubscribed(ctx context.Context, userID int64, channel string) (bool, error) {
	ok, err := m.client.SIsMember(ctx, membersKey(channel), strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("quota: sismember: %w", err)
	}
	return ok, nil
}
