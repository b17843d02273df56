package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceRegistry tracks which users currently hold a live chat connection.
// The chatserver marks users online/offline as their sockets register and
// unregister with the hub; the REST API reads it for online badges.
type PresenceRegistry interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	// Refresh extends the TTL of a connected user's presence key without
	// touching the connection count. The hub calls it on a heartbeat
	// interval for every connected user.
	Refresh(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

const presenceKeyPrefix = "presence:uid:"

// presenceTTL bounds how long a crashed chatserver can leave a user marked
// online. Live connections keep the key alive via Refresh heartbeats.
const presenceTTL = 5 * time.Minute

// redisPresenceRegistry implements PresenceRegistry on redis keys with a TTL.
type redisPresenceRegistry struct {
	client *redis.Client
}

// NewRedisPresenceRegistry creates a redis-backed PresenceRegistry.
func NewRedisPresenceRegistry(client *redis.Client) PresenceRegistry {
	return &redisPresenceRegistry{client: client}
}

func (r *redisPresenceRegistry) MarkOnline(ctx context.Context, userID string) error {
	key := presenceKeyPrefix + userID
	// Connection counter rather than a flag: a user with two open tabs
	// stays online until the last one disconnects.
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("mark user %s online: %w", userID, err)
	}
	if err := r.client.Expire(ctx, key, presenceTTL).Err(); err != nil {
		return fmt.Errorf("refresh presence ttl for user %s: %w", userID, err)
	}
	return nil
}

func (r *redisPresenceRegistry) MarkOffline(ctx context.Context, userID string) error {
	key := presenceKeyPrefix + userID
	remaining, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("mark user %s offline: %w", userID, err)
	}
	if remaining <= 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear presence for user %s: %w", userID, err)
		}
	}
	return nil
}

func (r *redisPresenceRegistry) Refresh(ctx context.Context, userID string) error {
	// Expire only: an Incr here would corrupt the connection counter.
	// Expire on a missing key is a no-op, which is fine; the next
	// MarkOnline recreates it.
	if err := r.client.Expire(ctx, presenceKeyPrefix+userID, presenceTTL).Err(); err != nil {
		return fmt.Errorf("refresh presence ttl for user %s: %w", userID, err)
	}
	return nil
}

func (r *redisPresenceRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	_, err := r.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read presence for user %s: %w", userID, err)
	}
	return true, nil
}
