// README: Per-subscription generation lease backed by Redis.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

const leaseKeyPrefix = "subscription:%s:generating"

// Locker serialises generation runs per subscription across processes.
type Locker interface {
	// Acquire returns a release func, or ErrGenerationInProgress when the
	// lease is already held.
	Acquire(ctx context.Context, id types.ID) (func(), error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{redis: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, id types.ID) (func(), error) {
	key := leaseKey(id)
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGenerationInProgress
	}
	return func() {
		// The caller's ctx may already be cancelled; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.redis, []string{key}, token).Err()
	}, nil
}

func leaseKey(id types.ID) string {
	return fmt.Sprintf(leaseKeyPrefix, string(id))
}

// noopLocker is used when no Redis client is configured (single process).
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, types.ID) (func(), error) {
	return func() {}, nil
}
