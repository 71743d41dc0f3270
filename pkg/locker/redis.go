package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it is still owned by the
// caller, so an expired lock taken over by another process is never
// released by the original holder.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLocker implements Locker with SET NX PX, for deployments where
// multiple service instances may run propagations concurrently.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker returns a locker backed by the given client. ttl
// bounds how long a crashed holder can keep a lock; it should exceed
// the per-target propagation timeout.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire polls SET NX until the lock is granted or ctx is done.
func (r *RedisLocker) Acquire(ctx context.Context, tenantID uint, category string) (func(), error) {
	key := lockKey(tenantID, category)
	token := uuid.New().String()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire for tenant %d (%s): %w", tenantID, category, err)
		}
		if ok {
			return func() {
				// Release uses a background context: the caller's ctx
				// may already be done when the deferred release runs.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("lock wait for tenant %d (%s): %w", tenantID, category, ctx.Err())
		}
	}
}
