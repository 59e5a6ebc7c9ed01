package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/planmint/ports"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// unlockScript deletes the key only while it still holds our token
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker serializes holders of the same key across replicas sharing one Redis
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger logrus.FieldLogger
}

// NewRedisLocker creates a locker whose locks expire after ttl if never released
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) ports.Locker {
	return &RedisLocker{
		client: client,
		prefix: "planmint:lock:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Lock polls SET NX until it wins or ctx ends
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, r.client, []string{k}, token).Err(); err != nil {
				r.logger.WithError(err).WithField("key", key).Warn("failed to release lock")
			}
		})
	}, nil
}
