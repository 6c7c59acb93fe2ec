package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultLease        = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// Deletes the key only when it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a lease-based lock shared by every replica using the same
// Redis. The lease must outlive the slowest critical section.
type RedisLocker struct {
	client       redisClient
	timeout      time.Duration
	lease        time.Duration
	pollInterval time.Duration
	logger       logrus.FieldLogger
}

func NewRedisLocker(client redisClient, timeout, lease time.Duration, logger logrus.FieldLogger) *RedisLocker {
	if lease <= 0 {
		lease = defaultLease
	}
	return &RedisLocker{
		client:       client,
		timeout:      normalizeTimeout(timeout),
		lease:        lease,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
		l.logger.WithError(err).WithField("lock_key", key).Warn("Failed to release lock, lease will expire")
	}
}
