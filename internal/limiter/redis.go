package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxFailures = 10
	defaultWindow      = 15 * time.Minute
)

// RedisLimiter implements Limiter as a fixed failure window in Redis.
// The counter key is derived from the email and a hash of the client IP, so
// raw addresses are never stored.
type RedisLimiter struct {
	client      *redis.Client
	maxFailures int64
	window      time.Duration
}

// NewRedisLimiter returns a limiter using the given client. Zero maxFailures
// or window select the defaults (10 failures per 15 minutes).
func NewRedisLimiter(client *redis.Client, maxFailures int64, window time.Duration) *RedisLimiter {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &RedisLimiter{client: client, maxFailures: maxFailures, window: window}
}

func key(email, ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return fmt.Sprintf("login_fail:%s:%s", email, hex.EncodeToString(sum[:8]))
}

// Allow reports whether the (email, ip) pair is under the failure threshold.
func (l *RedisLimiter) Allow(ctx context.Context, email, ip string) (bool, error) {
	n, err := l.client.Get(ctx, key(email, ip)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < l.maxFailures, nil
}

// Failure increments the failure counter and starts the window on first failure.
func (l *RedisLimiter) Failure(ctx context.Context, email, ip string) error {
	k := key(email, ip)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return l.client.Expire(ctx, k, l.window).Err()
	}
	return nil
}

// Success clears the failure counter.
func (l *RedisLimiter) Success(ctx context.Context, email, ip string) error {
	return l.client.Del(ctx, key(email, ip)).Err()
}
