package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGate implements Gate on Redis so limits survive restarts and are
// shared across replicas. Cooldown state is a key with TTL equal to the
// remaining cooldown; throttling is a counter keyed per window span.
type RedisGate struct {
	opts   Opts
	client *redis.Client
}

// NewRedisGate connects to Redis and verifies the connection.
func NewRedisGate(ctx context.Context, addr string, opts ...Option) (*RedisGate, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	slog.Info("gate.NewRedisGate: connected", "addr", addr)
	return &RedisGate{opts: buildOpts(opts), client: client}, nil
}

func cooldownKey(chatID int64) string {
	return fmt.Sprintf("intake:cooldown:%d", chatID)
}

func throttleKey(chatID int64, span time.Duration) string {
	bucket := time.Now().UnixNano() / int64(span)
	return fmt.Sprintf("intake:throttle:%d:%d", chatID, bucket)
}

func (g *RedisGate) MayStart(ctx context.Context, chatID int64) (Decision, error) {
	ttl, err := g.client.TTL(ctx, cooldownKey(chatID)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check cooldown for chat %d: %w", chatID, err)
	}
	// TTL < 0 means the key is missing or has no expiry; either way the
	// cooldown is not active.
	if ttl <= 0 {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: ttl}, nil
}

func (g *RedisGate) Throttle(ctx context.Context, chatID int64) (bool, error) {
	key := throttleKey(chatID, g.opts.ThrottleSpan)
	pipe := g.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.opts.ThrottleSpan)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update throttle for chat %d: %w", chatID, err)
	}
	return count.Val() <= int64(g.opts.ThrottleLimit), nil
}

func (g *RedisGate) RecordSubmission(ctx context.Context, chatID int64, at time.Time) error {
	expiry := g.opts.Cooldown - time.Since(at)
	if expiry <= 0 {
		return nil
	}
	if err := g.client.Set(ctx, cooldownKey(chatID), at.Format(time.RFC3339), expiry).Err(); err != nil {
		return fmt.Errorf("failed to record submission for chat %d: %w", chatID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (g *RedisGate) Close() error {
	return g.client.Close()
}
