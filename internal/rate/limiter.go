// Package rate implementa rate limiting de ventana fija (redis o memoria).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func result(hits, max int64, ttl time.Duration) Result {
	res := Result{Allowed: hits <= max, CurrentHits: hits, WindowTTL: ttl}
	if rem := max - hits; rem > 0 {
		res.Remaining = rem
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

func windowKey(prefix, key string, now time.Time, window time.Duration) (string, time.Duration) {
	start := now.Truncate(window)
	k := fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
	return k, start.Add(window).Sub(now)
}

// RedisLimiter: fixed window compartida entre réplicas (INCR + EXPIRE).
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k, left := windowKey(l.prefix, key, time.Now().UTC(), l.window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// la expiración se fija en el primer hit; los siguientes no la extienden
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	return result(incr.Val(), l.max, left), nil
}
