// Package cache owns the shared redis connection used for idempotency
// records, distributed loan locks and the event channel.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agrifin-loan-engine/internal/logger"
)

const pingTimeout = 5 * time.Second

type Option func(*redis.Options)

func WithPoolSize(n int) Option { return func(o *redis.Options) { o.PoolSize = n } }

func WithTimeouts(dial, rw time.Duration) Option {
	return func(o *redis.Options) {
		o.DialTimeout = dial
		o.ReadTimeout = rw
		o.WriteTimeout = rw
	}
}

// OpenRedis connects and pings. A client that cannot ping is closed.
func OpenRedis(addr string, db int, opts ...Option) (*redis.Client, error) {
	o := &redis.Options{Addr: addr, DB: db}
	for _, fn := range opts {
		fn(o)
	}
	r := redis.NewClient(o)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	logger.Get().Infow("redis: connected", "addr", addr, "db", db)
	return r, nil
}

// Pinger adapts a client to the health check signature.
func Pinger(r redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error { return r.Ping(ctx).Err() }
}
