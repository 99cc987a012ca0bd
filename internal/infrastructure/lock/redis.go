package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/logger"
)

// release only deletes the key if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock shared by every replica pointing at the same redis.
// TTL bounds how long a crashed holder can block a loan.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

type RedisOption func(*Redis)

func WithTTL(d time.Duration) RedisOption { return func(r *Redis) { r.ttl = d } }
func WithRetryInterval(d time.Duration) RedisOption { return func(r *Redis) { r.retry = d } }

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "lock:", ttl: 30 * time.Second, retry: 25 * time.Millisecond}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	t := time.NewTicker(r.retry)
	defer t.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", loan.ErrConcurrencyTimeout, key, ctx.Err())
		case <-t.C:
		}
	}

	return func() {
		// the caller's ctx may already be done; release on a fresh one
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{k}, token).Err(); err != nil {
			logger.Get().Errorw("lock release failed", "key", k, "error", err)
		}
	}, nil
}
