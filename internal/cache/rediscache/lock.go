package rediscache

import (
	"context"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// release делает DEL только если значение ключа всё ещё наше — иначе
// после истечения TTL можно снять чужой лок.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

type Lock struct {
	c *redis.Client
}

func NewLock(addr string) *Lock {
	return &Lock{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// WithLock runs fn while holding key. If another instance holds it,
// returns cache.ErrLockBusy without waiting.
func (l *Lock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	owner := uuid.NewString()

	ok, err := l.c.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "redis lock acquire")
	}
	if !ok {
		return cache.ErrLockBusy
	}
	defer func() {
		// Best effort: если release не прошёл, ключ умрёт по TTL.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.c, []string{key}, owner).Err()
	}()

	return fn(ctx)
}
