package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrLockBusy means another holder currently owns the lock key. Callers
// treat it as "this tick is already being processed elsewhere".
var ErrLockBusy = errors.New("lock busy")

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}
