package ppl

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
)

const (
	throttleKey        = "ppl:last-request"
	defaultMinInterval = 40 * time.Millisecond
)

// Throttle enforces minimum spacing between outbound carrier calls. When
// backed by Redis the spacing is fleet-wide; with the in-process fallback
// it is per instance. Кооперативный лимитер: гарантирует только паузу
// между вызовами, которые через него проходят.
type Throttle struct {
	cache    cache.BytesCache
	interval time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewThrottle(c cache.BytesCache) *Throttle {
	return &Throttle{
		cache:    c,
		interval: defaultMinInterval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks until at least the minimum interval has elapsed since the
// last recorded request, then records a new mark. Cache failures degrade
// to "no wait" rather than blocking carrier traffic.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, ok, err := t.cache.Get(ctx, throttleKey)
	if err != nil {
		slog.Warn("throttle mark read failed", "error", err.Error())
	}
	if err == nil && ok {
		if last, perr := strconv.ParseInt(string(b), 10, 64); perr == nil {
			elapsed := t.now().Sub(time.Unix(0, last))
			if elapsed >= 0 && elapsed < t.interval {
				t.sleep(t.interval - elapsed)
			}
		}
	}

	mark := strconv.FormatInt(t.now().UnixNano(), 10)
	if err := t.cache.Set(ctx, throttleKey, []byte(mark), time.Second); err != nil {
		slog.Warn("throttle mark write failed", "error", err.Error())
	}
	return nil
}
