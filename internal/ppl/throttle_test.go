package ppl

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/internal/cache/memcache"
	"github.com/stretchr/testify/require"
)

func TestThrottle_SpacesBackToBackCalls(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	th := NewThrottle(memcache.New())
	th.now = func() time.Time { return now }
	th.sleep = func(d time.Duration) { slept = append(slept, d) }

	ctx := context.Background()

	// Первый вызов: метки нет, ждать нечего.
	require.NoError(t, th.Wait(ctx))
	require.Empty(t, slept)

	// Второй вызов в ту же наносекунду — должен проспать весь интервал.
	require.NoError(t, th.Wait(ctx))
	require.Len(t, slept, 1)
	require.Equal(t, defaultMinInterval, slept[0])

	// После паузы больше интервала сон не нужен.
	now = now.Add(100 * time.Millisecond)
	require.NoError(t, th.Wait(ctx))
	require.Len(t, slept, 1)
}

func TestThrottle_PartialElapsed(t *testing.T) {
	var slept []time.Duration
	now := time.Unix(1000, 0)

	th := NewThrottle(memcache.New())
	th.now = func() time.Time { return now }
	th.sleep = func(d time.Duration) { slept = append(slept, d) }

	ctx := context.Background()
	require.NoError(t, th.Wait(ctx))

	now = now.Add(15 * time.Millisecond)
	require.NoError(t, th.Wait(ctx))
	require.Len(t, slept, 1)
	require.Equal(t, defaultMinInterval-15*time.Millisecond, slept[0])
}

func TestThrottle_CancelledContext(t *testing.T) {
	th := NewThrottle(memcache.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, th.Wait(ctx))
}
