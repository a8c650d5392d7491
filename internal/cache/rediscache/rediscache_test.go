package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLock_WithLock(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLock(mr.Addr())

	ctx := context.Background()
	ran := false
	err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
		ran = true

		// Пока fn работает, второй захват того же ключа должен отбиться.
		err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error { return nil })
		require.ErrorIs(t, err, cache.ErrLockBusy)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// После выхода ключ освобождён.
	require.NoError(t, l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error { return nil }))
}

func TestLock_ReleasedOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLock(mr.Addr())

	ctx := context.Background()
	err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	require.Error(t, err)

	require.NoError(t, l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error { return nil }))
}
