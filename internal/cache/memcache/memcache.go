// Package memcache is the in-process fallback for the Redis-backed shared
// state. Semantics match rediscache from the caller's perspective; state
// is simply not shared across instances.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type MemCache struct {
	mu    sync.Mutex
	items map[string]entry
}

func New() *MemCache {
	return &MemCache{items: map[string]entry{}}
}

func (m *MemCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

type MemLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLock() *MemLock {
	return &MemLock{held: map[string]time.Time{}}
}

func (l *MemLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if until, ok := l.held[key]; ok && time.Now().Before(until) {
		l.mu.Unlock()
		return cache.ErrLockBusy
	}
	l.held[key] = time.Now().Add(ttl)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
