package cache

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter is a process-local CacheProvider used when Redis is disabled.
type MemoryAdapter struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryAdapter creates an empty in-process cache
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

var _ providers.CacheProvider = (*MemoryAdapter)(nil)

// Get retrieves a value; expired entries count as misses.
func (a *MemoryAdapter) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	e, ok := a.entries[key]
	a.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && !a.now().Before(e.expiresAt)) {
		return nil, providers.ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value.
func (a *MemoryAdapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = a.now().Add(ttl)
	}
	a.mu.Lock()
	a.entries[key] = e
	a.mu.Unlock()
	return nil
}

// Delete removes keys.
func (a *MemoryAdapter) Delete(_ context.Context, keys ...string) error {
	a.mu.Lock()
	for _, k := range keys {
		delete(a.entries, k)
	}
	a.mu.Unlock()
	return nil
}
