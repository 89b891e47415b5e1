package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    []byte
	storedAt time.Time
	expires  time.Time
}

// Memory is an in-process cache. Expired entries are dropped on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	nowFunc func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry), nowFunc: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	now := m.nowFunc()
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if !now.Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !now.Before(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return Entry{Value: val, StoredAt: e.storedAt}, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.nowFunc()
	val := make([]byte, len(value))
	copy(val, value)
	m.mu.Lock()
	m.entries[key] = memEntry{value: val, storedAt: now, expires: expiry(now, ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
