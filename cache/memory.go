package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds the in-memory backend.
const DefaultMaxEntries = 4096

// entry carries the serialized value with its own timestamp and TTL, so
// per-call TTLs shorter than the LRU's lifetime are honored.
type entry struct {
	data      []byte
	timestamp time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.timestamp) > e.ttl
}

// Memory is the reference in-process Backend, built on an expirable LRU.
// It is safe for concurrent use.
type Memory struct {
	lru *expirable.LRU[string, entry]
}

// NewMemory creates an in-memory backend holding at most maxEntries values.
// maxLifetime is the upper bound the LRU enforces regardless of per-entry
// TTLs; zero disables the LRU-level expiry.
func NewMemory(maxEntries int, maxLifetime time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](maxEntries, nil, maxLifetime),
	}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(time.Now()) {
		m.lru.Remove(key)
		return nil, ErrMiss
	}
	return e.data, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.lru.Add(key, entry{
		data:      value,
		timestamp: time.Now(),
		ttl:       ttl,
	})
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}
