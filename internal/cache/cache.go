package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const exportKeyPrefix = "orders_data_"

// ExportKey is the one key under which a user's order export is cached;
// reads, writes and invalidation all go through it.
func ExportKey(userID int64) string {
	return exportKeyPrefix + strconv.FormatInt(userID, 10)
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is the in-process backend. The LRU bounds size and evicts after
// maxTTL; each entry additionally carries the TTL it was stored with.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	e := entry{payload: payload}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }
