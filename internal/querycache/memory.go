package querycache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	value    string
	expireAt time.Time
}

// Memory is a bounded in-process LRU cache with per-entry expiry.
type Memory struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		size:    size,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, query string) (string, bool, error) {
	key := Key(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}

	entry := el.Value.(*memoryEntry)
	if !m.now().Before(entry.expireAt) {
		m.order.Remove(el)
		delete(m.entries, key)
		return "", false, nil
	}

	m.order.MoveToFront(el)
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, query, enhanced string) error {
	key := Key(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	expireAt := m.now().Add(m.ttl)
	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = enhanced
		entry.expireAt = expireAt
		m.order.MoveToFront(el)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memoryEntry{key: key, value: enhanced, expireAt: expireAt})
	for m.order.Len() > m.size {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}

	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
