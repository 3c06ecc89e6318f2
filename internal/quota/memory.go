package quota

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	val     int64
	expires time.Time // zero = never
}

// MemoryBackend is a single-process Backend with the same semantics as RedisBackend.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]memEntry), now: time.Now}
}

// get returns the live entry for key; the caller holds mu.
func (m *MemoryBackend) get(key string) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryBackend) Incr(_ context.Context, keys []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(keys))
	for i, k := range keys {
		e, _ := m.get(k)
		e.val++
		m.data[k] = e
		out[i] = e.val
	}
	return out, nil
}

func (m *MemoryBackend) Decr(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		e, ok := m.get(k)
		if !ok {
			continue
		}
		if e.val > 0 {
			e.val--
		}
		m.data[k] = e
	}
	return nil
}

func (m *MemoryBackend) MGet(_ context.Context, keys []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(keys))
	for i, k := range keys {
		if e, ok := m.get(k); ok {
			out[i] = e.val
		}
	}
	return out, nil
}

func (m *MemoryBackend) Expire(_ context.Context, keys []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if e, ok := m.get(k); ok {
			e.expires = m.now().Add(ttl)
			m.data[k] = e
		}
	}
	return nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{val: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}
