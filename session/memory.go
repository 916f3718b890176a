package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryMedium keeps sessions in process memory. The mutex makes each batch
// atomic with respect to Load.
type MemoryMedium struct {
	mu     sync.Mutex
	c      *gocache.Cache
	closed bool
}

// NewMemoryMedium creates an in-process medium. A zero ttl never expires entries.
func NewMemoryMedium(ttl time.Duration) *MemoryMedium {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryMedium{c: gocache.New(ttl, time.Minute)}
}

func (m *MemoryMedium) Load(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMediumClosed
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := m.c.Get(k)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func (m *MemoryMedium) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrMediumClosed
	}
	return m.incr(key), nil
}

func (m *MemoryMedium) Apply(_ context.Context, b Batch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrMediumClosed
	}

	if b.Guard != "" && m.counter(b.Guard) != b.Expect {
		return false, nil
	}
	for _, k := range b.matchKeys() {
		v, _ := m.c.Get(k)
		if s, ok := v.(string); !ok || s != b.Match[k] {
			return false, nil
		}
	}
	for _, k := range b.Absent {
		if _, ok := m.c.Get(k); ok {
			return false, nil
		}
	}
	for _, k := range b.setKeys() {
		m.c.Set(k, b.Set[k], gocache.DefaultExpiration)
	}
	for _, k := range b.Delete {
		m.c.Delete(k)
	}
	for _, k := range b.Incr {
		m.incr(k)
	}
	return true, nil
}

func (m *MemoryMedium) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMediumClosed
	}
	return nil
}

func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.c.Flush()
	return nil
}

// counter and incr expect m.mu to be held
func (m *MemoryMedium) counter(key string) int64 {
	v, ok := m.c.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func (m *MemoryMedium) incr(key string) int64 {
	n := m.counter(key) + 1
	m.c.Set(key, n, gocache.DefaultExpiration)
	return n
}
