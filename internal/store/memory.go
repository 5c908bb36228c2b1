package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a map-backed Store. It exists for tests and for running the
// bot without a data directory; semantics mirror the Badger backend.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		counters: map[string]int64{},
		hashes:   map[string]map[string]string{},
		sets:     map[string]map[string]struct{}{},
	}
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HSetAll(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(h))
	for f, v := range h {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(s, mem)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[key]
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	return out, nil
}

func (m *Memory) DeleteIfExists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existed := false
	if _, ok := m.counters[key]; ok {
		delete(m.counters, key)
		existed = true
	}
	if _, ok := m.hashes[key]; ok {
		delete(m.hashes, key)
		existed = true
	}
	if _, ok := m.sets[key]; ok {
		delete(m.sets, key)
		existed = true
	}
	return existed, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	collect := func(key string) {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			seen[key] = struct{}{}
		}
	}
	for k := range m.counters {
		collect(k)
	}
	for k := range m.hashes {
		collect(k)
	}
	for k := range m.sets {
		collect(k)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
