package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryKV is an in-process KeyValueStore for tests and throwaway runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]Record
	err  error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]Record)}
}

// FailWith makes every later call return err (nil clears it).
func (m *MemoryKV) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), rec.Value...), nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = Record{Key: key, Value: append([]byte(nil), value...), UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) List(_ context.Context, prefix string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Record
	for k, rec := range m.data {
		if strings.HasPrefix(k, prefix) {
			rec.Value = append([]byte(nil), rec.Value...)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
