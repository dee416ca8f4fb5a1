package repository

import (
	"context"
	"sync"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
)

type memoryCacheStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCacheStore() CacheStore {
	return &memoryCacheStore{items: make(map[string][]byte)}
}

func (m *memoryCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, errors.ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryCacheStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryCacheStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}
