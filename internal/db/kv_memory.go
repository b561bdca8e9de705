package wallet

import (
	"context"
	"fmt"
	"sync"

	model "github.com/glkeru/loyalty/wallet/internal/models"
)

// In-memory хранилище для тестов и локального запуска
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (value string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}
	return val, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) PutIfAbsent(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok {
		return fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}
	if cur != oldValue {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	m.data[key] = newValue
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
