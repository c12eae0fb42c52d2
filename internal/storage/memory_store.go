package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

// MemoryStore реализует TerrainStore в памяти.
// Используется как fallback, когда внешние хранилища недоступны,
// или для тестов. Снимки хранятся в том же бинарном формате,
// поэтому возвращаемые карты независимы от сохранённых.
// ВНИМАНИЕ: Данные теряются при перезапуске!
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore создает новое хранилище снимков в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Save сохраняет снимок карты в памяти
func (s *MemoryStore) Save(ctx context.Context, name string, grid *terrain.MemoryGrid) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := EncodeGrid(grid)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotReady
	}
	s.data[name] = data
	return nil
}

// Load загружает снимок карты из памяти
func (s *MemoryStore) Load(ctx context.Context, name string) (*terrain.MemoryGrid, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	data, ok := s.data[name]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrNotReady
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return DecodeGrid(data)
}

// Delete удаляет снимок
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotReady
	}
	delete(s.data, name)
	return nil
}

// List возвращает имена снимков
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrNotReady
	}

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close помечает хранилище закрытым
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
