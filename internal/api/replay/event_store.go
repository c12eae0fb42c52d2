package replay

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/mmo-terrain/internal/eventbus"
)

// EventStore хранит последние события шины для запросов и воспроизведения
type EventStore interface {
	// WriteEvent записывает событие в хранилище
	WriteEvent(ctx context.Context, ev *eventbus.Envelope) error

	// QueryEvents возвращает события по фильтру, от старых к новым
	QueryEvents(ctx context.Context, f EventFilter) ([]*eventbus.Envelope, error)

	// GetEventStats возвращает статистику событий
	GetEventStats() EventStats

	// Close закрывает хранилище
	Close() error
}

// EventFilter содержит фильтры для запроса событий
type EventFilter struct {
	Since      time.Time // нулевое значение: без ограничения
	EventTypes []string
	Limit      int // 0: все подходящие
}

// EventStats: статистика хранилища
type EventStats struct {
	Stored  int            `json:"stored"`
	Total   uint64         `json:"total"`
	Evicted uint64         `json:"evicted"`
	ByType  map[string]int `json:"by_type"`
}

// MemoryEventStore: кольцевой буфер последних событий
type MemoryEventStore struct {
	mu      sync.RWMutex
	ring    []*eventbus.Envelope
	next    int
	size    int
	total   uint64
	evicted uint64
	sub     eventbus.Subscription
}

// NewMemoryEventStore создаёт буфер на capacity событий
func NewMemoryEventStore(capacity int) *MemoryEventStore {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryEventStore{ring: make([]*eventbus.Envelope, capacity)}
}

// Attach подписывает хранилище на все события шины
func (s *MemoryEventStore) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		_ = s.WriteEvent(ctx, ev)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *MemoryEventStore) WriteEvent(_ context.Context, ev *eventbus.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == len(s.ring) {
		s.evicted++
	} else {
		s.size++
	}
	s.ring[s.next] = ev
	s.next = (s.next + 1) % len(s.ring)
	s.total++
	return nil
}

func (s *MemoryEventStore) QueryEvents(ctx context.Context, f EventFilter) ([]*eventbus.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := eventbus.Filter{Types: f.EventTypes}
	out := make([]*eventbus.Envelope, 0)
	start := (s.next - s.size + len(s.ring)) % len(s.ring)
	for i := 0; i < s.size; i++ {
		ev := s.ring[(start+i)%len(s.ring)]
		if !f.Since.IsZero() && !ev.Timestamp.After(f.Since) {
			continue
		}
		if !eventbus.Matches(ev, filter) {
			continue
		}
		out = append(out, ev)
	}

	// Лимит оставляет самые свежие события
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (s *MemoryEventStore) GetEventStats() EventStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := EventStats{Stored: s.size, Total: s.total, Evicted: s.evicted, ByType: make(map[string]int)}
	for i := 0; i < s.size; i++ {
		idx := (s.next - s.size + i + len(s.ring)) % len(s.ring)
		st.ByType[s.ring[idx].EventType]++
	}
	return st
}

// Close отписывается от шины
func (s *MemoryEventStore) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	return nil
}
