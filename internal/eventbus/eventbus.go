package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Envelope описывает универсальный контейнер события.
// Все поля фиксированы для версиирования и трассировки.
type Envelope struct {
	ID            string            // Глобально уникальный идентификатор (UUID).
	Timestamp     time.Time         // Время создания события (UTC).
	Source        string            // Имя сервиса-источника.
	EventType     string            // Тип события (TerrainChanged, MapSaved…).
	Version       int               // Схема полезной нагрузки.
	CorrelationID string            // Для связывания цепочек.
	Priority      int               // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            // JSON полезной нагрузки.
	Metadata      map[string]string // Произвольные метаданные.
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто: все типы.
	Sources []string // Если пусто: все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int
	published   uint64
	consumed    uint64
	dropped     uint64
	buffer      chan *Envelope
	closed      bool
	closing     chan struct{} // закрывается в Close до ожидания отправителей
	senders     sync.WaitGroup
	done        chan struct{}
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory Bus с указанным буфером.
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 1
	}
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

// Publish кладёт событие в буфер. Блокирующая отправка идёт без mb.mu:
// иначе ожидающий Lock в Subscribe/Close останавливает dispatchLoop.
func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return ErrBusClosed
	}
	mb.senders.Add(1)
	mb.mu.RUnlock()
	defer mb.senders.Done()

	select {
	case mb.buffer <- ev:
		atomic.AddUint64(&mb.published, 1)
		return nil
	default:
		// Буфер заполнен: дропаём низкий приоритет (<5)
		if ev.Priority < 5 {
			atomic.AddUint64(&mb.dropped, 1)
			return nil
		}
		// Для High-priority блокируем до освобождения места, отмены контекста или закрытия шины
		select {
		case mb.buffer <- ev:
			atomic.AddUint64(&mb.published, 1)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.closing:
			atomic.AddUint64(&mb.dropped, 1)
			return ErrBusClosed
		}
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrBusClosed
	}

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&mb.published),
		Consumed:  atomic.LoadUint64(&mb.consumed),
		Dropped:   atomic.LoadUint64(&mb.dropped),
		InFlight:  len(mb.buffer),
	}
}

// Close прекращает приём событий, дожидается доставки буфера и отменяет подписки.
func (mb *memoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.closing)
	mb.mu.Unlock()

	// buffer закрывается только после выхода всех отправителей
	mb.senders.Wait()
	close(mb.buffer)
	<-mb.done

	mb.mu.Lock()
	for id, sub := range mb.subscribers {
		sub.cancel()
		delete(mb.subscribers, id)
	}
	mb.mu.Unlock()
	return nil
}

// dispatchLoop рассылает события подписчикам по порядку.
// Медленный обработчик задерживает очередь, поэтому при переполнении
// буфера срабатывает backpressure из Publish.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)

	for ev := range mb.buffer {
		mb.mu.RLock()
		subs := make([]subscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			subs = append(subs, sub)
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			if !matchFilter(ev, sub.filter) || sub.ctx.Err() != nil {
				continue
			}
			sub.handler(sub.ctx, ev)
			atomic.AddUint64(&mb.consumed, 1)
		}
	}
}

// Matches сообщает, проходит ли событие фильтр
func Matches(ev *Envelope, f Filter) bool {
	return matchFilter(ev, f)
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
