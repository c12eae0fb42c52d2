package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/mmo-terrain/internal/config"
	"github.com/annel0/mmo-terrain/internal/logging"
)

var globalBus EventBus

// Init устанавливает глобальную шину.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину, если она инициализирована.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}

// New создаёт шину по секции eventbus конфигурации.
// Если NATS недоступен, используется шина в памяти.
func New(cfg config.EventBusConfig) (EventBus, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBus(1024), nil
	case "nats":
		bus, err := NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			logging.GetComponentLogger("eventbus").Warn("NATS недоступен (%v), используется шина в памяти", err)
			return NewMemoryBus(1024), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("неизвестная шина событий: %q", cfg.Backend)
	}
}
