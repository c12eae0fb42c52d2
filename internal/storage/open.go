package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/mmo-terrain/internal/config"
	"github.com/annel0/mmo-terrain/internal/logging"
)

// Open создаёт хранилище по секции storage конфигурации.
// Если Redis недоступен, используется хранилище в памяти.
func Open(ctx context.Context, cfg config.StorageConfig) (TerrainStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return NewBadgerStore(cfg.BadgerDir)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		store, err := NewRedisStore(ctx, &RedisConfig{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
			TTL:  time.Duration(cfg.RedisTTL) * time.Second,
		})
		if err != nil {
			logging.GetStorageLogger().Warn("Redis недоступен (%v), снимки будут храниться в памяти", err)
			return NewMemoryStore(), nil
		}
		return store, nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище: %q", cfg.Backend)
	}
}
