package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// RedisStore хранит снимки карт в Redis.
// При ненулевом TTL снимки живут ограниченное время, что позволяет
// использовать Redis как кэш поверх постоянного хранилища.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logging.Logger
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни снимков, 0: бессрочно
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "terrain:snap:",
	}
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logger := logging.GetStorageLogger()
	logger.Info("🔴 Подключено к Redis %s (prefix=%s ttl=%s)", config.Addr, config.KeyPrefix, config.TTL)

	return &RedisStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    logger,
	}, nil
}

func (rs *RedisStore) key(name string) string {
	return rs.keyPrefix + name
}

// Save сохраняет снимок карты
func (rs *RedisStore) Save(ctx context.Context, name string, grid *terrain.MemoryGrid) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	data, err := EncodeGrid(grid)
	if err != nil {
		return fmt.Errorf("ошибка сериализации карты: %w", err)
	}

	if err := rs.client.Set(ctx, rs.key(name), data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения в Redis: %w", err)
	}

	rs.logger.Debug("снимок %s сохранён в Redis: %d байт", name, len(data))
	return nil
}

// Load загружает снимок карты
func (rs *RedisStore) Load(ctx context.Context, name string) (*terrain.MemoryGrid, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := rs.client.Get(ctx, rs.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return nil, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}

	return DecodeGrid(data)
}

// Delete удаляет снимок карты
func (rs *RedisStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return rs.client.Del(ctx, rs.key(name)).Err()
}

// List возвращает имена снимков, перебирая ключи через SCAN
func (rs *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := rs.client.Scan(ctx, 0, rs.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), rs.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ошибка перечисления снимков в Redis: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Close закрывает соединение с Redis
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
