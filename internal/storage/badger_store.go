package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

const badgerKeyPrefix = "terrain:"

// BadgerStore хранит снимки карт в BadgerDB
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// NewBadgerStore открывает (или создаёт) хранилище в каталоге dbPath
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	logger := logging.GetStorageLogger()
	logger.Info("BadgerDB открыта: %s", dbPath)

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		logger:  logger,
	}, nil
}

// Close закрывает хранилище данных
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}

// Save сохраняет снимок карты
func (bs *BadgerStore) Save(ctx context.Context, name string, grid *terrain.MemoryGrid) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrNotReady
	}

	start := time.Now()
	data, err := EncodeGrid(grid)
	if err != nil {
		return fmt.Errorf("ошибка сериализации карты: %w", err)
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+name), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	bs.logger.Debug("снимок %s сохранён: %d байт за %s", name, len(data), time.Since(start))
	return nil
}

// Load загружает снимок карты
func (bs *BadgerStore) Load(ctx context.Context, name string) (*terrain.MemoryGrid, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrNotReady
	}

	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + name))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return DecodeGrid(data)
}

// Delete удаляет снимок карты
func (bs *BadgerStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrNotReady
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + name))
	})
}

// List возвращает имена сохранённых снимков
func (bs *BadgerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrNotReady
	}

	var names []string
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), badgerKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления снимков: %w", err)
	}

	sort.Strings(names)
	return names, nil
}
