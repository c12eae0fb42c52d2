package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// SQLiteStore хранит снимки карт в одном файле SQLite.
// Кроме самого снимка в таблице лежат размеры карты и время сохранения,
// что удобно для просмотра базы внешними инструментами.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore открывает (или создаёт) базу по пути path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("пустой путь к базе SQLite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("инициализация SQLite: %w", err)
		}
	}

	logger := logging.GetStorageLogger()
	logger.Info("SQLite открыта: %s", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Save сохраняет снимок карты
func (s *SQLiteStore) Save(ctx context.Context, name string, grid *terrain.MemoryGrid) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	data, err := EncodeGrid(grid)
	if err != nil {
		return fmt.Errorf("ошибка сериализации карты: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(name, width, height, data, updated_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET width=excluded.width, height=excluded.height,
		 data=excluded.data, updated_at=excluded.updated_at`,
		name, grid.Width(), grid.Height(), data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ошибка сохранения в SQLite: %w", err)
	}
	return nil
}

// Load загружает снимок карты
func (s *SQLiteStore) Load(ctx context.Context, name string) (*terrain.MemoryGrid, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из SQLite: %w", err)
	}
	return DecodeGrid(data)
}

// Delete удаляет снимок карты
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	return err
}

// List возвращает имена снимков
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления снимков в SQLite: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close закрывает базу
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
