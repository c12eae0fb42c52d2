package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

var (
	// ErrNotFound: снимок карты с таким именем отсутствует
	ErrNotFound = errors.New("storage: снимок не найден")
	// ErrNotReady: хранилище закрыто
	ErrNotReady = errors.New("storage: хранилище не готово")
	// ErrInvalidName: недопустимое имя снимка
	ErrInvalidName = errors.New("storage: недопустимое имя снимка")
)

// TerrainStore определяет интерфейс для сохранения и загрузки снимков карт рельефа.
// Снимок целиком описывает карту: размеры, наличие тайлов и все поля тайлов.
type TerrainStore interface {
	// Save сохраняет снимок карты под именем name, перезаписывая прежний.
	Save(ctx context.Context, name string, grid *terrain.MemoryGrid) error

	// Load загружает снимок. Если снимка нет, возвращает ErrNotFound.
	Load(ctx context.Context, name string) (*terrain.MemoryGrid, error)

	// Delete удаляет снимок. Удаление отсутствующего снимка не ошибка.
	Delete(ctx context.Context, name string) error

	// List возвращает имена сохранённых снимков в алфавитном порядке.
	List(ctx context.Context) ([]string, error)

	// Close освобождает ресурсы хранилища.
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateName проверяет имя снимка: латиница, цифры, '_', '-', '.', до 64 символов
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
