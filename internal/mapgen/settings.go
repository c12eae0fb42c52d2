package mapgen

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/annel0/mmo-terrain/internal/config"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// MaxMapSize: максимальный практический размер стороны карты
const MaxMapSize = 254

// RandomStyle в Settings.Surface / Settings.Edge означает случайный выбор
const RandomStyle = -1

var (
	// ErrInvalidSettings: некорректные параметры генерации
	ErrInvalidSettings = errors.New("mapgen: некорректные параметры")
	// ErrInvalidHeightmap: карту высот нельзя использовать
	ErrInvalidHeightmap = errors.New("mapgen: некорректная карта высот")
)

// Settings: параметры генерации карты
type Settings struct {
	MapSize    int   // сторона карты вместе с пустой рамкой
	Height     int   // высота пустой карты
	WaterLevel int   // тайлы ниже уровня заливаются водой
	Surface    int   // terrain.SurfaceStyle или RandomStyle
	Edge       int   // terrain.EdgeStyle или RandomStyle
	Seed       int64 // 0: случайный сид

	// Шум
	BaseFrequency float64
	Octaves       int
	Low           int
	High          int

	// Карта высот
	SmoothHeightmap bool
	Strength        int
	Normalize       bool
	Smooth          bool

	Beaches   bool
	Trees     bool
	MaxPasses int
}

// DefaultSettings возвращает параметры по умолчанию
func DefaultSettings() Settings {
	return Settings{
		MapSize:       128,
		Height:        12,
		WaterLevel:    16,
		Surface:       RandomStyle,
		Edge:          RandomStyle,
		BaseFrequency: 0.6,
		Octaves:       4,
		Low:           6,
		High:          10,
		Strength:      2,
		Smooth:        true,
		Beaches:       true,
		MaxPasses:     1000,
	}
}

// SettingsFromConfig переносит секцию mapgen конфигурации в Settings
func SettingsFromConfig(c config.MapGenConfig) (Settings, error) {
	s := Settings{
		MapSize:         c.Size,
		Height:          c.Height,
		WaterLevel:      c.WaterLevel,
		Seed:            c.Seed,
		BaseFrequency:   c.Frequency,
		Octaves:         c.Octaves,
		Low:             c.Low,
		High:            c.High,
		SmoothHeightmap: c.Smooth,
		Strength:        c.Strength,
		Normalize:       c.Normalize,
		Smooth:          c.SmoothTiles,
		Beaches:         c.Beaches,
		MaxPasses:       c.MaxPasses,
	}

	s.Surface = RandomStyle
	if name := strings.TrimSpace(c.Surface); name != "" && name != "random" {
		style, err := terrain.ParseSurfaceStyle(name)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		s.Surface = int(style)
	}

	s.Edge = RandomStyle
	if name := strings.TrimSpace(c.Edge); name != "" && name != "random" {
		style, err := terrain.ParseEdgeStyle(name)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		s.Edge = int(style)
	}

	return s, s.Validate()
}

// Validate проверяет параметры
func (s Settings) Validate() error {
	if s.MapSize < 3 || s.MapSize > MaxMapSize+2 {
		return fmt.Errorf("%w: размер карты %d", ErrInvalidSettings, s.MapSize)
	}
	if s.Height < 0 || s.Height > terrain.MaxHeight {
		return fmt.Errorf("%w: высота %d", ErrInvalidSettings, s.Height)
	}
	if s.Low < 0 || s.High <= s.Low || s.High > terrain.MaxHeight {
		return fmt.Errorf("%w: диапазон высот [%d, %d]", ErrInvalidSettings, s.Low, s.High)
	}
	if s.WaterLevel < 0 || s.WaterLevel > terrain.MaxHeight {
		return fmt.Errorf("%w: уровень воды %d", ErrInvalidSettings, s.WaterLevel)
	}
	return nil
}

// Базовые покрытия для случайного выбора
var baseSurfaces = []terrain.SurfaceStyle{
	terrain.SurfaceGrass,
	terrain.SurfaceSand,
	terrain.SurfaceSandLight,
	terrain.SurfaceDirt,
	terrain.SurfaceIce,
}

// resolveStyles выбирает покрытие и стенку с учётом RandomStyle
func (s Settings) resolveStyles(rng *rand.Rand) (terrain.SurfaceStyle, terrain.EdgeStyle) {
	var surface terrain.SurfaceStyle
	if s.Surface == RandomStyle {
		surface = baseSurfaces[rng.Intn(len(baseSurfaces))]
	} else {
		surface = terrain.SurfaceStyle(s.Surface)
	}

	if s.Edge != RandomStyle {
		return surface, terrain.EdgeStyle(s.Edge)
	}

	// Стенка подбирается под покрытие
	switch surface {
	case terrain.SurfaceDirt:
		return surface, terrain.EdgeWoodRed
	case terrain.SurfaceIce:
		return surface, terrain.EdgeIce
	default:
		return surface, terrain.EdgeRock
	}
}

// beachSurface выбирает покрытие пляжей
func (s Settings) beachSurface(surface terrain.SurfaceStyle, rng *rand.Rand) terrain.SurfaceStyle {
	if s.Surface != RandomStyle || surface != terrain.SurfaceGrass {
		return surface
	}
	switch rng.Intn(4) {
	case 0:
		return terrain.SurfaceSand
	case 1:
		return terrain.SurfaceSandLight
	default:
		return surface
	}
}
