package terrain

import (
	"fmt"

	"github.com/annel0/mmo-terrain/internal/vec"
)

// TileCoord: координаты тайла на карте
type TileCoord = vec.Vec2

// MaxHeight: максимальная базовая высота тайла
const MaxHeight = 255

// SurfaceStyle: тип покрытия поверхности
type SurfaceStyle uint8

const (
	SurfaceGrass SurfaceStyle = iota
	SurfaceSand
	SurfaceSandDark
	SurfaceSandLight
	SurfaceDirt
	SurfaceGrassClumps
	SurfaceIce
	SurfaceRock
)

var surfaceNames = map[SurfaceStyle]string{
	SurfaceGrass:       "grass",
	SurfaceSand:        "sand",
	SurfaceSandDark:    "sand_dark",
	SurfaceSandLight:   "sand_light",
	SurfaceDirt:        "dirt",
	SurfaceGrassClumps: "grass_clumps",
	SurfaceIce:         "ice",
	SurfaceRock:        "rock",
}

func (s SurfaceStyle) String() string {
	if name, ok := surfaceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("surface(%d)", uint8(s))
}

// ParseSurfaceStyle разбирает имя покрытия
func ParseSurfaceStyle(name string) (SurfaceStyle, error) {
	for style, n := range surfaceNames {
		if n == name {
			return style, nil
		}
	}
	return SurfaceGrass, fmt.Errorf("неизвестный тип покрытия: %q", name)
}

// EdgeStyle: тип боковой стенки (обрыва) тайла
type EdgeStyle uint8

const (
	EdgeRock EdgeStyle = iota
	EdgeWoodRed
	EdgeWoodBlack
	EdgeIce
)

var edgeNames = map[EdgeStyle]string{
	EdgeRock:      "rock",
	EdgeWoodRed:   "wood_red",
	EdgeWoodBlack: "wood_black",
	EdgeIce:       "ice",
}

func (e EdgeStyle) String() string {
	if name, ok := edgeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("edge(%d)", uint8(e))
}

// ParseEdgeStyle разбирает имя стенки
func ParseEdgeStyle(name string) (EdgeStyle, error) {
	for style, n := range edgeNames {
		if n == name {
			return style, nil
		}
	}
	return EdgeRock, fmt.Errorf("неизвестный тип стенки: %q", name)
}

// Tile: поверхностный элемент одной клетки карты
type Tile struct {
	BaseHeight      uint8        `json:"base_height"`
	ClearanceHeight uint8        `json:"clearance_height"`
	Slope           Slope        `json:"slope"`
	WaterHeight     uint16       `json:"water_height,omitempty"` // 0: воды нет
	Surface         SurfaceStyle `json:"surface"`
	Edge            EdgeStyle    `json:"edge"`
}

// SetHeight выставляет базовую высоту и высоту зазора одновременно
func (t *Tile) SetHeight(h int) {
	h = clampHeight(h)
	t.BaseHeight = uint8(h)
	t.ClearanceHeight = uint8(h)
}

// CornerHeight возвращает абсолютную высоту угла
func (t *Tile) CornerHeight(c Corner) int {
	return int(t.BaseHeight) + t.Slope.CornerOffset(c)
}

// TopHeight возвращает высоту самой высокой точки тайла
func (t *Tile) TopHeight() int {
	top := int(t.BaseHeight)
	for _, c := range allCorners {
		if h := t.CornerHeight(c); h > top {
			top = h
		}
	}
	return top
}

// HasWater сообщает, покрыт ли тайл водой
func (t *Tile) HasWater() bool {
	return t.WaterHeight > 0 && int(t.WaterHeight) > int(t.BaseHeight)
}

func clampHeight(h int) int {
	if h < 0 {
		return 0
	}
	if h > MaxHeight {
		return MaxHeight
	}
	return h
}
