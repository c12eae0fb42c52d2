package terrain

import (
	"fmt"

	"github.com/annel0/mmo-terrain/internal/vec"
)

// Grid: доступ к поверхностным элементам карты.
//
// TileAt возвращает nil для отсутствующих тайлов и координат вне карты.
// Возвращаемый указатель живой: изменения через него видны последующим
// вызовам TileAt в том же проходе.
type Grid interface {
	TileAt(c TileCoord) *Tile
}

// Direction: направление на соседний тайл
type Direction int

// Порядок направлений фиксирован: по нему индексируется массив соседей.
const (
	DirN Direction = iota
	DirNW
	DirW
	DirSW
	DirS
	DirSE
	DirE
	DirNE
	numDirections
)

// Смещения соседей. Углы (N, E, S, W) лежат по диагонали сетки,
// стороны (NE, SE, SW, NW): по осям.
var directionOffsets = [numDirections]vec.Vec2{
	DirN:  {X: 1, Y: 1},
	DirNW: {X: 0, Y: 1},
	DirW:  {X: -1, Y: 1},
	DirSW: {X: -1, Y: 0},
	DirS:  {X: -1, Y: -1},
	DirSE: {X: 0, Y: -1},
	DirE:  {X: 1, Y: -1},
	DirNE: {X: 1, Y: 0},
}

var directionNames = [numDirections]string{"N", "NW", "W", "SW", "S", "SE", "E", "NE"}

// Offset возвращает смещение до соседа
func (d Direction) Offset() vec.Vec2 {
	return directionOffsets[d]
}

func (d Direction) String() string {
	if d < 0 || d >= numDirections {
		return "?"
	}
	return directionNames[d]
}

// Directions возвращает все 8 направлений по порядку
func Directions() [8]Direction {
	return [8]Direction{DirN, DirNW, DirW, DirSW, DirS, DirSE, DirE, DirNE}
}

// cornerDirection возвращает диагональное направление на соседа у угла
func cornerDirection(c Corner) Direction {
	switch c {
	case CornerN:
		return DirN
	case CornerE:
		return DirE
	case CornerS:
		return DirS
	default:
		return DirW
	}
}

// MemoryGrid хранит тайлы в плоском массиве
type MemoryGrid struct {
	width   int
	height  int
	tiles   []Tile
	present []bool
}

// NewMemoryGrid создаёт пустую карту: ни одного тайла нет
func NewMemoryGrid(width, height int) *MemoryGrid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &MemoryGrid{
		width:   width,
		height:  height,
		tiles:   make([]Tile, width*height),
		present: make([]bool, width*height),
	}
}

// NewFlatGrid создаёт карту, полностью заполненную плоскими тайлами высоты h
func NewFlatGrid(width, height, h int) *MemoryGrid {
	g := NewMemoryGrid(width, height)
	for i := range g.tiles {
		g.tiles[i].SetHeight(h)
		g.present[i] = true
	}
	return g
}

// Width возвращает ширину карты
func (g *MemoryGrid) Width() int { return g.width }

// Height возвращает высоту карты
func (g *MemoryGrid) Height() int { return g.height }

// InBounds проверяет координаты
func (g *MemoryGrid) InBounds(c TileCoord) bool {
	return c.In(0, 0, g.width, g.height)
}

func (g *MemoryGrid) index(c TileCoord) int {
	return c.Y*g.width + c.X
}

// TileAt реализует Grid
func (g *MemoryGrid) TileAt(c TileCoord) *Tile {
	if !g.InBounds(c) {
		return nil
	}
	i := g.index(c)
	if !g.present[i] {
		return nil
	}
	return &g.tiles[i]
}

// Set записывает тайл в клетку
func (g *MemoryGrid) Set(c TileCoord, t Tile) error {
	if !g.InBounds(c) {
		return fmt.Errorf("координаты %v вне карты %dx%d", c, g.width, g.height)
	}
	i := g.index(c)
	g.tiles[i] = t
	g.present[i] = true
	return nil
}

// Remove удаляет тайл из клетки
func (g *MemoryGrid) Remove(c TileCoord) {
	if !g.InBounds(c) {
		return
	}
	i := g.index(c)
	g.tiles[i] = Tile{}
	g.present[i] = false
}

// Len возвращает количество существующих тайлов
func (g *MemoryGrid) Len() int {
	n := 0
	for _, p := range g.present {
		if p {
			n++
		}
	}
	return n
}

// Each обходит существующие тайлы построчно
func (g *MemoryGrid) Each(fn func(c TileCoord, t *Tile)) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			i := y*g.width + x
			if g.present[i] {
				fn(TileCoord{X: x, Y: y}, &g.tiles[i])
			}
		}
	}
}

// Clone возвращает независимую копию карты
func (g *MemoryGrid) Clone() *MemoryGrid {
	c := &MemoryGrid{
		width:   g.width,
		height:  g.height,
		tiles:   make([]Tile, len(g.tiles)),
		present: make([]bool, len(g.present)),
	}
	copy(c.tiles, g.tiles)
	copy(c.present, g.present)
	return c
}

// Equal сравнивает содержимое двух карт
func (g *MemoryGrid) Equal(other *MemoryGrid) bool {
	if g.width != other.width || g.height != other.height {
		return false
	}
	for i := range g.tiles {
		if g.present[i] != other.present[i] || g.tiles[i] != other.tiles[i] {
			return false
		}
	}
	return true
}

// baseHeightAt возвращает базовую высоту; отсутствующий тайл считается высотой 0
func baseHeightAt(g Grid, c TileCoord) int {
	if t := g.TileAt(c); t != nil {
		return int(t.BaseHeight)
	}
	return 0
}
