package terrain

import "fmt"

// ViolationKind: вид нарушения согласованности наклонов
type ViolationKind int

const (
	// Поднятый угол без единого более высокого соседа рядом с ним
	ViolationUnsoundCorner ViolationKind = iota
	// Маска "все четыре угла подняты" вместо плоского тайла выше
	ViolationAllCornersUp
	// Флаг двойной высоты без шаблона с одним опущенным углом
	ViolationBadDoubleHeight
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationUnsoundCorner:
		return "unsound_corner"
	case ViolationAllCornersUp:
		return "all_corners_up"
	case ViolationBadDoubleHeight:
		return "bad_double_height"
	default:
		return "unknown"
	}
}

// Violation описывает один несогласованный тайл
type Violation struct {
	Coord  TileCoord
	Kind   ViolationKind
	Corner Corner
	Slope  Slope
}

func (v Violation) String() string {
	if v.Kind == ViolationUnsoundCorner {
		return fmt.Sprintf("(%d,%d) %s: corner %s slope=%s", v.Coord.X, v.Coord.Y, v.Kind, v.Corner, v.Slope)
	}
	return fmt.Sprintf("(%d,%d) %s: slope=%s", v.Coord.X, v.Coord.Y, v.Kind, v.Slope)
}

// Validate проверяет, что флаги наклонов в области честно отражают высоты соседей.
//
// Угол считается обоснованным, если хотя бы один из трёх соседей у него
// (диагональный и две стороны) строго выше базовой высоты тайла.
// У крутых тайлов проверяется только крутой угол.
func Validate(g Grid, left, top, right, bottom int) []Violation {
	var out []Violation

	for y := top; y < bottom; y++ {
		for x := left; x < right; x++ {
			c := TileCoord{X: x, Y: y}
			tile := g.TileAt(c)
			if tile == nil {
				continue
			}
			slope := tile.Slope & SlopeMask

			if slope == SlopeAllCornersUp {
				out = append(out, Violation{Coord: c, Kind: ViolationAllCornersUp, Slope: slope})
				continue
			}

			corners := allCorners[:]
			if slope.IsDoubleHeight() {
				down, ok := slope.DownCorner()
				if !ok {
					out = append(out, Violation{Coord: c, Kind: ViolationBadDoubleHeight, Slope: slope})
					continue
				}
				corners = []Corner{down.Opposite()}
			}

			for _, corner := range corners {
				if !slope.HasCornerUp(corner) {
					continue
				}
				if !cornerSupported(g, c, tile, corner) {
					out = append(out, Violation{Coord: c, Kind: ViolationUnsoundCorner, Corner: corner, Slope: slope})
				}
			}
		}
	}

	return out
}

func cornerSupported(g Grid, c TileCoord, tile *Tile, corner Corner) bool {
	for _, cv := range cornerVoters {
		if cv.corner != corner {
			continue
		}
		for _, d := range cv.dirs {
			if n := g.TileAt(c.Add(d.Offset())); n != nil && n.BaseHeight > tile.BaseHeight {
				return true
			}
		}
	}
	return false
}
