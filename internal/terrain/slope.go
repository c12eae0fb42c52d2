package terrain

import "strings"

// Slope: битовая маска наклона поверхности тайла.
//
// Раскладка битов сохраняется в снимках карты (см. storage), поэтому значения
// констант менять нельзя.
type Slope uint8

const (
	SlopeFlat Slope = 0

	SlopeNCornerUp Slope = 0x01
	SlopeECornerUp Slope = 0x02
	SlopeSCornerUp Slope = 0x04
	SlopeWCornerUp Slope = 0x08

	SlopeNESideUp = SlopeNCornerUp | SlopeECornerUp
	SlopeSESideUp = SlopeECornerUp | SlopeSCornerUp
	SlopeSWSideUp = SlopeSCornerUp | SlopeWCornerUp
	SlopeNWSideUp = SlopeNCornerUp | SlopeWCornerUp

	SlopeWCornerDn = SlopeNCornerUp | SlopeECornerUp | SlopeSCornerUp
	SlopeSCornerDn = SlopeNCornerUp | SlopeECornerUp | SlopeWCornerUp
	SlopeECornerDn = SlopeNCornerUp | SlopeSCornerUp | SlopeWCornerUp
	SlopeNCornerDn = SlopeECornerUp | SlopeSCornerUp | SlopeWCornerUp

	SlopeAllCornersUp Slope = 0x0F

	// SlopeDoubleHeight: поднятая часть занимает два шага высоты.
	// Используется только вместе с одним из *CornerDn.
	SlopeDoubleHeight Slope = 0x10
	SlopeDiagonalFlag       = SlopeDoubleHeight

	SlopeMask Slope = 0x1F
)

// Шаги высоты
const (
	SlopeStep       = 2 // обычный угол/сторона
	DoubleSlopeStep = 4 // крутой диагональный угол
)

// Corner: угол тайла
type Corner int

const (
	CornerN Corner = iota
	CornerE
	CornerS
	CornerW
)

var allCorners = [4]Corner{CornerN, CornerE, CornerS, CornerW}

// Corners возвращает все углы в порядке N, E, S, W
func Corners() [4]Corner {
	return allCorners
}

// Flag возвращает флаг "угол поднят"
func (c Corner) Flag() Slope {
	return SlopeNCornerUp << uint(c&3)
}

// Opposite возвращает противоположный по диагонали угол
func (c Corner) Opposite() Corner {
	return (c + 2) & 3
}

// DownSlope возвращает маску, в которой опущен только этот угол
func (c Corner) DownSlope() Slope {
	return SlopeAllCornersUp &^ c.Flag()
}

func (c Corner) String() string {
	switch c {
	case CornerN:
		return "N"
	case CornerE:
		return "E"
	case CornerS:
		return "S"
	case CornerW:
		return "W"
	default:
		return "?"
	}
}

// HasCornerUp сообщает, поднят ли угол
func (s Slope) HasCornerUp(c Corner) bool {
	return s&c.Flag() != 0
}

// IsDoubleHeight сообщает о крутом (двойном) наклоне
func (s Slope) IsDoubleHeight() bool {
	return s&SlopeDoubleHeight != 0
}

// RaisedCorners возвращает только биты углов
func (s Slope) RaisedCorners() Slope {
	return s & SlopeAllCornersUp
}

// IsFlat сообщает, что ни один угол не поднят
func (s Slope) IsFlat() bool {
	return s&SlopeMask == SlopeFlat
}

// DownCorner возвращает опущенный угол для масок вида *CornerDn
func (s Slope) DownCorner() (Corner, bool) {
	for _, c := range allCorners {
		if s.RaisedCorners() == c.DownSlope() {
			return c, true
		}
	}
	return CornerN, false
}

// CornerOffset возвращает высоту угла относительно базовой высоты тайла
func (s Slope) CornerOffset(c Corner) int {
	if !s.HasCornerUp(c) {
		return 0
	}
	if s.IsDoubleHeight() {
		if down, ok := s.DownCorner(); ok && down.Opposite() == c {
			return DoubleSlopeStep
		}
	}
	return SlopeStep
}

// String возвращает читаемое представление вида "N|E+2x"
func (s Slope) String() string {
	if s.IsFlat() {
		return "flat"
	}
	parts := make([]string, 0, 4)
	for _, c := range allCorners {
		if s.HasCornerUp(c) {
			parts = append(parts, c.String())
		}
	}
	out := strings.Join(parts, "|")
	if s.IsDoubleHeight() {
		out += "+2x"
	}
	return out
}
