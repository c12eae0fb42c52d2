package terrain

// Для каждого угла: три соседа, голосующих за его подъём:
// диагональный сосед у угла и две прилегающие стороны.
var cornerVoters = [4]struct {
	corner Corner
	dirs   [3]Direction
}{
	{CornerW, [3]Direction{DirSW, DirW, DirNW}},
	{CornerN, [3]Direction{DirNW, DirN, DirNE}},
	{CornerE, [3]Direction{DirNE, DirE, DirSE}},
	{CornerS, [3]Direction{DirSE, DirS, DirSW}},
}

// neighbourOffsets: разница высот соседей относительно тайла, по Direction
type neighbourOffsets [numDirections]int

// SingleTileSmooth выводит наклон одного тайла по знакам разниц высот с 8 соседями.
//
// Отсутствующий сосед считается той же высоты, что и сам тайл.
// Отсутствующий тайл: no-op. Возвращает true, если тайл изменился.
func SingleTileSmooth(g Grid, c TileCoord) bool {
	tile := g.TileAt(c)
	if tile == nil {
		return false
	}

	var offsets neighbourOffsets
	for _, d := range Directions() {
		if n := g.TileAt(c.Add(d.Offset())); n != nil {
			offsets[d] = int(n.BaseHeight) - int(tile.BaseHeight)
		}
	}

	slope := SlopeFlat
	for _, cv := range cornerVoters {
		vote := 0
		for _, d := range cv.dirs {
			vote += clampInt(offsets[d], 0, 1)
		}
		if vote >= 1 {
			slope |= cv.corner.Flag()
		}
	}

	// Три угла подняты, а угол напротив опущенного можно поднять ещё на шаг
	if down, ok := slope.DownCorner(); ok {
		steep := down.Opposite()
		if offsets[cornerDirection(steep)] >= DoubleSlopeStep {
			slope |= SlopeDoubleHeight
		}
	}

	if tile.Slope&SlopeMask == slope {
		return false
	}

	if slope&SlopeAllCornersUp == SlopeAllCornersUp {
		// Все углы подняты: поднимаем тайл целиком
		tile.Slope &^= SlopeMask
		tile.SetHeight(int(tile.BaseHeight) + SlopeStep)
		if int(tile.WaterHeight) <= int(tile.BaseHeight) {
			tile.WaterHeight = 0
		}
		return true
	}

	tile.Slope = (tile.Slope &^ SlopeMask) | slope
	if slope&SlopeDoubleHeight != 0 {
		tile.ClearanceHeight = uint8(clampHeight(int(tile.BaseHeight) + DoubleSlopeStep))
	} else if slope&SlopeAllCornersUp != 0 {
		tile.ClearanceHeight = uint8(clampHeight(int(tile.BaseHeight) + SlopeStep))
	}

	return true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
