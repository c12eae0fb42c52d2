package terrain

// Диагональные соседи в порядке обхода углов при сглаживании области.
// Для каждого угла хранится его компасный угол тайла.
var regionCorners = [4]struct {
	dx, dy int
	corner Corner
}{
	{-1, -1, CornerS},
	{1, -1, CornerE},
	{1, 1, CornerN},
	{-1, 1, CornerW},
}

// Флаги, которые даёт более высокий сосед при выводе наклона
var regionNeighbourFlags = [8]struct {
	dir  Direction
	flag Slope
}{
	{DirN, SlopeNCornerUp},
	{DirW, SlopeWCornerUp},
	{DirE, SlopeECornerUp},
	{DirS, SlopeSCornerUp},
	{DirNE, SlopeNESideUp},
	{DirSW, SlopeSWSideUp},
	{DirSE, SlopeSESideUp},
	{DirNW, SlopeNWSideUp},
}

// regionResult: итог одного прохода по области
type regionResult struct {
	raisedLand   bool
	visited      int
	raisedTiles  int
	slopeChanges int
}

// RegionSmooth выполняет один проход сглаживания по [left,right) x [top,bottom).
//
// Проход идёт построчно сверху вниз, слева направо; уже обработанные тайлы
// видны следующим. Отсутствующие соседи считаются высотой 0.
// Возвращает true, если хотя бы один тайл был поднят. Изменения только
// наклона без подъёма высоты на результат не влияют.
func RegionSmooth(g Grid, left, top, right, bottom int) bool {
	return regionSmooth(g, left, top, right, bottom).raisedLand
}

func regionSmooth(g Grid, left, top, right, bottom int) regionResult {
	var res regionResult

	for y := top; y < bottom; y++ {
		for x := left; x < right; x++ {
			c := TileCoord{X: x, Y: y}
			tile := g.TileAt(c)
			if tile == nil {
				continue
			}
			res.visited++

			before := *tile
			if smoothRegionTile(g, c, tile) {
				res.raisedLand = true
			}
			if tile.BaseHeight != before.BaseHeight {
				res.raisedTiles++
			}
			if tile.Slope != before.Slope {
				res.slopeChanges++
			}
		}
	}

	return res
}

// smoothRegionTile пересчитывает один тайл. Возвращает true при подъёме высоты.
func smoothRegionTile(g Grid, c TileCoord, tile *Tile) bool {
	raised := false
	base := func() int { return int(tile.BaseHeight) }
	raiseTo := func(h int) {
		tile.SetHeight(h)
		raised = true
	}

	tile.Slope = SlopeFlat

	// Поднимаем до высоты самого высокого соседа по оси минус шаг
	highest := base()
	for _, d := range [4]Direction{DirSW, DirNE, DirSE, DirNW} {
		highest = maxInt(highest, baseHeightAt(g, c.Add(d.Offset())))
	}
	if base() < highest-SlopeStep {
		raiseTo(highest - SlopeStep)
	}

	// Диагональные углы
	var cornerHeights [4]int
	for i, rc := range regionCorners {
		cornerHeights[i] = baseHeightAt(g, c.Offset(rc.dx, rc.dy))
	}
	highest = base()
	for _, h := range cornerHeights {
		highest = maxInt(highest, h)
	}

	doubleCorner := -1
	if highest >= base()+DoubleSlopeStep {
		count := 0
		canCompensate := true
		for i, rc := range regionCorners {
			if cornerHeights[i] != highest {
				continue
			}
			count++

			// Соседи по осям со стороны, противоположной высокому углу.
			// Если они выше тайла, крутой угол их уже не скомпенсирует.
			highestOnLowestSide := maxInt(
				baseHeightAt(g, c.Offset(-rc.dx, 0)),
				baseHeightAt(g, c.Offset(0, -rc.dy)),
			)
			if highestOnLowestSide > base() {
				raiseTo(highestOnLowestSide)
				canCompensate = false
			}
		}

		if count == 1 && canCompensate {
			if base() < highest-DoubleSlopeStep {
				raiseTo(highest - DoubleSlopeStep)
			}
			for i := range cornerHeights {
				opposite := (i + 2) % 4
				if cornerHeights[i] == highest && cornerHeights[opposite] <= cornerHeights[i]-DoubleSlopeStep {
					doubleCorner = i
					break
				}
			}
		} else if base() < highest-SlopeStep {
			raiseTo(highest - SlopeStep)
		}
	}

	if doubleCorner != -1 {
		high := regionCorners[doubleCorner].corner
		tile.Slope = high.Opposite().DownSlope() | SlopeDoubleHeight
		return raised
	}

	slope := SlopeFlat
	for _, nf := range regionNeighbourFlags {
		if baseHeightAt(g, c.Add(nf.dir.Offset())) > base() {
			slope |= nf.flag
		}
	}

	// Все четыре угла подняты: это просто плоский тайл на шаг выше
	// Схлопывание считается подъёмом, иначе цикл до стабилизации остановится раньше
	if slope == SlopeAllCornersUp {
		slope = SlopeFlat
		raiseTo(base() + SlopeStep)
	}
	tile.Slope = slope

	return raised
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
