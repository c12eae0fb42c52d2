package mapgen

import (
	"math/rand"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

// TreeKind: группа деревьев, подходящая покрытию
type TreeKind int

const (
	TreeGrass TreeKind = iota
	TreeDesert
	TreeSnow
)

func (k TreeKind) String() string {
	switch k {
	case TreeGrass:
		return "grass"
	case TreeDesert:
		return "desert"
	case TreeSnow:
		return "snow"
	default:
		return "unknown"
	}
}

// TreeSpot: место под дерево
type TreeSpot struct {
	Coord terrain.TileCoord `json:"coord"`
	Kind  TreeKind          `json:"kind"`
}

// placeTrees выбирает сухие тайлы под деревья.
// Доля занятых тайлов случайна в пределах 10..39%, но не меньше четырёх.
func placeTrees(grid *terrain.MemoryGrid, rng *rand.Rand) []TreeSpot {
	var free []terrain.TileCoord
	for y := 1; y < grid.Height()-1; y++ {
		for x := 1; x < grid.Width()-1; x++ {
			c := terrain.TileCoord{X: x, Y: y}
			if t := grid.TileAt(c); t != nil && !t.HasWater() {
				free = append(free, c)
			}
		}
	}
	if len(free) == 0 {
		return nil
	}

	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	ratio := float64(10+rng.Intn(30)) / 100
	count := min(max(4, int(float64(len(free))*ratio)), len(free))

	spots := make([]TreeSpot, 0, count)
	for _, c := range free[:count] {
		switch grid.TileAt(c).Surface {
		case terrain.SurfaceGrass, terrain.SurfaceDirt, terrain.SurfaceGrassClumps:
			spots = append(spots, TreeSpot{Coord: c, Kind: TreeGrass})
		case terrain.SurfaceSand, terrain.SurfaceSandDark, terrain.SurfaceSandLight:
			// В пустыне деревья редкие
			if rng.Intn(4) == 0 {
				spots = append(spots, TreeSpot{Coord: c, Kind: TreeDesert})
			}
		case terrain.SurfaceIce:
			spots = append(spots, TreeSpot{Coord: c, Kind: TreeSnow})
		}
	}
	return spots
}
