package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var centre = TileCoord{X: 1, Y: 1}

func setHeight(g *MemoryGrid, d Direction, h int) {
	g.TileAt(centre.Add(d.Offset())).SetHeight(h)
}

func TestSingleTileSmooth_OneHigherNeighbour(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirE, 12)

	changed := SingleTileSmooth(g, centre)

	require.True(t, changed)
	tile := g.TileAt(centre)
	assert.Equal(t, SlopeECornerUp, tile.Slope, "поднимается только угол в сторону соседа")
	assert.Equal(t, uint8(10), tile.BaseHeight, "базовая высота не меняется")
	assert.Equal(t, uint8(12), tile.ClearanceHeight)
}

func TestSingleTileSmooth_SideNeighbourRaisesTwoCorners(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirNE, 11)

	require.True(t, SingleTileSmooth(g, centre))
	assert.Equal(t, SlopeNESideUp, g.TileAt(centre).Slope, "любая положительная разница голосует")
}

func TestSingleTileSmooth_NoChangeWhenSlopeMatches(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirE, 12)
	require.True(t, SingleTileSmooth(g, centre))

	before := g.Clone()
	assert.False(t, SingleTileSmooth(g, centre))
	assert.True(t, before.Equal(g))
}

func TestSingleTileSmooth_FlatTileStaysFlat(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirS, 6) // ниже: не голосует

	assert.False(t, SingleTileSmooth(g, centre))
	assert.Equal(t, SlopeFlat, g.TileAt(centre).Slope)
}

func TestSingleTileSmooth_AllCornersCollapse(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	for _, d := range []Direction{DirN, DirE, DirS, DirW} {
		setHeight(g, d, 12)
	}
	g.TileAt(centre).WaterHeight = 11

	require.True(t, SingleTileSmooth(g, centre))

	tile := g.TileAt(centre)
	assert.Equal(t, SlopeFlat, tile.Slope)
	assert.Equal(t, uint8(12), tile.BaseHeight)
	assert.Equal(t, uint8(12), tile.ClearanceHeight)
	assert.Equal(t, uint16(0), tile.WaterHeight, "вода ниже новой поверхности убирается")
}

func TestSingleTileSmooth_CollapseKeepsDeepWater(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	for _, d := range []Direction{DirN, DirE, DirS, DirW} {
		setHeight(g, d, 12)
	}
	g.TileAt(centre).WaterHeight = 16

	require.True(t, SingleTileSmooth(g, centre))
	assert.Equal(t, uint16(16), g.TileAt(centre).WaterHeight)
}

func TestSingleTileSmooth_DoubleHeightCorner(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirN, 12)
	setHeight(g, DirS, 12)
	setHeight(g, DirE, 14)

	require.True(t, SingleTileSmooth(g, centre))

	tile := g.TileAt(centre)
	assert.Equal(t, SlopeWCornerDn|SlopeDoubleHeight, tile.Slope)
	assert.Equal(t, uint8(10), tile.BaseHeight)
	assert.Equal(t, uint8(14), tile.ClearanceHeight)
	assert.Equal(t, 14, tile.CornerHeight(CornerE))
	assert.Equal(t, 10, tile.CornerHeight(CornerW))
}

func TestSingleTileSmooth_ThreeCornersWithoutSteepNeighbour(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	setHeight(g, DirN, 12)
	setHeight(g, DirS, 12)
	setHeight(g, DirE, 12)

	require.True(t, SingleTileSmooth(g, centre))
	assert.Equal(t, SlopeWCornerDn, g.TileAt(centre).Slope)
	assert.Equal(t, uint8(12), g.TileAt(centre).ClearanceHeight)
}

func TestSingleTileSmooth_AbsentTileIsNoop(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	g.Remove(centre)
	before := g.Clone()

	assert.False(t, SingleTileSmooth(g, centre))
	assert.False(t, SingleTileSmooth(g, TileCoord{X: 10, Y: -4}))
	assert.True(t, before.Equal(g), "никаких побочных эффектов")
}

func TestSingleTileSmooth_AbsentNeighboursAreSameHeight(t *testing.T) {
	g := NewFlatGrid(1, 1, 40)

	assert.False(t, SingleTileSmooth(g, TileCoord{}), "край карты не даёт наклона")

	edge := NewFlatGrid(2, 1, 10)
	edge.TileAt(TileCoord{X: 1, Y: 0}).SetHeight(12)
	require.True(t, SingleTileSmooth(edge, TileCoord{X: 0, Y: 0}))
	assert.Equal(t, SlopeNESideUp, edge.TileAt(TileCoord{X: 0, Y: 0}).Slope)
}

func TestSingleTileSmooth_ClearsStaleSlope(t *testing.T) {
	g := NewFlatGrid(3, 3, 10)
	tile := g.TileAt(centre)
	tile.Slope = SlopeNCornerUp
	tile.ClearanceHeight = 12

	require.True(t, SingleTileSmooth(g, centre))
	assert.Equal(t, SlopeFlat, tile.Slope)
	assert.Empty(t, Validate(g, 0, 0, 3, 3))
}
