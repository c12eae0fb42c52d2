package terrain

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-terrain/internal/logging"
)

type recordingObserver struct {
	mu          sync.Mutex
	passes      int
	raisedPass  int
	tileCalls   int
	tileChanged int
}

func (o *recordingObserver) ObserveRegionPass(visited, raisedTiles, slopeChanges int, raised bool, took time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.passes++
	if raised {
		o.raisedPass++
	}
}

func (o *recordingObserver) ObserveTileSmooth(changed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tileCalls++
	if changed {
		o.tileChanged++
	}
}

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("terrain", &bytes.Buffer{}, logging.ERROR)
}

func TestSmoother_SmoothUntilStable(t *testing.T) {
	g := randomGrid(3, 20, 20, 60)
	obs := &recordingObserver{}
	s := NewSmoother(g, WithObserver(obs), WithLogger(quietLogger()))

	passes, err := s.SmoothUntilStable(context.Background(), 0, 0, 20, 20, 0)
	require.NoError(t, err)
	assert.Greater(t, passes, 1)

	assert.Empty(t, Validate(g, 0, 0, 20, 20))
	assert.False(t, RegionSmooth(g, 0, 0, 20, 20), "после сходимости проход ничего не поднимает")

	stats := s.Stats()
	assert.Equal(t, uint64(passes), stats.RegionPasses)
	assert.Equal(t, uint64(passes*400), stats.TilesVisited)
	assert.Greater(t, stats.TilesRaised, uint64(0))

	assert.Equal(t, passes, obs.passes)
	assert.Equal(t, passes-1, obs.raisedPass, "последний проход ничего не поднял")
}

func TestSmoother_NotConverged(t *testing.T) {
	g := gridFromRows([][]int{
		{10, 10, 10},
		{10, 20, 10},
		{10, 10, 10},
	})
	s := NewSmoother(g, WithLogger(quietLogger()))

	passes, err := s.SmoothUntilStable(context.Background(), 0, 0, 3, 3, 1)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, 1, passes)

	passes, err = s.SmoothUntilStable(context.Background(), 0, 0, 3, 3, 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, passes, "второй вызов сразу видит устойчивую карту")
}

func TestSmoother_ContextCancelled(t *testing.T) {
	g := randomGrid(9, 8, 8, 40)
	s := NewSmoother(g, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	passes, err := s.SmoothUntilStable(ctx, 0, 0, 8, 8, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, passes)

	_, _, err = s.SmoothTilesUntilStable(ctx, 0, 0, 8, 8, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSmoother_SmoothTilesUntilStable(t *testing.T) {
	g := NewFlatGrid(8, 8, 10)
	g.TileAt(TileCoord{X: 4, Y: 4}).SetHeight(16)
	g.TileAt(TileCoord{X: 1, Y: 6}).SetHeight(12)

	obs := &recordingObserver{}
	s := NewSmoother(g, WithObserver(obs), WithLogger(quietLogger()))

	passes, total, err := s.SmoothTilesUntilStable(context.Background(), 0, 0, 8, 8, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, passes, 2)
	assert.Greater(t, total, 0)

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.False(t, SingleTileSmooth(g, TileCoord{X: x, Y: y}), "тайл (%d,%d)", x, y)
		}
	}

	stats := s.Stats()
	assert.Equal(t, uint64(passes*64), stats.TileSmooths)
	assert.Equal(t, uint64(total), stats.TilesChanged)
	assert.Equal(t, passes*64, obs.tileCalls)
	assert.Equal(t, total, obs.tileChanged)
}

func TestSmoother_SmoothAround(t *testing.T) {
	g := NewFlatGrid(5, 5, 10)
	s := NewSmoother(g, WithLogger(quietLogger()))

	g.TileAt(TileCoord{X: 2, Y: 2}).SetHeight(12)
	changed := s.SmoothAround(TileCoord{X: 2, Y: 2})

	assert.Equal(t, 8, changed, "все соседи наклоняются к поднятому тайлу")
	assert.Equal(t, SlopeFlat, slopeAt(g, 2, 2))
	assert.Equal(t, SlopeNESideUp, slopeAt(g, 1, 2))
	assert.Equal(t, SlopeNCornerUp, slopeAt(g, 1, 1))
	assert.Equal(t, SlopeFlat, slopeAt(g, 0, 0), "дальние тайлы не трогаются")

	// На краю карты отсутствующие соседи пропускаются
	assert.NotPanics(t, func() { s.SmoothAround(TileCoord{X: 0, Y: 0}) })
}

func TestNewSmoother_DefaultLogger(t *testing.T) {
	g := NewFlatGrid(1, 1, 0)
	s := NewSmoother(g)
	assert.NotNil(t, s.logger)
	assert.Same(t, g, s.Grid().(*MemoryGrid))
}
