package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

func TestSmoothingMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSmoothingMetrics(reg)
	require.NoError(t, err)

	m.ObserveRegionPass(100, 2, 7, true, 3*time.Millisecond)
	m.ObserveRegionPass(100, 0, 0, false, time.Millisecond)
	m.ObserveTileSmooth(true)
	m.ObserveTileSmooth(false)
	m.ObserveTileSmooth(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.regionPasses))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.tilesVisited))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tilesRaised))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.slopeChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tileSmooths.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tileSmooths.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.passDuration))

	_, err = NewSmoothingMetrics(reg)
	assert.Error(t, err, "повторная регистрация")
}

func TestSmoothingMetrics_WithSmoother(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSmoothingMetrics(reg)
	require.NoError(t, err)

	g := terrain.NewFlatGrid(5, 5, 10)
	g.TileAt(terrain.TileCoord{X: 2, Y: 2}).SetHeight(14)

	s := terrain.NewSmoother(g, terrain.WithObserver(m))
	s.RegionSmooth(0, 0, 5, 5)
	s.SingleTileSmooth(terrain.TileCoord{X: 1, Y: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.regionPasses))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.tilesVisited))
	assert.Equal(t, float64(s.Stats().SlopeChanges), testutil.ToFloat64(m.slopeChanges))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewSmoothingMetrics(reg)
	require.NoError(t, err)
	m.ObserveRegionPass(9, 0, 1, false, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "terrain_region_passes_total 1"))
	assert.True(t, strings.Contains(body, "terrain_tiles_visited_total 9"))
}
