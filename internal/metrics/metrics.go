// Package metrics экспортирует работу сглаживателя рельефа в Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/mmo-terrain/internal/terrain"
)

const namespace = "terrain"

// SmoothingMetrics реализует terrain.Observer поверх Prometheus.
//
// Метрики:
// * terrain_region_passes_total: проходы RegionSmooth
// * terrain_tiles_visited_total: посещённые тайлы
// * terrain_tiles_raised_total: тайлы, поднятые после схлопывания углов
// * terrain_slope_changes_total: изменения маски уклона
// * terrain_tile_smooths_total{changed}: вызовы SingleTileSmooth
// * terrain_region_pass_duration_seconds: histogram длительности прохода
type SmoothingMetrics struct {
	regionPasses prometheus.Counter
	tilesVisited prometheus.Counter
	tilesRaised  prometheus.Counter
	slopeChanges prometheus.Counter
	tileSmooths  *prometheus.CounterVec
	passDuration prometheus.Histogram
}

var _ terrain.Observer = (*SmoothingMetrics)(nil)

// NewSmoothingMetrics создаёт метрики и регистрирует их в reg
func NewSmoothingMetrics(reg prometheus.Registerer) (*SmoothingMetrics, error) {
	m := &SmoothingMetrics{
		regionPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_passes_total",
			Help:      "Число проходов сглаживания области.",
		}),
		tilesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_visited_total",
			Help:      "Число тайлов, посещённых при сглаживании области.",
		}),
		tilesRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_raised_total",
			Help:      "Число тайлов, поднятых на ступень из-за всех поднятых углов.",
		}),
		slopeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slope_changes_total",
			Help:      "Число изменений маски уклона.",
		}),
		tileSmooths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_smooths_total",
			Help:      "Вызовы сглаживания одного тайла.",
		}, []string{"changed"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "region_pass_duration_seconds",
			Help:      "Длительность одного прохода сглаживания области.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.regionPasses, m.tilesVisited, m.tilesRaised, m.slopeChanges, m.tileSmooths, m.passDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRegionPass учитывает один проход RegionSmooth
func (m *SmoothingMetrics) ObserveRegionPass(visited, raisedTiles, slopeChanges int, raised bool, took time.Duration) {
	m.regionPasses.Inc()
	m.tilesVisited.Add(float64(visited))
	m.tilesRaised.Add(float64(raisedTiles))
	m.slopeChanges.Add(float64(slopeChanges))
	m.passDuration.Observe(took.Seconds())
}

// ObserveTileSmooth учитывает один вызов SingleTileSmooth
func (m *SmoothingMetrics) ObserveTileSmooth(changed bool) {
	if changed {
		m.tileSmooths.WithLabelValues("true").Inc()
		return
	}
	m.tileSmooths.WithLabelValues("false").Inc()
}

// Handler отдаёт метрики из g в формате Prometheus
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
