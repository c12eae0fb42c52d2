package terrain

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-terrain/internal/logging"
)

// ErrNotConverged возвращается, когда сглаживание не сошлось за отведённое число проходов
var ErrNotConverged = errors.New("terrain: сглаживание не сошлось")

// Observer получает уведомления о проходах сглаживания (метрики, трассировка)
type Observer interface {
	ObserveRegionPass(visited, raisedTiles, slopeChanges int, raised bool, took time.Duration)
	ObserveTileSmooth(changed bool)
}

// Stats: накопленная статистика сглаживателя
type Stats struct {
	RegionPasses uint64
	TileSmooths  uint64
	TilesVisited uint64
	TilesRaised  uint64
	SlopeChanges uint64
	TilesChanged uint64
}

// Smoother: сглаживатель карты высот поверх Grid.
//
// Smoother не синхронизирует доступ к карте: вызывающий код отвечает
// за эксклюзивный доступ на время вызова.
type Smoother struct {
	grid     Grid
	observer Observer
	logger   *logging.Logger

	regionPasses uint64
	tileSmooths  uint64
	tilesVisited uint64
	tilesRaised  uint64
	slopeChanges uint64
	tilesChanged uint64
}

// SmootherOption настраивает Smoother
type SmootherOption func(*Smoother)

// WithObserver подключает наблюдателя
func WithObserver(o Observer) SmootherOption {
	return func(s *Smoother) { s.observer = o }
}

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) SmootherOption {
	return func(s *Smoother) { s.logger = l }
}

// NewSmoother создаёт сглаживатель для карты g
func NewSmoother(g Grid, opts ...SmootherOption) *Smoother {
	s := &Smoother{grid: g}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetTerrainLogger()
	}
	return s
}

// Grid возвращает обрабатываемую карту
func (s *Smoother) Grid() Grid {
	return s.grid
}

// RegionSmooth: один проход по области, см. пакетную функцию RegionSmooth
func (s *Smoother) RegionSmooth(left, top, right, bottom int) bool {
	start := time.Now()
	res := regionSmooth(s.grid, left, top, right, bottom)
	took := time.Since(start)

	atomic.AddUint64(&s.regionPasses, 1)
	atomic.AddUint64(&s.tilesVisited, uint64(res.visited))
	atomic.AddUint64(&s.tilesRaised, uint64(res.raisedTiles))
	atomic.AddUint64(&s.slopeChanges, uint64(res.slopeChanges))

	if s.observer != nil {
		s.observer.ObserveRegionPass(res.visited, res.raisedTiles, res.slopeChanges, res.raisedLand, took)
	}
	s.logger.Trace("region pass: visited=%d raised=%d slopes=%d took=%s",
		res.visited, res.raisedTiles, res.slopeChanges, took)

	return res.raisedLand
}

// SingleTileSmooth: сглаживание одного тайла, см. пакетную функцию SingleTileSmooth
func (s *Smoother) SingleTileSmooth(c TileCoord) bool {
	changed := SingleTileSmooth(s.grid, c)

	atomic.AddUint64(&s.tileSmooths, 1)
	if changed {
		atomic.AddUint64(&s.tilesChanged, 1)
	}
	if s.observer != nil {
		s.observer.ObserveTileSmooth(changed)
	}
	return changed
}

// SmoothUntilStable повторяет RegionSmooth, пока проход поднимает хоть один тайл.
// maxPasses <= 0 снимает ограничение. Возвращает число выполненных проходов.
func (s *Smoother) SmoothUntilStable(ctx context.Context, left, top, right, bottom, maxPasses int) (int, error) {
	passes := 0
	for {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		if maxPasses > 0 && passes >= maxPasses {
			s.logger.Warn("сглаживание области не сошлось за %d проходов", passes)
			return passes, ErrNotConverged
		}

		passes++
		if !s.RegionSmooth(left, top, right, bottom) {
			logging.LogRegion(s.logger, "region stable", left, top, right, bottom, passes > 1)
			return passes, nil
		}
	}
}

// SmoothTilesUntilStable применяет SingleTileSmooth к каждому тайлу области,
// пока полный проход не перестанет что-либо менять.
// Возвращает число проходов и суммарное число изменений.
func (s *Smoother) SmoothTilesUntilStable(ctx context.Context, left, top, right, bottom, maxPasses int) (int, int, error) {
	passes := 0
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return passes, total, err
		}
		if maxPasses > 0 && passes >= maxPasses {
			s.logger.Warn("потайловое сглаживание не сошлось за %d проходов", passes)
			return passes, total, ErrNotConverged
		}

		passes++
		changed := 0
		for y := top; y < bottom; y++ {
			for x := left; x < right; x++ {
				if s.SingleTileSmooth(TileCoord{X: x, Y: y}) {
					changed++
				}
			}
		}
		total += changed

		if changed == 0 {
			s.logger.Debug("потайловое сглаживание сошлось: проходов=%d изменений=%d", passes, total)
			return passes, total, nil
		}
	}
}

// SmoothAround сглаживает тайл и его 8 соседей после точечной правки.
// Возвращает число изменённых тайлов.
func (s *Smoother) SmoothAround(c TileCoord) int {
	changed := 0
	if s.SingleTileSmooth(c) {
		changed++
	}
	for _, d := range Directions() {
		if s.SingleTileSmooth(c.Add(d.Offset())) {
			changed++
		}
	}
	return changed
}

// Stats возвращает снимок статистики
func (s *Smoother) Stats() Stats {
	return Stats{
		RegionPasses: atomic.LoadUint64(&s.regionPasses),
		TileSmooths:  atomic.LoadUint64(&s.tileSmooths),
		TilesVisited: atomic.LoadUint64(&s.tilesVisited),
		TilesRaised:  atomic.LoadUint64(&s.tilesRaised),
		SlopeChanges: atomic.LoadUint64(&s.slopeChanges),
		TilesChanged: atomic.LoadUint64(&s.tilesChanged),
	}
}
