package mapgen

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/observability"
	"github.com/annel0/mmo-terrain/internal/terrain"
	"github.com/annel0/mmo-terrain/internal/util"
)

// Высоты, ниже которых (относительно уровня воды) берег засыпается песком
const beachMargin = 6

// Result: сгенерированная карта и сопутствующие данные
type Result struct {
	Grid         *terrain.MemoryGrid
	Seed         int64
	Surface      terrain.SurfaceStyle
	Edge         terrain.EdgeStyle
	Trees        []TreeSpot
	SmoothPasses int
}

// Generator строит карты рельефа
type Generator struct {
	logger        *logging.Logger
	smootherOpts  []terrain.SmootherOption
	nowForSeeding func() int64
}

// Option настраивает Generator
type Option func(*Generator)

// WithLogger задаёт логгер генератора
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithSmootherOptions передаёт опции сглаживателю (наблюдатель метрик и т.п.)
func WithSmootherOptions(opts ...terrain.SmootherOption) Option {
	return func(g *Generator) { g.smootherOpts = append(g.smootherOpts, opts...) }
}

// NewGenerator создаёт генератор
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		nowForSeeding: func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.GetMapgenLogger()
	}
	return g
}

func (g *Generator) seed(s Settings) int64 {
	if s.Seed != 0 {
		return s.Seed
	}
	return g.nowForSeeding()
}

func (g *Generator) newSmoother(grid terrain.Grid) *terrain.Smoother {
	opts := append([]terrain.SmootherOption{terrain.WithLogger(g.logger)}, g.smootherOpts...)
	return terrain.NewSmoother(grid, opts...)
}

// initMap создаёт карту с пустой рамкой шириной в один тайл.
// Тайлы рамки существуют, но лежат на нулевой высоте.
func initMap(size, height int, surface terrain.SurfaceStyle, edge terrain.EdgeStyle) *terrain.MemoryGrid {
	grid := terrain.NewMemoryGrid(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var t terrain.Tile
			if x > 0 && y > 0 && x < size-1 && y < size-1 {
				t.SetHeight(height)
				t.Surface = surface
				t.Edge = edge
			}
			_ = grid.Set(terrain.TileCoord{X: x, Y: y}, t)
		}
	}
	return grid
}

// setWaterLevel заливает водой внутренние тайлы ниже уровня
func setWaterLevel(grid *terrain.MemoryGrid, waterLevel int) int {
	flooded := 0
	for y := 1; y < grid.Height()-1; y++ {
		for x := 1; x < grid.Width()-1; x++ {
			t := grid.TileAt(terrain.TileCoord{X: x, Y: y})
			if t != nil && int(t.BaseHeight) < waterLevel {
				t.WaterHeight = uint16(waterLevel)
				flooded++
			}
		}
	}
	return flooded
}

// GenerateBlank создаёт плоскую карту заданной высоты
func (g *Generator) GenerateBlank(s Settings) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	seed := g.seed(s)
	rng := rand.New(rand.NewSource(seed))
	surface, edge := s.resolveStyles(rng)

	grid := initMap(s.MapSize, s.Height, surface, edge)
	flooded := setWaterLevel(grid, s.WaterLevel)

	g.logger.Info("пустая карта %dx%d: высота=%d затоплено=%d", s.MapSize, s.MapSize, s.Height, flooded)
	return &Result{Grid: grid, Seed: seed, Surface: surface, Edge: edge}, nil
}

// Generate строит карту по фрактальному шуму и сглаживает её до устойчивого состояния
func (g *Generator) Generate(ctx context.Context, s Settings) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "mapgen.Generate")
	defer span.End()

	seed := g.seed(s)
	rng := rand.New(rand.NewSource(seed))
	surface, edge := s.resolveStyles(rng)
	span.SetAttributes(
		attribute.Int("map.size", s.MapSize),
		attribute.Int64("map.seed", seed),
		attribute.String("map.surface", surface.String()),
	)

	start := time.Now()
	grid := initMap(s.MapSize, s.Height, surface, edge)

	// Временная карта высот в двойном разрешении
	hm := newHeightBuffer(s.MapSize * 2)
	hm.fillNoise(util.NewFractalNoise(seed, s.Octaves, s.BaseFrequency/float64(hm.size), 2.0, 0.65), s.Low, s.High)
	hm.smooth(2 + rng.Intn(6))
	hm.apply(grid)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Убираем обрывы
	passes, err := g.newSmoother(grid).SmoothUntilStable(ctx, 1, 1, s.MapSize-1, s.MapSize-1, s.MaxPasses)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("сглаживание карты: %w", err)
	}

	flooded := setWaterLevel(grid, s.WaterLevel)

	beaches := 0
	if s.Beaches {
		beach := s.beachSurface(surface, rng)
		for y := 1; y < s.MapSize-1; y++ {
			for x := 1; x < s.MapSize-1; x++ {
				t := grid.TileAt(terrain.TileCoord{X: x, Y: y})
				if int(t.BaseHeight) < s.WaterLevel+beachMargin {
					t.Surface = beach
					beaches++
				}
			}
		}
	}

	res := &Result{Grid: grid, Seed: seed, Surface: surface, Edge: edge, SmoothPasses: passes}
	if s.Trees {
		res.Trees = placeTrees(grid, rng)
	}

	span.SetAttributes(attribute.Int("smooth.passes", passes))
	g.logger.Info("карта %dx%d сгенерирована за %s: seed=%d проходов=%d затоплено=%d пляжей=%d деревьев=%d",
		s.MapSize, s.MapSize, time.Since(start), seed, passes, flooded, beaches, len(res.Trees))
	return res, nil
}

// heightBuffer: квадратная карта высот в половинных единицах
type heightBuffer struct {
	size int
	data []int
}

func newHeightBuffer(size int) *heightBuffer {
	return &heightBuffer{size: size, data: make([]int, size*size)}
}

func (h *heightBuffer) get(x, y int) int {
	if x < 0 || y < 0 || x >= h.size || y >= h.size {
		return 0
	}
	return h.data[x+y*h.size]
}

func (h *heightBuffer) set(x, y, v int) {
	if x < 0 || y < 0 || x >= h.size || y >= h.size {
		return
	}
	if v < 0 {
		v = 0
	} else if v > terrain.MaxHeight {
		v = terrain.MaxHeight
	}
	h.data[x+y*h.size] = v
}

// fillNoise заполняет буфер значениями low + noise*high
func (h *heightBuffer) fillNoise(noise *util.FractalNoise, low, high int) {
	for y := 0; y < h.size; y++ {
		for x := 0; x < h.size; x++ {
			v := noise.Sample(float64(x), float64(y))
			h.set(x, y, low+int(v*float64(high)))
		}
	}
}

// smooth усредняет внутренние точки по окну 3x3 заданное число раз
func (h *heightBuffer) smooth(iterations int) {
	cp := make([]int, len(h.data))
	for i := 0; i < iterations; i++ {
		copy(cp, h.data)
		for y := 1; y < h.size-1; y++ {
			for x := 1; x < h.size-1; x++ {
				sum := 0
				for yy := -1; yy <= 1; yy++ {
					for xx := -1; xx <= 1; xx++ {
						sum += cp[(y+yy)*h.size+(x+xx)]
					}
				}
				h.data[x+y*h.size] = sum / 9
			}
		}
	}
}

// apply переносит буфер на карту: четыре отсчёта на тайл, углы выше среднего поднимаются
func (h *heightBuffer) apply(grid *terrain.MemoryGrid) {
	mapSize := h.size / 2
	for y := 1; y < mapSize-1; y++ {
		for x := 1; x < mapSize-1; x++ {
			hx, hy := x*2, y*2
			q00 := h.get(hx, hy)
			q01 := h.get(hx, hy+1)
			q10 := h.get(hx+1, hy)
			q11 := h.get(hx+1, hy+1)
			avg := (q00 + q01 + q10 + q11) / 4

			t := grid.TileAt(terrain.TileCoord{X: x, Y: y})
			t.SetHeight(max(2, avg*2))

			slope := terrain.SlopeFlat
			if q00 > avg {
				slope |= terrain.SlopeSCornerUp
			}
			if q01 > avg {
				slope |= terrain.SlopeWCornerUp
			}
			if q10 > avg {
				slope |= terrain.SlopeECornerUp
			}
			if q11 > avg {
				slope |= terrain.SlopeNCornerUp
			}
			t.Slope = slope
		}
	}
}

// GenerateBlank создаёт плоскую карту генератором по умолчанию
func GenerateBlank(s Settings) (*Result, error) {
	return NewGenerator().GenerateBlank(s)
}

// Generate строит карту по шуму генератором по умолчанию
func Generate(ctx context.Context, s Settings) (*Result, error) {
	return NewGenerator().Generate(ctx, s)
}
