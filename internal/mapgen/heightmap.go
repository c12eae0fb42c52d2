package mapgen

import (
	"context"
	"fmt"
	"image"
	_ "image/png" // PNG карты высот
	"io"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/observability"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// Heightmap: квадратная монохромная карта высот, значение 0..255 на пиксель
type Heightmap struct {
	Size int
	Data []uint8 // x + y*Size
}

// NewHeightmap создаёт карту высот из готовых данных
func NewHeightmap(size int, data []uint8) (*Heightmap, error) {
	if size <= 0 || len(data) != size*size {
		return nil, fmt.Errorf("%w: размер %d, данных %d", ErrInvalidHeightmap, size, len(data))
	}
	cp := make([]uint8, len(data))
	copy(cp, data)
	return &Heightmap{Size: size, Data: cp}, nil
}

// At возвращает значение пикселя
func (h *Heightmap) At(x, y int) uint8 {
	return h.Data[x+y*h.Size]
}

// LoadHeightmap декодирует изображение (PNG) в монохромную карту высот.
// Яркость пикселя: среднее по каналам RGB. Изображение должно быть квадратным;
// слишком большое обрезается до MaxMapSize.
func LoadHeightmap(r io.Reader) (*Heightmap, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeightmap, err)
	}

	b := img.Bounds()
	if b.Dx() != b.Dy() {
		return nil, fmt.Errorf("%w: ширина %d и высота %d не совпадают", ErrInvalidHeightmap, b.Dx(), b.Dy())
	}

	size := b.Dx()
	if size > MaxMapSize {
		logging.GetMapgenLogger().Warn("карта высот %dx%d слишком большая, обрезана до %d", size, size, MaxMapSize)
		size = MaxMapSize
	}

	hm := &Heightmap{Size: size, Data: make([]uint8, size*size)}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			hm.Data[x+y*size] = uint8(((cr >> 8) + (cg >> 8) + (cb >> 8)) / 3)
		}
	}

	logging.GetMapgenLogger().Debug("карта высот загружена: формат=%s размер=%d", format, size)
	return hm, nil
}

// blur размывает карту окном 3x3 strength раз; края дублируются
func (h *Heightmap) blur(strength int) {
	dest := make([]uint8, len(h.Data))
	for i := 0; i < strength; i++ {
		for y := 0; y < h.Size; y++ {
			for x := 0; x < h.Size; x++ {
				sum := 0
				for dx := -1; dx <= 1; dx++ {
					for dy := -1; dy <= 1; dy++ {
						rx := clamp(x+dx, 0, h.Size-1)
						ry := clamp(y+dy, 0, h.Size-1)
						sum += int(h.Data[rx+ry*h.Size])
					}
				}
				dest[x+y*h.Size] = uint8(sum / 9)
			}
		}
		copy(h.Data, dest)
	}
}

// bounds возвращает минимальное и максимальное значение
func (h *Heightmap) bounds() (lo, hi uint8) {
	lo, hi = 255, 0
	for _, v := range h.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// GenerateFromHeightmap строит карту по карте высот.
// Карта получает рамку в один тайл, оси X и Y карты высот меняются местами.
func (g *Generator) GenerateFromHeightmap(ctx context.Context, src *Heightmap, s Settings) (*Result, error) {
	if src == nil || src.Size <= 0 || len(src.Data) != src.Size*src.Size {
		return nil, fmt.Errorf("%w: карта высот не загружена", ErrInvalidHeightmap)
	}
	if s.High <= s.Low {
		return nil, fmt.Errorf("%w: нижняя и верхняя границы совпадают", ErrInvalidSettings)
	}

	ctx, span := observability.Tracer().Start(ctx, "mapgen.GenerateFromHeightmap")
	defer span.End()

	start := time.Now()
	seed := g.seed(s)
	rng := rand.New(rand.NewSource(seed))
	surface, edge := s.resolveStyles(rng)

	// Работаем с копией, исходник остаётся нетронутым
	hm := &Heightmap{Size: src.Size, Data: append([]uint8(nil), src.Data...)}
	mapSize := hm.Size + 2
	grid := initMap(mapSize, 0, surface, edge)
	span.SetAttributes(attribute.Int("map.size", mapSize))

	if s.SmoothHeightmap {
		hm.blur(s.Strength)
	}

	minValue, maxValue := uint8(0), uint8(255)
	if s.Normalize {
		minValue, maxValue = hm.bounds()
		if minValue == maxValue {
			return nil, fmt.Errorf("%w: нельзя нормализовать плоскую карту", ErrInvalidHeightmap)
		}
	}

	rangeIn := float64(maxValue - minValue)
	rangeOut := float64(s.High - s.Low)

	for y := 0; y < hm.Size; y++ {
		for x := 0; x < hm.Size; x++ {
			v := int(hm.At(x, y))
			v = clamp(v, int(minValue), int(maxValue))
			h := int(float64(v-int(minValue))/rangeIn*rangeOut) + s.Low
			h = h / 2 * 2

			t := grid.TileAt(terrain.TileCoord{X: y + 1, Y: x + 1})
			t.SetHeight(h)
			if h < s.WaterLevel {
				t.WaterHeight = uint16(s.WaterLevel)
			}
		}
	}

	res := &Result{Grid: grid, Seed: seed, Surface: surface, Edge: edge}

	if s.Smooth {
		passes, changed, err := g.newSmoother(grid).SmoothTilesUntilStable(ctx, 1, 1, hm.Size+1, hm.Size+1, s.MaxPasses)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("сглаживание карты высот: %w", err)
		}
		res.SmoothPasses = passes
		span.SetAttributes(attribute.Int("smooth.passes", passes), attribute.Int("smooth.changed", changed))
	}

	g.logger.Info("карта %dx%d построена по карте высот за %s: проходов=%d",
		mapSize, mapSize, time.Since(start), res.SmoothPasses)
	return res, nil
}

// GenerateFromHeightmap строит карту по карте высот генератором по умолчанию
func GenerateFromHeightmap(ctx context.Context, hm *Heightmap, s Settings) (*Result, error) {
	return NewGenerator().GenerateFromHeightmap(ctx, hm, s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
