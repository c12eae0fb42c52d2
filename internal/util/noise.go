package util

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// FractalNoise: фрактальный шум Перлина (fBm) с собственным сидом.
// Каждый генератор карты создаёт свой экземпляр, глобального состояния нет.
type FractalNoise struct {
	perlin    *perlin.Perlin
	frequency float64
}

// NewFractalNoise создаёт генератор шума.
//
// octaves: количество октав, frequency: базовая частота,
// lacunarity: множитель частоты между октавами,
// persistence: множитель амплитуды между октавами (0..1).
func NewFractalNoise(seed int64, octaves int, frequency, lacunarity, persistence float64) *FractalNoise {
	if octaves < 1 {
		octaves = 1
	}
	if lacunarity <= 0 {
		lacunarity = 2.0
	}
	if persistence <= 0 || persistence > 1 {
		persistence = 0.65
	}
	if frequency <= 0 {
		frequency = 1.0
	}

	// go-perlin делит амплитуду на alpha и умножает частоту на beta в каждой октаве
	alpha := 1.0 / persistence
	beta := lacunarity

	return &FractalNoise{
		perlin:    perlin.NewPerlin(alpha, beta, int32(octaves), seed),
		frequency: frequency,
	}
}

// Sample возвращает значение шума в точке (x, y), приведённое к [0, 1]
func (n *FractalNoise) Sample(x, y float64) float64 {
	v := n.perlin.Noise2D(x*n.frequency, y*n.frequency)
	return Clamp01((v + 1.0) / 2.0)
}

// Clamp01 ограничивает значение отрезком [0, 1]
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
