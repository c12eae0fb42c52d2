package vec

import "math"

// Vec2 представляет 2D координаты тайла
type Vec2 struct {
	X, Y int
}

// Add возвращает сумму векторов
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Offset возвращает координаты, сдвинутые на (dx, dy)
func (v Vec2) Offset(dx, dy int) Vec2 {
	return Vec2{X: v.X + dx, Y: v.Y + dy}
}

// Swap меняет оси местами
func (v Vec2) Swap() Vec2 {
	return Vec2{X: v.Y, Y: v.X}
}

// In проверяет попадание в полуоткрытый прямоугольник [left,right) x [top,bottom)
func (v Vec2) In(left, top, right, bottom int) bool {
	return v.X >= left && v.X < right && v.Y >= top && v.Y < bottom
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// ChebyshevTo возвращает расстояние по максимуму осей (число шагов короля)
func (v Vec2) ChebyshevTo(other Vec2) int {
	dx := v.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := v.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
