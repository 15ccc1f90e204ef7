package vec

import "math"

// Vec2 представляет 2D координаты на игровом поле
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Lerp линейно интерполирует к другой точке, t ожидается в [0,1].
// Дробная часть отбрасывается так же, как при восстановлении позиции
// из истории на сервере.
func (v Vec2) Lerp(other Vec2, t float64) Vec2 {
	return Vec2{
		X: int(float64(v.X) + float64(other.X-v.X)*t),
		Y: int(float64(v.Y) + float64(other.Y-v.Y)*t),
	}
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
