package physics

import (
	"github.com/annel0/mmo-netcode/internal/vec"
)

// Direction задаёт направление одного дискретного шага игрока
type Direction uint8

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

// String возвращает читаемое имя направления
func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "unknown"
	}
}

// Valid сообщает, является ли значение известным направлением
func (d Direction) Valid() bool {
	return d <= DirRight
}

// Board описывает границы игрового поля. Нижняя полоса высотой UIMargin
// зарезервирована под панель клиента, игроки туда не заходят.
type Board struct {
	Width      int
	Height     int
	PlayerSize int
	UIMargin   int
}

// MinX возвращает минимальную допустимую координату центра игрока
func (b Board) MinX() int { return b.PlayerSize }

// MaxX возвращает максимальную допустимую координату центра игрока
func (b Board) MaxX() int { return b.Width - b.PlayerSize }

// MinY возвращает минимальную допустимую координату центра игрока
func (b Board) MinY() int { return b.PlayerSize }

// MaxY возвращает максимальную допустимую координату центра игрока
func (b Board) MaxY() int { return b.Height - b.PlayerSize - b.UIMargin }

// Clamp приводит произвольную позицию к допустимым границам поля
func (b Board) Clamp(pos vec.Vec2) vec.Vec2 {
	pos.X = min(max(pos.X, b.MinX()), b.MaxX())
	pos.Y = min(max(pos.Y, b.MinY()), b.MaxY())
	return pos
}

// Contains проверяет, лежит ли позиция в допустимых границах
func (b Board) Contains(pos vec.Vec2) bool {
	return pos.X >= b.MinX() && pos.X <= b.MaxX() &&
		pos.Y >= b.MinY() && pos.Y <= b.MaxY()
}

// ApplyDirection применяет один шаг движения с прижатием к границам поля.
// Сервер и клиентское предсказание обязаны вызывать именно эту функцию:
// любое расхождение в правиле перемещения превращает шум предсказания
// в систематическую ошибку, которую reconciliation не устраняет.
func ApplyDirection(pos vec.Vec2, dir Direction, speed int, board Board) vec.Vec2 {
	switch dir {
	case DirUp:
		pos.Y = max(pos.Y-speed, board.MinY())
	case DirDown:
		pos.Y = min(pos.Y+speed, board.MaxY())
	case DirLeft:
		pos.X = max(pos.X-speed, board.MinX())
	case DirRight:
		pos.X = min(pos.X+speed, board.MaxX())
	}
	return pos
}
