package physics

import (
	"github.com/annel0/mmo-netcode/internal/vec"
)

// BoxCollider представляет прямоугольный коллайдер игрока
type BoxCollider struct {
	Width  int // Ширина в пикселях поля
	Height int // Высота в пикселях поля
}

// NewBoxCollider создаёт новый коллайдер с указанными размерами
func NewBoxCollider(width, height int) *BoxCollider {
	return &BoxCollider{
		Width:  width,
		Height: height,
	}
}

// PlayerCollider возвращает коллайдер игрока стандартного размера
func PlayerCollider(playerSize int) *BoxCollider {
	return NewBoxCollider(playerSize*2, playerSize*2)
}

// IsPointInside проверяет, находится ли точка внутри коллайдера
func (bc *BoxCollider) IsPointInside(colliderPos, point vec.Vec2) bool {
	halfWidth := bc.Width / 2
	halfHeight := bc.Height / 2

	return point.X >= colliderPos.X-halfWidth &&
		point.X < colliderPos.X+halfWidth &&
		point.Y >= colliderPos.Y-halfHeight &&
		point.Y < colliderPos.Y+halfHeight
}

// CheckBoxCollision проверяет перекрытие двух коллайдеров.
// Используется клиентом как визуальная диагностика соприкосновения;
// авторитетная историческая проверка на сервере сравнивает
// восстановленные позиции на точное совпадение.
func CheckBoxCollision(pos1 vec.Vec2, collider1 *BoxCollider, pos2 vec.Vec2, collider2 *BoxCollider) bool {
	halfWidth1 := collider1.Width / 2
	halfHeight1 := collider1.Height / 2
	halfWidth2 := collider2.Width / 2
	halfHeight2 := collider2.Height / 2

	return pos1.X+halfWidth1 > pos2.X-halfWidth2 &&
		pos1.X-halfWidth1 < pos2.X+halfWidth2 &&
		pos1.Y+halfHeight1 > pos2.Y-halfHeight2 &&
		pos1.Y-halfHeight1 < pos2.Y+halfHeight2
}
