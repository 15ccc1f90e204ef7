// Package interpolation сглаживает отображение чужих игроков:
// их снапшоты приходят с опозданием и вперемешку, поэтому позиция
// рисуется с небольшой задержкой между двумя буферизованными точками.
package interpolation

import (
	"github.com/annel0/mmo-netcode/internal/vec"
)

const (
	// DefaultCap ёмкость буфера снапшотов одного игрока
	DefaultCap = 30

	// DefaultDelay задержка отрисовки в секундах. Плата за плавность:
	// чужие игроки отображаются чуть в прошлом.
	DefaultDelay = 0.016
)

type sample struct {
	pos       vec.Vec2
	timestamp float64
	sequence  uint32
}

// Buffer накапливает снапшоты позиций одного чужого игрока
type Buffer struct {
	samples      []sample
	cap          int
	delay        float64
	lastSequence uint32
	lastPos      vec.Vec2
	hasLast      bool
}

// NewBuffer создаёт буфер с заданной ёмкостью и задержкой отрисовки
func NewBuffer(capacity int, delay float64) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Buffer{
		samples: make([]sample, 0, capacity),
		cap:     capacity,
		delay:   delay,
	}
}

// NewDefaultBuffer создаёт буфер с параметрами по умолчанию
func NewDefaultBuffer() *Buffer {
	return NewBuffer(DefaultCap, DefaultDelay)
}

// AddPosition добавляет снапшот позиции. Номера не больше последнего
// принятого отбрасываются: сеть умеет дублировать и переупорядочивать
// датаграммы. Старейшие записи вытесняются при переполнении.
func (b *Buffer) AddPosition(pos vec.Vec2, timestamp float64, sequence uint32) {
	if sequence <= b.lastSequence {
		return
	}
	b.lastSequence = sequence

	b.samples = append(b.samples, sample{pos: pos, timestamp: timestamp, sequence: sequence})
	for len(b.samples) > b.cap {
		b.samples = b.samples[1:]
	}

	b.lastPos = pos
	b.hasLast = true
}

// InterpolatedPosition возвращает позицию на момент now минус задержка
// отрисовки. Меньше двух снапшотов - последняя известная позиция.
// За пределами буфера возвращается крайняя запись, экстраполяции нет.
func (b *Buffer) InterpolatedPosition(now float64) (vec.Vec2, bool) {
	if len(b.samples) < 2 {
		return b.lastPos, b.hasLast
	}

	target := now - b.delay

	var prev, next *sample
	for i := range b.samples {
		if b.samples[i].timestamp <= target {
			prev = &b.samples[i]
		} else {
			next = &b.samples[i]
			break
		}
	}

	switch {
	case prev != nil && next != nil:
		t := (target - prev.timestamp) / (next.timestamp - prev.timestamp)
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		return prev.pos.Lerp(next.pos, t), true
	case prev != nil:
		return prev.pos, true
	case next != nil:
		return next.pos, true
	default:
		return b.lastPos, b.hasLast
	}
}

// Len возвращает число буферизованных снапшотов
func (b *Buffer) Len() int {
	return len(b.samples)
}

// LastSequence возвращает последний принятый номер
func (b *Buffer) LastSequence() uint32 {
	return b.lastSequence
}
