package game

import (
	"github.com/annel0/mmo-netcode/internal/vec"
)

// PositionSample одна запись истории позиций игрока
type PositionSample struct {
	Pos       vec.Vec2
	Timestamp float64 // секунды Unix
}

// History хранит ограниченную историю позиций игрока для компенсации
// лага. Метки времени неубывающие, старые записи вытесняются при
// переполнении.
type History struct {
	samples []PositionSample
	cap     int
}

// NewHistory создаёт историю ёмкостью capacity записей
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		samples: make([]PositionSample, 0, capacity),
		cap:     capacity,
	}
}

// Push добавляет позицию с меткой времени, вытесняя самую старую
// запись при переполнении
func (h *History) Push(pos vec.Vec2, ts float64) {
	h.samples = append(h.samples, PositionSample{Pos: pos, Timestamp: ts})
	if len(h.samples) > h.cap {
		h.samples = h.samples[1:]
	}
}

// Len возвращает число записей в истории
func (h *History) Len() int {
	return len(h.samples)
}

// Latest возвращает самую свежую запись
func (h *History) Latest() (PositionSample, bool) {
	if len(h.samples) == 0 {
		return PositionSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// At восстанавливает позицию на момент ts линейной интерполяцией
// между соседними записями. За пределами истории возвращается
// ближайшая крайняя запись, экстраполяции нет. Для пустой истории
// возвращается false.
func (h *History) At(ts float64) (vec.Vec2, bool) {
	if len(h.samples) == 0 {
		return vec.Vec2{}, false
	}

	oldest := h.samples[0]
	newest := h.samples[len(h.samples)-1]
	if ts <= oldest.Timestamp {
		return oldest.Pos, true
	}
	if ts >= newest.Timestamp {
		return newest.Pos, true
	}

	for i := 0; i+1 < len(h.samples); i++ {
		a := h.samples[i]
		b := h.samples[i+1]
		if a.Timestamp <= ts && ts <= b.Timestamp {
			span := b.Timestamp - a.Timestamp
			if span <= 0 {
				return b.Pos, true
			}
			t := (ts - a.Timestamp) / span
			return a.Pos.Lerp(b.Pos, t), true
		}
	}

	return newest.Pos, true
}
