package game

import (
	"testing"

	"github.com/annel0/mmo-netcode/internal/vec"
)

func TestHistoryPushAndCap(t *testing.T) {
	h := NewHistory(3)

	for i := 0; i < 5; i++ {
		h.Push(vec.Vec2{X: i * 10, Y: 0}, float64(i))
	}

	if h.Len() != 3 {
		t.Fatalf("Ёмкость истории: ожидалось 3 записи, получено %d", h.Len())
	}

	// Самые старые записи вытеснены
	if pos, _ := h.At(0); pos.X != 20 {
		t.Errorf("Запрос до начала истории: ожидалась старейшая позиция x=20, получена x=%d", pos.X)
	}

	latest, ok := h.Latest()
	if !ok || latest.Pos.X != 40 {
		t.Errorf("Свежая запись: ожидалась x=40, получена %+v", latest)
	}
}

func TestHistoryAt(t *testing.T) {
	h := NewHistory(10)
	h.Push(vec.Vec2{X: 100, Y: 100}, 1.0)
	h.Push(vec.Vec2{X: 200, Y: 200}, 2.0)

	t.Run("До начала истории", func(t *testing.T) {
		pos, ok := h.At(0.5)
		if !ok || pos != (vec.Vec2{X: 100, Y: 100}) {
			t.Errorf("Ожидалась старейшая позиция (100,100), получена %+v", pos)
		}
	})

	t.Run("После конца истории", func(t *testing.T) {
		pos, ok := h.At(5.0)
		if !ok || pos != (vec.Vec2{X: 200, Y: 200}) {
			t.Errorf("Ожидалась свежая позиция (200,200), получена %+v", pos)
		}
	})

	t.Run("Интерполяция между записями", func(t *testing.T) {
		pos, ok := h.At(1.5)
		if !ok || pos != (vec.Vec2{X: 150, Y: 150}) {
			t.Errorf("Ожидалась середина (150,150), получена %+v", pos)
		}
	})

	t.Run("Точное совпадение с записью", func(t *testing.T) {
		pos, ok := h.At(2.0)
		if !ok || pos != (vec.Vec2{X: 200, Y: 200}) {
			t.Errorf("Ожидалась позиция записи (200,200), получена %+v", pos)
		}
	})
}

func TestHistoryAtEmpty(t *testing.T) {
	h := NewHistory(10)
	if _, ok := h.At(1.0); ok {
		t.Error("Пустая история должна возвращать false")
	}
	if _, ok := h.Latest(); ok {
		t.Error("Latest на пустой истории должен возвращать false")
	}
}
