package interpolation

import (
	"testing"

	"github.com/annel0/mmo-netcode/internal/vec"
)

func TestNewBuffer(t *testing.T) {
	b := NewDefaultBuffer()

	if b.Len() != 0 {
		t.Errorf("Новый буфер должен быть пустым, записей: %d", b.Len())
	}
	if b.LastSequence() != 0 {
		t.Errorf("Начальный номер должен быть 0, получен %d", b.LastSequence())
	}
	if _, ok := b.InterpolatedPosition(1.0); ok {
		t.Error("Пустой буфер не должен возвращать позицию")
	}
}

func TestAddPosition(t *testing.T) {
	b := NewDefaultBuffer()

	b.AddPosition(vec.Vec2{X: 100, Y: 200}, 1.0, 1)

	if b.Len() != 1 {
		t.Fatalf("Ожидалась 1 запись, получено %d", b.Len())
	}
	if b.LastSequence() != 1 {
		t.Errorf("Последний номер должен быть 1, получен %d", b.LastSequence())
	}
}

func TestMonotonicSequenceGate(t *testing.T) {
	b := NewDefaultBuffer()

	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 1.0, 5)

	// Запоздавший и продублированный номера отбрасываются без следа
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 1.5, 3)
	b.AddPosition(vec.Vec2{X: 300, Y: 300}, 1.7, 5)

	if b.Len() != 1 {
		t.Errorf("Буфер не должен принимать старые номера, записей: %d", b.Len())
	}
	if b.LastSequence() != 5 {
		t.Errorf("Последний номер должен остаться 5, получен %d", b.LastSequence())
	}
	if pos, _ := b.InterpolatedPosition(10.0); pos != (vec.Vec2{X: 100, Y: 100}) {
		t.Errorf("Сохранённая позиция изменилась: %+v", pos)
	}
}

func TestCapEviction(t *testing.T) {
	b := NewDefaultBuffer()

	for i := 1; i <= DefaultCap+5; i++ {
		b.AddPosition(vec.Vec2{X: i * 10, Y: i * 20}, float64(i), uint32(i))
	}

	if b.Len() != DefaultCap {
		t.Fatalf("Буфер должен быть ограничен %d записями, содержит %d", DefaultCap, b.Len())
	}

	// Остались самые свежие записи
	if b.samples[0].sequence != 6 {
		t.Errorf("Старейшая запись должна иметь номер 6, имеет %d", b.samples[0].sequence)
	}
	if b.samples[len(b.samples)-1].sequence != uint32(DefaultCap+5) {
		t.Errorf("Свежая запись должна иметь номер %d, имеет %d", DefaultCap+5, b.samples[len(b.samples)-1].sequence)
	}
}

func TestSingleSampleFallback(t *testing.T) {
	b := NewDefaultBuffer()
	pos := vec.Vec2{X: 100, Y: 200}

	b.AddPosition(pos, 1.0, 1)

	got, ok := b.InterpolatedPosition(2.0)
	if !ok || got != pos {
		t.Errorf("Единственный снапшот должен возвращаться как есть: %+v", got)
	}
}

func TestNormalInterpolation(t *testing.T) {
	b := NewDefaultBuffer()
	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 1.0, 1)
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 2.0, 2)

	// target = 1.6 - 0.016 = 1.584, доля 0.584 с усечением
	got, ok := b.InterpolatedPosition(1.6)
	if !ok || got != (vec.Vec2{X: 158, Y: 158}) {
		t.Errorf("Ожидалась позиция (158,158), получена %+v", got)
	}
}

func TestInterpolationEdges(t *testing.T) {
	b := NewDefaultBuffer()
	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 1.0, 1)
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 2.0, 2)

	t.Run("Сразу после первой записи", func(t *testing.T) {
		// target = 1.1 - 0.016 = 1.084
		got, _ := b.InterpolatedPosition(1.1)
		if got != (vec.Vec2{X: 108, Y: 108}) {
			t.Errorf("Ожидалась (108,108), получена %+v", got)
		}
	})

	t.Run("За последней записью", func(t *testing.T) {
		// target = 2.084 позади всех записей: берётся свежая, без экстраполяции
		got, _ := b.InterpolatedPosition(2.1)
		if got != (vec.Vec2{X: 200, Y: 200}) {
			t.Errorf("Ожидалась (200,200), получена %+v", got)
		}
	})
}

func TestExactTimestampBoundary(t *testing.T) {
	// Задержка 0.1: запрос в 2.1 попадает точно в метку 2.0
	b := NewBuffer(DefaultCap, 0.1)
	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 1.0, 1)
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 2.0, 2)

	got, ok := b.InterpolatedPosition(2.1)
	if !ok || got != (vec.Vec2{X: 200, Y: 200}) {
		t.Errorf("Запрос на точной метке записи должен вернуть её позицию, получена %+v", got)
	}
}

func TestTargetBeforeAllSamples(t *testing.T) {
	b := NewDefaultBuffer()
	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 2.0, 1)
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 3.0, 2)

	got, ok := b.InterpolatedPosition(1.6)
	if !ok || got != (vec.Vec2{X: 100, Y: 100}) {
		t.Errorf("До начала буфера должна возвращаться старейшая запись, получена %+v", got)
	}
}

func TestTargetAfterAllSamples(t *testing.T) {
	b := NewDefaultBuffer()
	b.AddPosition(vec.Vec2{X: 100, Y: 100}, 1.0, 1)
	b.AddPosition(vec.Vec2{X: 200, Y: 200}, 2.0, 2)

	got, ok := b.InterpolatedPosition(2.6)
	if !ok || got != (vec.Vec2{X: 200, Y: 200}) {
		t.Errorf("После конца буфера должна возвращаться свежая запись, получена %+v", got)
	}
}

func TestMultipleSamplesInterpolation(t *testing.T) {
	b := NewDefaultBuffer()
	for i := 1; i <= 4; i++ {
		b.AddPosition(vec.Vec2{X: i * 100, Y: i * 100}, float64(i), uint32(i))
	}

	// target = 2.584 между записями 2.0 и 3.0
	got, ok := b.InterpolatedPosition(2.6)
	if !ok || got != (vec.Vec2{X: 258, Y: 258}) {
		t.Errorf("Ожидалась позиция (258,258), получена %+v", got)
	}
}

func BenchmarkInterpolatedPosition(b *testing.B) {
	buf := NewDefaultBuffer()
	for i := 1; i <= DefaultCap; i++ {
		buf.AddPosition(vec.Vec2{X: i * 10, Y: i * 10}, float64(i), uint32(i))
	}
	for i := 0; i < b.N; i++ {
		buf.InterpolatedPosition(float64(DefaultCap) / 2)
	}
}
