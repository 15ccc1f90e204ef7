package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

func newTestEngine(initial vec.Vec2) *Engine {
	return NewEngine(initial, DefaultParams())
}

func TestNewEngine(t *testing.T) {
	initial := vec.Vec2{X: 100, Y: 100}
	e := newTestEngine(initial)

	assert.Equal(t, uint32(1), e.nextSequence, "номера вводов начинаются с 1")
	assert.Empty(t, e.pending)
	assert.Empty(t, e.history)
	assert.Equal(t, uint32(0), e.ConfirmedSequence())
	assert.Equal(t, initial, e.ConfirmedPosition())
}

func TestApplyPredictionRecordsPrePosition(t *testing.T) {
	initial := vec.Vec2{X: 100, Y: 100}
	e := newTestEngine(initial)
	pos := initial

	e.ApplyPrediction(protocol.Input{Dir: physics.DirUp, Sequence: 1}, &pos)

	assert.Equal(t, vec.Vec2{X: 100, Y: 95}, pos, "шаг вверх на скорость")
	require.Len(t, e.history, 1)
	assert.Equal(t, uint32(1), e.history[0].sequence)
	assert.Equal(t, initial, e.history[0].pos, "в истории позиция до ввода")
}

func TestPredict(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	pos := vec.Vec2{X: 100, Y: 100}

	in1 := e.Predict(physics.DirRight, &pos, 10.0)
	in2 := e.Predict(physics.DirDown, &pos, 10.1)

	assert.Equal(t, uint32(1), in1.Sequence)
	assert.Equal(t, uint32(2), in2.Sequence, "номера строго растут")
	assert.Equal(t, vec.Vec2{X: 105, Y: 105}, pos)
	assert.Equal(t, 2, e.PendingCount())
	assert.Len(t, e.history, 2, "история параллельна очереди вводов")
}

func TestReconcileNormal(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	e.lastReconcileAt = 0.8 // пауза 0.2с, ниже порога пересинхронизации

	e.pending = []protocol.Input{
		{Dir: physics.DirUp, Sequence: 1},
		{Dir: physics.DirLeft, Sequence: 2},
		{Dir: physics.DirRight, Sequence: 3},
	}
	e.history = []positionEntry{
		{sequence: 1, pos: vec.Vec2{X: 100, Y: 100}},
		{sequence: 2, pos: vec.Vec2{X: 100, Y: 95}},
		{sequence: 3, pos: vec.Vec2{X: 95, Y: 95}},
	}

	e.Reconcile(vec.Vec2{X: 95, Y: 85}, 2, 1.0)

	assert.Equal(t, uint32(2), e.ConfirmedSequence())
	assert.Equal(t, vec.Vec2{X: 95, Y: 85}, e.ConfirmedPosition())
	require.Equal(t, 1, e.PendingCount(), "остаётся только неподтверждённый ввод 3")
	assert.Equal(t, uint32(3), e.pending[0].Sequence)
	require.Len(t, e.history, 1)
	assert.Equal(t, uint32(3), e.history[0].sequence)
}

func TestReconcileIdempotent(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	e.lastReconcileAt = 0.8
	e.pending = []protocol.Input{{Dir: physics.DirRight, Sequence: 3}}
	e.history = []positionEntry{{sequence: 3, pos: vec.Vec2{X: 100, Y: 100}}}

	e.Reconcile(vec.Vec2{X: 105, Y: 100}, 2, 1.0)
	pendingAfter := e.PendingCount()
	confirmedAfter := e.ConfirmedPosition()

	// Повторное подтверждение того же номера ничего не меняет
	e.Reconcile(vec.Vec2{X: 999, Y: 999}, 2, 1.1)

	assert.Equal(t, pendingAfter, e.PendingCount())
	assert.Equal(t, confirmedAfter, e.ConfirmedPosition())
	assert.Equal(t, uint32(2), e.ConfirmedSequence())
}

func TestReconcileStaleIgnored(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	e.lastReconcileAt = 0.8
	e.Reconcile(vec.Vec2{X: 105, Y: 100}, 5, 1.0)

	// Запоздавший снапшот с меньшим номером игнорируется
	e.Reconcile(vec.Vec2{X: 50, Y: 50}, 3, 1.1)

	assert.Equal(t, uint32(5), e.ConfirmedSequence())
	assert.Equal(t, vec.Vec2{X: 105, Y: 100}, e.ConfirmedPosition())
}

func TestHardResyncOnSequenceGap(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	e.lastReconcileAt = 0.9
	e.Reconcile(vec.Vec2{X: 100, Y: 100}, 2, 1.0)

	for seq := uint32(3); seq <= 9; seq++ {
		e.pending = append(e.pending, protocol.Input{Dir: physics.DirRight, Sequence: seq})
		e.history = append(e.history, positionEntry{sequence: seq})
	}

	// Скачок 2 -> 9 превышает порог 5: хвост сбрасывается целиком
	e.Reconcile(vec.Vec2{X: 135, Y: 100}, 9, 1.1)

	assert.Equal(t, uint32(9), e.ConfirmedSequence())
	assert.Zero(t, e.PendingCount(), "жёсткая пересинхронизация очищает очередь")
	assert.Empty(t, e.history)
}

func TestHardResyncOnLongPause(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	e.lastReconcileAt = 1.0
	e.Reconcile(vec.Vec2{X: 100, Y: 100}, 1, 1.2)

	e.pending = []protocol.Input{
		{Dir: physics.DirRight, Sequence: 2},
		{Dir: physics.DirRight, Sequence: 3},
	}
	e.history = []positionEntry{{sequence: 2}, {sequence: 3}}

	// Скачок номера мал, но пауза 0.9с превышает порог 0.5с
	e.Reconcile(vec.Vec2{X: 105, Y: 100}, 2, 2.1)

	assert.Zero(t, e.PendingCount())
	assert.Empty(t, e.history)
	assert.Equal(t, uint32(2), e.ConfirmedSequence())
}

func TestReapplyPendingInputs(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})
	pos := vec.Vec2{X: 200, Y: 200} // нарочно не совпадает с базой

	e.pending = []protocol.Input{
		{Dir: physics.DirRight, Sequence: 1},
		{Dir: physics.DirRight, Sequence: 2},
		{Dir: physics.DirDown, Sequence: 3},
	}

	e.ReapplyPendingInputs(&pos)

	// База (100,100), затем вправо, вправо, вниз при скорости 5
	assert.Equal(t, vec.Vec2{X: 110, Y: 105}, pos)
	assert.Len(t, e.history, 3, "история перестроена по одной записи на ввод")
}

func TestReapplyIsDeterministic(t *testing.T) {
	mk := func() *Engine {
		e := newTestEngine(vec.Vec2{X: 100, Y: 100})
		e.pending = []protocol.Input{
			{Dir: physics.DirDown, Sequence: 1},
			{Dir: physics.DirLeft, Sequence: 2},
			{Dir: physics.DirDown, Sequence: 3},
			{Dir: physics.DirRight, Sequence: 4},
		}
		return e
	}

	var first, second vec.Vec2
	mk().ReapplyPendingInputs(&first)
	mk().ReapplyPendingInputs(&second)
	assert.Equal(t, first, second, "одинаковая база и очередь дают одинаковый результат")

	// Повторный вызов на том же движке тоже даёт тот же результат
	e := mk()
	var a, b vec.Vec2
	e.ReapplyPendingInputs(&a)
	e.ReapplyPendingInputs(&b)
	assert.Equal(t, a, b)
	assert.Len(t, e.history, 4, "история не накапливает дубликатов при повторе")
}

func TestPredictionError(t *testing.T) {
	e := newTestEngine(vec.Vec2{X: 100, Y: 100})

	err := e.PredictionError(vec.Vec2{X: 103, Y: 104})

	assert.InDelta(t, 5.0, err, 1e-9, "расстояние по катетам 3 и 4")
}

func TestPredictClampsAtBoundary(t *testing.T) {
	b := DefaultParams().Board
	e := newTestEngine(vec.Vec2{X: b.MinX() + 1, Y: 100})
	pos := vec.Vec2{X: b.MinX() + 1, Y: 100}

	e.Predict(physics.DirLeft, &pos, 0)

	assert.Equal(t, b.MinX(), pos.X, "частичный шаг до границы")
}
