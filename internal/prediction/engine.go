// Package prediction реализует клиентское предсказание движения и
// сверку с авторитетным состоянием сервера. Локальный ввод применяется
// мгновенно, подтверждённая сервером база и повтор неподтверждённых
// вводов удерживают отображаемую позицию сходящейся к серверной.
package prediction

import (
	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// positionEntry позиция до применения ввода с данным номером
type positionEntry struct {
	sequence uint32
	pos      vec.Vec2
}

// Params параметры предсказания. Пороги жёсткой пересинхронизации
// настраиваемые: исторически они менялись между итерациями протокола.
type Params struct {
	Board     physics.Board
	MoveSpeed int

	// MaxSequenceGap наибольший скачок подтверждённого номера, после
	// которого повтор вводов заменяется жёсткой пересинхронизацией
	MaxSequenceGap uint32

	// MaxReconcileInterval наибольший интервал между сверками в
	// секундах, после которого накопленный хвост вводов сбрасывается
	MaxReconcileInterval float64
}

// DefaultParams возвращает параметры предсказания по умолчанию
func DefaultParams() Params {
	return Params{
		Board: physics.Board{
			Width:      1024,
			Height:     768,
			PlayerSize: 20,
			UIMargin:   50,
		},
		MoveSpeed:            5,
		MaxSequenceGap:       5,
		MaxReconcileInterval: 0.5,
	}
}

// Engine состояние предсказания одного локального игрока
type Engine struct {
	params Params

	nextSequence uint32
	pending      []protocol.Input
	history      []positionEntry // позиции до каждого неподтверждённого ввода

	confirmedSeq    uint32
	confirmedPos    vec.Vec2
	lastReconcileAt float64
}

// NewEngine создаёт предсказание с подтверждённой начальной позицией.
// Номера вводов начинаются с 1: номер 0 зарезервирован за состоянием
// "ничего не подтверждено".
func NewEngine(initial vec.Vec2, params Params) *Engine {
	return &Engine{
		params:       params,
		nextSequence: 1,
		confirmedPos: initial,
	}
}

// NextSequence выделяет следующий номер ввода. Номера строго растут и
// не переиспользуются в пределах сессии.
func (e *Engine) NextSequence() uint32 {
	seq := e.nextSequence
	e.nextSequence++
	return seq
}

// Predict формирует ввод для отправки, ставит его в очередь
// неподтверждённых и немедленно применяет к отображаемой позиции
func (e *Engine) Predict(dir physics.Direction, pos *vec.Vec2, timestamp float64) protocol.Input {
	in := protocol.Input{
		Dir:       dir,
		Sequence:  e.NextSequence(),
		Timestamp: timestamp,
	}
	e.pending = append(e.pending, in)
	e.ApplyPrediction(in, pos)
	return in
}

// ApplyPrediction запоминает позицию до ввода и применяет то же
// правило перемещения, что и сервер. Любое расхождение правил
// превращает шум предсказания в систематическую ошибку.
func (e *Engine) ApplyPrediction(in protocol.Input, pos *vec.Vec2) {
	e.history = append(e.history, positionEntry{sequence: in.Sequence, pos: *pos})
	*pos = physics.ApplyDirection(*pos, in.Dir, e.params.MoveSpeed, e.params.Board)
}

// Reconcile принимает авторитетную позицию и подтверждённый номер
// ввода. Устаревшие подтверждения игнорируются. Подтверждённые вводы
// и их записи истории выбрасываются. При скачке номера больше
// MaxSequenceGap или паузе дольше MaxReconcileInterval выполняется
// жёсткая пересинхронизация: очередь и история сбрасываются целиком
// вместо повтора накопленного хвоста.
func (e *Engine) Reconcile(serverPos vec.Vec2, serverSeq uint32, now float64) {
	if serverSeq <= e.confirmedSeq {
		return
	}

	// Скачок считается до обновления подтверждённого номера
	gap := serverSeq - e.confirmedSeq
	sinceLast := now - e.lastReconcileAt
	e.lastReconcileAt = now

	e.confirmedSeq = serverSeq
	e.confirmedPos = serverPos

	for len(e.pending) > 0 && e.pending[0].Sequence <= serverSeq {
		e.pending = e.pending[1:]
	}
	for len(e.history) > 0 && e.history[0].sequence <= serverSeq {
		e.history = e.history[1:]
	}

	if gap > e.params.MaxSequenceGap || sinceLast > e.params.MaxReconcileInterval {
		e.pending = nil
		e.history = nil
	}
}

// ReapplyPendingInputs сбрасывает отображаемую позицию на
// подтверждённую базу и повторяет все неподтверждённые вводы в
// исходном порядке. Вызывается после каждой сверки.
func (e *Engine) ReapplyPendingInputs(pos *vec.Vec2) {
	*pos = e.confirmedPos

	// История перестраивается заново и остаётся параллельной очереди
	inputs := e.pending
	e.history = e.history[:0]
	for _, in := range inputs {
		e.ApplyPrediction(in, pos)
	}
}

// PredictionError возвращает расстояние между подтверждённой базой и
// свежей серверной позицией. Диагностический сигнал, в управление не
// замешивается.
func (e *Engine) PredictionError(serverPos vec.Vec2) float64 {
	return e.confirmedPos.DistanceTo(serverPos)
}

// ConfirmedSequence возвращает последний подтверждённый номер ввода
func (e *Engine) ConfirmedSequence() uint32 {
	return e.confirmedSeq
}

// ConfirmedPosition возвращает подтверждённую серверную базу
func (e *Engine) ConfirmedPosition() vec.Vec2 {
	return e.confirmedPos
}

// PendingCount возвращает число неподтверждённых вводов
func (e *Engine) PendingCount() int {
	return len(e.pending)
}
