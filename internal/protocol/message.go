// Package protocol определяет датаграммные сообщения клиент-сервер
// и их бинарную кодировку.
package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// MsgType представляет тип сообщения, первый байт каждой датаграммы
type MsgType uint8

const (
	// Клиент -> сервер
	MsgConnect    MsgType = 0x01
	MsgReconnect  MsgType = 0x02
	MsgInput      MsgType = 0x03
	MsgDisconnect MsgType = 0x04
	MsgPing       MsgType = 0x05

	// Сервер -> клиент
	MsgPlayerID      MsgType = 0x11
	MsgPong          MsgType = 0x12
	MsgSnapshot      MsgType = 0x13
	MsgDisconnectAck MsgType = 0x14
)

// Message реализуется всеми сообщениями протокола
type Message interface {
	MsgType() MsgType
}

// Connect запрашивает подключение. Сервер отвечает PlayerID и полным
// снапшотом состояния.
type Connect struct{}

// Reconnect запрашивает возобновление прежней сессии в течение
// льготного периода после отключения.
type Reconnect struct {
	PreviousID uuid.UUID
	ClaimedPos vec.Vec2
}

// Input несёт одну дискретную команду перемещения
type Input struct {
	Dir       physics.Direction
	Sequence  uint32
	Timestamp float64
}

// Disconnect уведомляет сервер о выходе. Подтверждается DisconnectAck,
// но клиент не обязан дожидаться подтверждения.
type Disconnect struct{}

// Ping несёт метку времени клиента для замера RTT
type Ping struct {
	Timestamp float64
}

// PlayerID сообщает клиенту его идентификатор. Клиент принимает его
// только пока идентификатор ещё не назначен.
type PlayerID struct {
	ID uuid.UUID
}

// Pong возвращает метку времени из Ping без изменений
type Pong struct {
	Timestamp float64
}

// DisconnectAck подтверждает обработку Disconnect
type DisconnectAck struct{}

// PlayerEntry описывает одного игрока в снапшоте
type PlayerEntry struct {
	ID    uuid.UUID
	Pos   vec.Vec2
	Color uint32
}

// Snapshot содержит полное состояние игры на момент рассылки.
// После построения не изменяется.
type Snapshot struct {
	Players       []PlayerEntry
	LastProcessed map[uuid.UUID]uint32
	ServerTime    float64
}

func (Connect) MsgType() MsgType       { return MsgConnect }
func (Reconnect) MsgType() MsgType     { return MsgReconnect }
func (Input) MsgType() MsgType         { return MsgInput }
func (Disconnect) MsgType() MsgType    { return MsgDisconnect }
func (Ping) MsgType() MsgType          { return MsgPing }
func (PlayerID) MsgType() MsgType      { return MsgPlayerID }
func (Pong) MsgType() MsgType          { return MsgPong }
func (*Snapshot) MsgType() MsgType     { return MsgSnapshot }
func (DisconnectAck) MsgType() MsgType { return MsgDisconnectAck }

// NowSeconds возвращает текущее время в секундах с эпохи Unix.
// Все метки времени протокола исчисляются в этих единицах.
func NowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
