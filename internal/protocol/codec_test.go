package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/vec"
)

func TestEncodeDecodeInput(t *testing.T) {
	in := Input{Dir: physics.DirRight, Sequence: 42, Timestamp: 1234.5678}

	data, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, byte(MsgInput), data[0], "первый байт должен быть типом сообщения")
	assert.Len(t, data, 14)

	msg, err := Decode(data)
	require.NoError(t, err)
	decoded, ok := msg.(Input)
	require.True(t, ok, "ожидалось сообщение Input")
	assert.Equal(t, in, decoded)
}

func TestEncodeDecodeReconnect(t *testing.T) {
	id := uuid.New()
	in := Reconnect{PreviousID: id, ClaimedPos: vec.Vec2{X: 320, Y: 240}}

	data, err := Encode(in)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	decoded := msg.(Reconnect)
	assert.Equal(t, id, decoded.PreviousID)
	assert.Equal(t, in.ClaimedPos, decoded.ClaimedPos)
}

func TestEncodeDecodeEmptyMessages(t *testing.T) {
	for _, msg := range []Message{Connect{}, Disconnect{}, DisconnectAck{}} {
		data, err := Encode(msg)
		require.NoError(t, err)
		assert.Len(t, data, 1, "сообщение без полей занимает один байт")

		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg.MsgType(), decoded.MsgType())
	}
}

func TestPongEchoesPingTimestamp(t *testing.T) {
	ping := Ping{Timestamp: 98.765}
	data, err := Encode(ping)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	received := msg.(Ping)

	// Сервер обязан вернуть метку времени без изменений
	pongData, err := Encode(Pong{Timestamp: received.Timestamp})
	require.NoError(t, err)
	back, err := Decode(pongData)
	require.NoError(t, err)
	assert.Equal(t, ping.Timestamp, back.(Pong).Timestamp)
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()
	snap := &Snapshot{
		Players: []PlayerEntry{
			{ID: id1, Pos: vec.Vec2{X: 100, Y: 200}, Color: 0xff1717},
			{ID: id2, Pos: vec.Vec2{X: 300, Y: 400}, Color: 0x17ff17},
		},
		LastProcessed: map[uuid.UUID]uint32{id1: 7, id2: 12},
		ServerTime:    1000.25,
	}

	data, err := Encode(snap)
	require.NoError(t, err)
	assert.Equal(t, byte(MsgSnapshot), data[0])
	assert.Equal(t, flagRaw, data[1], "маленький снапшот не должен сжиматься")

	msg, err := Decode(data)
	require.NoError(t, err)
	decoded := msg.(*Snapshot)
	assert.Equal(t, snap.ServerTime, decoded.ServerTime)
	assert.ElementsMatch(t, snap.Players, decoded.Players)
	assert.Equal(t, snap.LastProcessed, decoded.LastProcessed)
}

func TestSnapshotCompression(t *testing.T) {
	// Достаточно игроков, чтобы тело превысило порог сжатия
	snap := &Snapshot{
		LastProcessed: map[uuid.UUID]uint32{},
		ServerTime:    5.0,
	}
	for i := 0; i < 40; i++ {
		id := uuid.New()
		snap.Players = append(snap.Players, PlayerEntry{
			ID: id, Pos: vec.Vec2{X: i * 10, Y: i * 5}, Color: 0x1717ff,
		})
		snap.LastProcessed[id] = uint32(i)
	}

	data, err := Encode(snap)
	require.NoError(t, err)
	assert.Equal(t, flagZstd, data[1], "большой снапшот должен сжиматься")

	msg, err := Decode(data)
	require.NoError(t, err)
	decoded := msg.(*Snapshot)
	assert.Len(t, decoded.Players, 40)
	assert.Equal(t, snap.LastProcessed, decoded.LastProcessed)
}

func TestDecodeMalformed(t *testing.T) {
	t.Run("Пустая датаграмма", func(t *testing.T) {
		_, err := Decode(nil)
		assert.ErrorIs(t, err, ErrShortBuffer)
	})

	t.Run("Неизвестный тип", func(t *testing.T) {
		_, err := Decode([]byte{0xEE})
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("Обрезанный Input", func(t *testing.T) {
		data, err := Encode(Input{Dir: physics.DirUp, Sequence: 1, Timestamp: 2})
		require.NoError(t, err)
		_, err = Decode(data[:5])
		assert.ErrorIs(t, err, ErrShortBuffer)
	})

	t.Run("Недопустимое направление", func(t *testing.T) {
		data, err := Encode(Input{Dir: physics.DirUp, Sequence: 1, Timestamp: 2})
		require.NoError(t, err)
		data[1] = 0x7F
		_, err = Decode(data)
		assert.ErrorIs(t, err, ErrBadDirection)
	})

	t.Run("Мусор вместо сжатого снапшота", func(t *testing.T) {
		_, err := Decode([]byte{byte(MsgSnapshot), flagZstd, 0xDE, 0xAD, 0xBE, 0xEF})
		assert.Error(t, err)
	})
}
