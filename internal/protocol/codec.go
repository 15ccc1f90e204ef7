package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/vec"
)

var (
	// ErrShortBuffer возвращается при чтении за пределами датаграммы
	ErrShortBuffer = errors.New("буфер сообщения короче ожидаемого")
	// ErrUnknownType возвращается для неизвестного первого байта
	ErrUnknownType = errors.New("неизвестный тип сообщения")
	// ErrBadDirection возвращается для недопустимого направления в Input
	ErrBadDirection = errors.New("недопустимое направление движения")
)

// Все числовые поля кодируются big-endian, UUID как 16 сырых байт,
// метки времени как биты IEEE-754 float64.

type writer struct {
	buf []byte
}

func newWriter(capacity int) *writer {
	return &writer{buf: make([]byte, 0, capacity)}
}

func (w *writer) writeU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) writeU16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) writeU32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) writeI32(v int32) {
	w.writeU32(uint32(v))
}

func (w *writer) writeF64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) writeUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

func (w *writer) writeVec(v vec.Vec2) {
	w.writeI32(int32(v.X))
	w.writeI32(int32(v.Y))
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remain() int {
	return len(r.buf) - r.off
}

func (r *reader) readU8() uint8 {
	if r.err != nil {
		return 0
	}
	if r.remain() < 1 {
		r.err = ErrShortBuffer
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) readU16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.remain() < 2 {
		r.err = ErrShortBuffer
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) readU32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.remain() < 4 {
		r.err = ErrShortBuffer
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) readI32() int32 {
	return int32(r.readU32())
}

func (r *reader) readF64() float64 {
	if r.err != nil {
		return 0
	}
	if r.remain() < 8 {
		r.err = ErrShortBuffer
		return 0
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

func (r *reader) readUUID() uuid.UUID {
	var id uuid.UUID
	if r.err != nil {
		return id
	}
	if r.remain() < 16 {
		r.err = ErrShortBuffer
		return id
	}
	copy(id[:], r.buf[r.off:r.off+16])
	r.off += 16
	return id
}

func (r *reader) readVec() vec.Vec2 {
	x := r.readI32()
	y := r.readI32()
	return vec.Vec2{X: int(x), Y: int(y)}
}

// Encode сериализует сообщение в датаграмму
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Connect:
		return []byte{byte(MsgConnect)}, nil
	case Reconnect:
		w := newWriter(25)
		w.writeU8(byte(MsgReconnect))
		w.writeUUID(m.PreviousID)
		w.writeVec(m.ClaimedPos)
		return w.buf, nil
	case Input:
		if !m.Dir.Valid() {
			return nil, ErrBadDirection
		}
		w := newWriter(14)
		w.writeU8(byte(MsgInput))
		w.writeU8(uint8(m.Dir))
		w.writeU32(m.Sequence)
		w.writeF64(m.Timestamp)
		return w.buf, nil
	case Disconnect:
		return []byte{byte(MsgDisconnect)}, nil
	case Ping:
		w := newWriter(9)
		w.writeU8(byte(MsgPing))
		w.writeF64(m.Timestamp)
		return w.buf, nil
	case PlayerID:
		w := newWriter(17)
		w.writeU8(byte(MsgPlayerID))
		w.writeUUID(m.ID)
		return w.buf, nil
	case Pong:
		w := newWriter(9)
		w.writeU8(byte(MsgPong))
		w.writeF64(m.Timestamp)
		return w.buf, nil
	case *Snapshot:
		return encodeSnapshot(m)
	case DisconnectAck:
		return []byte{byte(MsgDisconnectAck)}, nil
	default:
		return nil, ErrUnknownType
	}
}

// Decode разбирает датаграмму в сообщение. Любая ошибка означает,
// что датаграмму следует молча отбросить.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrShortBuffer
	}
	r := &reader{buf: data, off: 1}

	switch MsgType(data[0]) {
	case MsgConnect:
		return Connect{}, nil
	case MsgReconnect:
		m := Reconnect{}
		m.PreviousID = r.readUUID()
		m.ClaimedPos = r.readVec()
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case MsgInput:
		m := Input{}
		m.Dir = physics.Direction(r.readU8())
		m.Sequence = r.readU32()
		m.Timestamp = r.readF64()
		if r.err != nil {
			return nil, r.err
		}
		if !m.Dir.Valid() {
			return nil, ErrBadDirection
		}
		return m, nil
	case MsgDisconnect:
		return Disconnect{}, nil
	case MsgPing:
		m := Ping{Timestamp: r.readF64()}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case MsgPlayerID:
		m := PlayerID{ID: r.readUUID()}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case MsgPong:
		m := Pong{Timestamp: r.readF64()}
		if r.err != nil {
			return nil, r.err
		}
		return m, nil
	case MsgSnapshot:
		return decodeSnapshot(r)
	case MsgDisconnectAck:
		return DisconnectAck{}, nil
	default:
		return nil, ErrUnknownType
	}
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	body := newWriter(10 + len(s.Players)*28 + len(s.LastProcessed)*20)
	body.writeF64(s.ServerTime)

	body.writeU16(uint16(len(s.Players)))
	for _, p := range s.Players {
		body.writeUUID(p.ID)
		body.writeVec(p.Pos)
		body.writeU32(p.Color)
	}

	body.writeU16(uint16(len(s.LastProcessed)))
	for id, seq := range s.LastProcessed {
		body.writeUUID(id)
		body.writeU32(seq)
	}

	out := newWriter(len(body.buf) + 2)
	out.writeU8(byte(MsgSnapshot))
	if len(body.buf) >= compressThreshold {
		out.writeU8(flagZstd)
		out.buf = append(out.buf, compressPayload(body.buf)...)
	} else {
		out.writeU8(flagRaw)
		out.buf = append(out.buf, body.buf...)
	}
	return out.buf, nil
}

func decodeSnapshot(r *reader) (*Snapshot, error) {
	flag := r.readU8()
	if r.err != nil {
		return nil, r.err
	}

	body := r.buf[r.off:]
	if flag == flagZstd {
		decompressed, err := decompressPayload(body)
		if err != nil {
			return nil, err
		}
		body = decompressed
	}

	br := &reader{buf: body}
	s := &Snapshot{ServerTime: br.readF64()}

	playerCount := int(br.readU16())
	if br.err != nil {
		return nil, br.err
	}
	s.Players = make([]PlayerEntry, 0, playerCount)
	for i := 0; i < playerCount; i++ {
		p := PlayerEntry{}
		p.ID = br.readUUID()
		p.Pos = br.readVec()
		p.Color = br.readU32()
		if br.err != nil {
			return nil, br.err
		}
		s.Players = append(s.Players, p)
	}

	ackCount := int(br.readU16())
	if br.err != nil {
		return nil, br.err
	}
	s.LastProcessed = make(map[uuid.UUID]uint32, ackCount)
	for i := 0; i < ackCount; i++ {
		id := br.readUUID()
		seq := br.readU32()
		if br.err != nil {
			return nil, br.err
		}
		s.LastProcessed[id] = seq
	}

	return s, nil
}
