package network

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// pingInterval задаёт частоту замеров RTT
const pingInterval = time.Second

// Client клиентская сторона netcode: отправка команд через симулятор
// условий сети, приём снапшотов и служебных ответов сервера.
// Управляющие сообщения (Connect, Reconnect, Disconnect, Ping) идут
// мимо симулятора: теряться и задерживаться может только игровой ввод.
type Client struct {
	sim *Simulator
	rtt *RTTStats

	mu          sync.Mutex
	playerID    uuid.UUID
	hasID       bool
	snapshot    *protocol.Snapshot
	snapshotSeq uint32
	lastPingAt  time.Time
}

// NewClient создаёт клиента поверх транспорта с заданными условиями сети
func NewClient(t Transport, cond Conditions) *Client {
	return &Client{
		sim: NewSimulator(t, cond),
		rtt: NewRTTStats(),
	}
}

// SendConnect запрашивает подключение
func (c *Client) SendConnect() error {
	return c.sendDirect(protocol.Connect{})
}

// SendReconnect запрашивает возобновление прежней сессии.
// Перед вызовом следует сбросить идентификатор через ResetID, иначе
// ответ сервера не будет принят.
func (c *Client) SendReconnect(previousID uuid.UUID, claimed vec.Vec2) error {
	return c.sendDirect(protocol.Reconnect{PreviousID: previousID, ClaimedPos: claimed})
}

// SendDisconnect уведомляет сервер о выходе
func (c *Client) SendDisconnect() error {
	return c.sendDirect(protocol.Disconnect{})
}

// SendInput отправляет команду перемещения через симулятор условий сети
func (c *Client) SendInput(in protocol.Input) error {
	payload, err := protocol.Encode(in)
	if err != nil {
		return err
	}
	return c.sim.Send(payload, in.Sequence)
}

// SendPing отправляет замер RTT
func (c *Client) SendPing(now time.Time) error {
	c.mu.Lock()
	c.lastPingAt = now
	c.mu.Unlock()
	return c.sendDirect(protocol.Ping{Timestamp: float64(now.UnixNano()) / 1e9})
}

// MaybePing отправляет Ping, если с прошлого прошла секунда.
// Пинги также подтверждают серверу, что клиент жив.
func (c *Client) MaybePing(now time.Time) error {
	c.mu.Lock()
	due := c.lastPingAt.IsZero() || now.Sub(c.lastPingAt) >= pingInterval
	c.mu.Unlock()

	if !due {
		return nil
	}
	return c.SendPing(now)
}

// Poll разбирает все накопившиеся датаграммы сервера и возвращает их.
// Попутно ведёт учёт: первый PlayerID присваивается, Pong пополняет
// статистику RTT, устаревшие снапшоты отбрасываются.
func (c *Client) Poll(now time.Time) []protocol.Message {
	var out []protocol.Message

	for {
		payload, ok := c.sim.Receive()
		if !ok {
			break
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			logging.LogProtocolError("server", err, payload)
			continue
		}

		switch m := msg.(type) {
		case protocol.PlayerID:
			c.mu.Lock()
			if !c.hasID {
				c.playerID = m.ID
				c.hasID = true
				logging.Info("✅ Получен идентификатор %s", m.ID)
			}
			c.mu.Unlock()
		case protocol.Pong:
			rtt := float64(now.UnixNano())/1e9 - m.Timestamp
			if rtt >= 0 {
				c.rtt.Record(time.Duration(rtt * float64(time.Second)))
			}
		case *protocol.Snapshot:
			c.mu.Lock()
			if c.snapshot != nil && m.ServerTime < c.snapshot.ServerTime {
				c.mu.Unlock()
				logging.Debug("Устаревший снапшот %.3f отброшен", m.ServerTime)
				continue
			}
			c.snapshot = m
			c.snapshotSeq++
			c.mu.Unlock()
		}

		out = append(out, msg)
	}

	return out
}

// PlayerID возвращает присвоенный идентификатор
func (c *Client) PlayerID() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.hasID
}

// ResetID сбрасывает идентификатор перед попыткой переподключения
func (c *Client) ResetID() {
	c.mu.Lock()
	c.hasID = false
	c.playerID = uuid.UUID{}
	c.mu.Unlock()
}

// LatestSnapshot возвращает последний принятый снапшот
func (c *Client) LatestSnapshot() *protocol.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SnapshotSeq возвращает счётчик принятых снапшотов. Устаревшие
// снапшоты счётчик не увеличивают.
func (c *Client) SnapshotSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotSeq
}

// RTT возвращает сводку замеров RTT
func (c *Client) RTT() RTTSummary {
	return c.rtt.Summary()
}

// SetConditions меняет условия сети на лету
func (c *Client) SetConditions(cond Conditions) {
	c.sim.SetConditions(cond)
}

// SimulatorStats возвращает счётчики симулятора условий сети
func (c *Client) SimulatorStats() SimulatorStats {
	return c.sim.Stats()
}

// Close закрывает транспорт
func (c *Client) Close() error {
	return c.sim.Close()
}

func (c *Client) sendDirect(msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.sim.SendDirect(payload)
}
