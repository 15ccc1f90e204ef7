package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/eventbus"
	"github.com/annel0/mmo-netcode/internal/game"
	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/metrics"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/protocol/events"
	"github.com/annel0/mmo-netcode/internal/storage"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// eventSource именует сервер в событиях шины
const eventSource = "netcode-server"

// sessionEventPriority ниже порога блокировки шины: публикация события
// никогда не задерживает игровой цикл.
const sessionEventPriority = 4

// archiveTimeout ограничивает фоновую запись в архив сессий
const archiveTimeout = 2 * time.Second

// ServerDeps зависимости UDP сервера. Bus, Archive и Metrics могут
// быть nil, сервер тогда работает без соответствующей подсистемы.
type ServerDeps struct {
	Store             *game.SessionStore
	Bus               eventbus.EventBus
	Archive           storage.ArchiveRepo
	Metrics           *metrics.NetcodeMetrics
	BroadcastInterval time.Duration
}

// UDPServer принимает датаграммы клиентов, применяет их к авторитетному
// состоянию и рассылает снапшоты всем подключённым по фиксированному тику
type UDPServer struct {
	conn *net.UDPConn
	deps ServerDeps

	clientAddrs map[string]*net.UDPAddr // строка адреса -> разобранный адрес
	mu          sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPServer создаёт новый UDP сервер на указанном адресе
func NewUDPServer(address string, deps ServerDeps) (*UDPServer, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	if deps.BroadcastInterval <= 0 {
		deps.BroadcastInterval = 16 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		conn:        conn,
		deps:        deps,
		clientAddrs: make(map[string]*net.UDPAddr),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start запускает циклы приёма, рассылки и обслуживания
func (s *UDPServer) Start() {
	s.wg.Add(3)
	go s.receiveLoop()
	go s.broadcastLoop()
	go s.maintenanceLoop()
	logging.Info("📡 UDP сервер слушает %s", s.conn.LocalAddr())
}

// Stop останавливает сервер и ждёт завершения циклов
func (s *UDPServer) Stop() {
	s.cancel()
	s.conn.Close()
	s.wg.Wait()
}

// Addr возвращает фактический адрес прослушивания
func (s *UDPServer) Addr() string {
	return s.conn.LocalAddr().String()
}

// receiveLoop принимает датаграммы клиентов
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	buffer := make([]byte, ReceiveBufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			// Таймаут чтения, чтобы можно было проверять контекст
			s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

			n, addr, err := s.conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				logging.Warn("Ошибка чтения UDP: %v", err)
				continue
			}

			s.handleDatagram(buffer[:n], addr)
		}
	}
}

// broadcastLoop рассылает снапшоты состояния по фиксированному тику
func (s *UDPServer) broadcastLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.deps.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.broadcastSnapshot()
		}
	}
}

// maintenanceLoop выселяет молчащих игроков и чистит истёкшие записи
func (s *UDPServer) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance(time.Now())
		}
	}
}

// handleDatagram разбирает датаграмму и применяет её к состоянию.
// Неразборчивые датаграммы молча отбрасываются.
func (s *UDPServer) handleDatagram(data []byte, addr *net.UDPAddr) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.deps.Metrics.IncDecodeError()
		logging.LogProtocolError(addr.String(), err, data)
		return
	}

	now := time.Now()
	addrStr := addr.String()

	switch m := msg.(type) {
	case protocol.Connect:
		s.handleConnect(addrStr, addr, now)
	case protocol.Reconnect:
		s.handleReconnect(m, addrStr, addr, now)
	case protocol.Input:
		s.deps.Store.ApplyInput(addrStr, m, now)
		s.deps.Metrics.IncInput()
	case protocol.Disconnect:
		s.handleDisconnect(addrStr, addr, now)
	case protocol.Ping:
		s.deps.Store.Touch(addrStr, now)
		s.sendTo(addr, protocol.Pong{Timestamp: m.Timestamp})
	default:
		// Серверные сообщения от клиента не приходят
		logging.Debug("Неожиданное сообщение 0x%02x от %s", byte(msg.MsgType()), addrStr)
	}
}

func (s *UDPServer) handleConnect(addrStr string, addr *net.UDPAddr, now time.Time) {
	id, pos, isNew := s.deps.Store.Connect(addrStr, now)
	s.registerAddr(addrStr, addr)

	if isNew {
		s.deps.Metrics.IncConnect()
		s.publishEvent(events.EventPlayerConnected, id, addrStr, pos, now)
		logging.Info("🎮 Игрок %s подключился (%s), позиция (%d, %d)", id, addrStr, pos.X, pos.Y)
	}

	s.sendTo(addr, protocol.PlayerID{ID: id})
	s.sendSnapshotTo(addr, now)
}

func (s *UDPServer) handleReconnect(m protocol.Reconnect, addrStr string, addr *net.UDPAddr, now time.Time) {
	if pos, ok := s.deps.Store.Reconnect(addrStr, m.PreviousID, m.ClaimedPos, now); ok {
		s.registerAddr(addrStr, addr)
		s.deps.Metrics.IncReconnect()
		s.archiveDelete(m.PreviousID)
		s.publishEvent(events.EventPlayerReconnected, m.PreviousID, addrStr, pos, now)

		s.sendTo(addr, protocol.PlayerID{ID: m.PreviousID})
		s.sendSnapshotTo(addr, now)
		return
	}

	// Запись не найдена или идентификатор уже занят: обычное подключение
	logging.Info("❌ Переподключение %s отклонено, выдаётся новый идентификатор", m.PreviousID)
	s.handleConnect(addrStr, addr, now)
}

func (s *UDPServer) handleDisconnect(addrStr string, addr *net.UDPAddr, now time.Time) {
	rec, ok := s.deps.Store.Disconnect(addrStr, now)
	if ok {
		s.unregisterAddr(addrStr)
		s.deps.Metrics.IncDisconnect()
		s.archiveSave(rec)
		s.publishEvent(events.EventPlayerDisconnected, rec.ID, addrStr, rec.Pos, now)
		logging.Info("👋 Игрок %s отключился (%s)", rec.ID, addrStr)
	}

	// Подтверждаем и повторные Disconnect: клиент мог не получить первый ответ
	s.sendTo(addr, protocol.DisconnectAck{})
}

// broadcastSnapshot строит снапшот и рассылает его всем подключённым.
// Кодируется один раз, байты у всех получателей одинаковые.
func (s *UDPServer) broadcastSnapshot() {
	now := time.Now()

	s.mu.RLock()
	targets := make([]*net.UDPAddr, 0, len(s.clientAddrs))
	for _, addr := range s.clientAddrs {
		targets = append(targets, addr)
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	snap := s.deps.Store.BuildSnapshot(now)
	payload, err := protocol.Encode(snap)
	if err != nil {
		logging.Error("Ошибка кодирования снапшота: %v", err)
		return
	}

	for _, addr := range targets {
		if _, err := s.conn.WriteToUDP(payload, addr); err != nil {
			logging.Warn("Ошибка отправки UDP: %v", err)
			continue
		}
		s.deps.Metrics.IncSnapshot(len(payload))
	}
}

// sendSnapshotTo отправляет свежий снапшот одному клиенту, не дожидаясь
// ближайшего тика рассылки
func (s *UDPServer) sendSnapshotTo(addr *net.UDPAddr, now time.Time) {
	snap := s.deps.Store.BuildSnapshot(now)
	payload, err := protocol.Encode(snap)
	if err != nil {
		logging.Error("Ошибка кодирования снапшота: %v", err)
		return
	}
	if _, err := s.conn.WriteToUDP(payload, addr); err != nil {
		logging.Warn("Ошибка отправки UDP: %v", err)
		return
	}
	s.deps.Metrics.IncSnapshot(len(payload))
}

// runMaintenance выполняет один проход обслуживания состояния
func (s *UDPServer) runMaintenance(now time.Time) {
	for _, rec := range s.deps.Store.EvictTimedOut(now) {
		s.deps.Metrics.IncTimeout()
		s.archiveSave(rec)
		s.publishEvent(events.EventPlayerTimedOut, rec.ID, "", rec.Pos, now)
	}

	for _, id := range s.deps.Store.CleanupExpired(now) {
		s.archiveDelete(id)
		s.publishEvent(events.EventRecordExpired, id, "", vec.Vec2{}, now)
		logging.Info("🪦 Льготный период записи %s истёк", id)
	}

	s.deps.Metrics.SetActivePlayers(s.deps.Store.ActiveCount())
	s.deps.Metrics.SetRecentRecords(s.deps.Store.RecentCount())

	s.pruneAddrCache()
}

// pruneAddrCache оставляет в кэше адресов только живые сессии
func (s *UDPServer) pruneAddrCache() {
	active := s.deps.Store.ActiveAddrs()
	alive := make(map[string]struct{}, len(active))
	for _, addr := range active {
		alive[addr] = struct{}{}
	}

	s.mu.Lock()
	for addrStr := range s.clientAddrs {
		if _, ok := alive[addrStr]; !ok {
			delete(s.clientAddrs, addrStr)
		}
	}
	s.mu.Unlock()
}

func (s *UDPServer) registerAddr(addrStr string, addr *net.UDPAddr) {
	s.mu.RLock()
	_, exists := s.clientAddrs[addrStr]
	s.mu.RUnlock()
	if exists {
		return
	}

	s.mu.Lock()
	s.clientAddrs[addrStr] = addr
	s.mu.Unlock()
}

func (s *UDPServer) unregisterAddr(addrStr string) {
	s.mu.Lock()
	delete(s.clientAddrs, addrStr)
	s.mu.Unlock()
}

// sendTo кодирует и отправляет одно сообщение клиенту
func (s *UDPServer) sendTo(addr *net.UDPAddr, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		logging.Error("Ошибка кодирования сообщения 0x%02x: %v", byte(msg.MsgType()), err)
		return
	}
	if _, err := s.conn.WriteToUDP(payload, addr); err != nil {
		logging.Warn("Ошибка отправки UDP: %v", err)
	}
}

// publishEvent публикует событие сессии в шину
func (s *UDPServer) publishEvent(evType events.EventType, id uuid.UUID, addrStr string, pos vec.Vec2, now time.Time) {
	if s.deps.Bus == nil {
		return
	}

	ev := events.PlayerEvent{
		Type:      evType,
		PlayerID:  id.String(),
		Addr:      addrStr,
		X:         pos.X,
		Y:         pos.Y,
		Timestamp: now.UnixMilli(),
	}
	env := eventbus.NewPlayerEnvelope(eventSource, ev, sessionEventPriority)
	if err := s.deps.Bus.Publish(s.ctx, env); err != nil {
		logging.Debug("Событие %s не опубликовано: %v", evType, err)
	}
}

// archiveSave пишет запись отключённого игрока в архив в фоне.
// Авторитетом остаётся память, ошибка архива игру не останавливает.
func (s *UDPServer) archiveSave(rec game.DisconnectedRecord) {
	if s.deps.Archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.deps.Archive.Save(ctx, rec); err != nil {
			logging.Warn("Архив: не удалось сохранить запись %s: %v", rec.ID, err)
		}
	}()
}

// archiveDelete удаляет запись из архива в фоне
func (s *UDPServer) archiveDelete(id uuid.UUID) {
	if s.deps.Archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.deps.Archive.Delete(ctx, id); err != nil {
			logging.Warn("Архив: не удалось удалить запись %s: %v", id, err)
		}
	}()
}
