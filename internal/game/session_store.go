// Package game содержит авторитетное состояние игровой сессии:
// подключённых игроков, их позиции, историю перемещений и записи
// на переподключение.
package game

import (
	"bytes"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

// PlayerSession состояние одного подключённого игрока
type PlayerSession struct {
	Pos        vec.Vec2
	Color      uint32
	LastActive time.Time
	History    *History
}

// DisconnectedRecord последнее известное состояние отключённого игрока.
// Живёт только в течение льготного периода переподключения.
type DisconnectedRecord struct {
	ID             uuid.UUID
	Pos            vec.Vec2
	Color          uint32
	DisconnectedAt time.Time
}

// Params параметры авторитетного состояния
type Params struct {
	Board          physics.Board
	MoveSpeed      int
	HistoryCap     int
	ClientTimeout  time.Duration
	ReconnectGrace time.Duration
}

// DefaultParams возвращает параметры по умолчанию
func DefaultParams() Params {
	return Params{
		Board: physics.Board{
			Width:      1024,
			Height:     768,
			PlayerSize: 20,
			UIMargin:   50,
		},
		MoveSpeed:      5,
		HistoryCap:     60,
		ClientTimeout:  10 * time.Second,
		ReconnectGrace: 10 * time.Second,
	}
}

// SessionStore единственный источник истины о том, кто подключён,
// где находится и какие вводы обработаны. Все мутации проходят под
// одной блокировкой, сетевые операции внутри блокировки не выполняются.
type SessionStore struct {
	mu     sync.RWMutex
	params Params

	players       map[string]*PlayerSession // адрес -> сессия
	idToAddr      map[uuid.UUID]string
	addrToID      map[string]uuid.UUID
	lastProcessed map[uuid.UUID]uint32
	recent        map[uuid.UUID]*DisconnectedRecord
}

// NewSessionStore создаёт пустое авторитетное состояние
func NewSessionStore(params Params) *SessionStore {
	if params.HistoryCap <= 0 {
		params.HistoryCap = 60
	}
	return &SessionStore{
		params:        params,
		players:       make(map[string]*PlayerSession),
		idToAddr:      make(map[uuid.UUID]string),
		addrToID:      make(map[string]uuid.UUID),
		lastProcessed: make(map[uuid.UUID]uint32),
		recent:        make(map[uuid.UUID]*DisconnectedRecord),
	}
}

// seconds переводит время в секунды Unix, единицы протокола
func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Connect регистрирует игрока по адресу. Повторный Connect с того же
// адреса возвращает существующий идентификатор без создания новой
// сессии. Возвращает идентификатор, позицию и признак новой сессии.
func (s *SessionStore) Connect(addr string, now time.Time) (uuid.UUID, vec.Vec2, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Игрок уже подключён с этого адреса
	if id, ok := s.addrToID[addr]; ok {
		return id, s.players[addr].Pos, false
	}

	// Случайная позиция внутри границ поля, полуоткрытые диапазоны
	b := s.params.Board
	spawn := vec.Vec2{
		X: b.MinX() + rand.Intn(b.MaxX()-b.MinX()),
		Y: b.MinY() + rand.Intn(b.MaxY()-b.MinY()),
	}

	id := uuid.New()
	s.idToAddr[id] = addr
	s.addrToID[addr] = id

	history := NewHistory(s.params.HistoryCap)
	history.Push(spawn, seconds(now))

	s.players[addr] = &PlayerSession{
		Pos:        spawn,
		Color:      RandomColor(),
		LastActive: now,
		History:    history,
	}

	return id, spawn, true
}

// ApplyInput применяет команду перемещения от адреса. Для неизвестного
// адреса ничего не делает: UDP сервер обязан терпеть запоздавшие и
// чужие датаграммы.
func (s *SessionStore) ApplyInput(addr string, in protocol.Input, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[addr]
	if !ok {
		return
	}

	player.LastActive = now

	if id, ok := s.addrToID[addr]; ok {
		s.lastProcessed[id] = in.Sequence
	}

	player.Pos = physics.ApplyDirection(player.Pos, in.Dir, s.params.MoveSpeed, s.params.Board)
	player.History.Push(player.Pos, seconds(now))
}

// Touch обновляет время последней активности сессии. Вызывается для
// датаграмм, не несущих ввода: пинг живого клиента удерживает сессию
// от выселения по таймауту. Для неизвестного адреса возвращает false.
func (s *SessionStore) Touch(addr string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[addr]
	if !ok {
		return false
	}
	player.LastActive = now
	return true
}

// RestoreRecords загружает записи переподключения, уцелевшие с
// прошлого запуска сервера. Записи живых идентификаторов не
// восстанавливаются. Просроченные записи уберёт очередной проход
// CleanupExpired.
func (s *SessionStore) RestoreRecords(records []DisconnectedRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, rec := range records {
		if _, live := s.idToAddr[rec.ID]; live {
			continue
		}
		r := rec
		s.recent[rec.ID] = &r
		restored++
	}
	return restored
}

// Disconnect удаляет живую сессию и сохраняет DisconnectedRecord на
// льготный период. Для неизвестного адреса возвращает false.
func (s *SessionStore) Disconnect(addr string, now time.Time) (DisconnectedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked(addr, now)
}

func (s *SessionStore) disconnectLocked(addr string, now time.Time) (DisconnectedRecord, bool) {
	player, ok := s.players[addr]
	if !ok {
		return DisconnectedRecord{}, false
	}

	id := s.addrToID[addr]
	record := DisconnectedRecord{
		ID:             id,
		Pos:            player.Pos,
		Color:          player.Color,
		DisconnectedAt: now,
	}
	s.recent[id] = &record

	delete(s.players, addr)
	delete(s.addrToID, addr)
	delete(s.idToAddr, id)
	delete(s.lastProcessed, id)

	return record, true
}

// EvictTimedOut отключает игроков, чья последняя активность старше
// таймаута. Возвращает записи отключённых. Повторные вызовы безопасны.
func (s *SessionStore) EvictTimedOut(now time.Time) []DisconnectedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for addr, player := range s.players {
		if now.Sub(player.LastActive) >= s.params.ClientTimeout {
			stale = append(stale, addr)
		}
	}

	evicted := make([]DisconnectedRecord, 0, len(stale))
	for _, addr := range stale {
		if record, ok := s.disconnectLocked(addr, now); ok {
			logging.Info("⏰ Игрок %s отключён по таймауту", record.ID)
			evicted = append(evicted, record)
		}
	}
	return evicted
}

// Reconnect возобновляет прежнюю сессию по DisconnectedRecord.
// Успех только если запись существует и идентификатор сейчас не
// привязан к живому адресу: второй Connect с ещё активным id не
// должен перехватить чужую сессию. Заявленная клиентом позиция
// прижимается к границам поля.
func (s *SessionStore) Reconnect(addr string, previousID uuid.UUID, claimed vec.Vec2, now time.Time) (vec.Vec2, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.recent[previousID]
	if !ok {
		return vec.Vec2{}, false
	}
	if _, live := s.idToAddr[previousID]; live {
		return vec.Vec2{}, false
	}

	delete(s.recent, previousID)

	pos := s.params.Board.Clamp(claimed)
	history := NewHistory(s.params.HistoryCap)
	history.Push(pos, seconds(now))

	s.idToAddr[previousID] = addr
	s.addrToID[addr] = previousID
	s.players[addr] = &PlayerSession{
		Pos:        pos,
		Color:      record.Color,
		LastActive: now,
		History:    history,
	}

	logging.Info("🔄 Игрок %s переподключился с адреса %s", previousID, addr)
	return pos, true
}

// CleanupExpired удаляет записи переподключения старше льготного
// периода. Запись живого идентификатора не трогается: защита от гонки
// между только что принятым Reconnect и проходом очистки. Возвращает
// идентификаторы удалённых записей.
func (s *SessionStore) CleanupExpired(now time.Time) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []uuid.UUID
	for id, record := range s.recent {
		if _, live := s.idToAddr[id]; live {
			continue
		}
		if now.Sub(record.DisconnectedAt) >= s.params.ReconnectGrace {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		delete(s.recent, id)
		logging.Debug("Запись переподключения %s истекла", id)
	}
	return expired
}

// BuildSnapshot строит снимок состояния для рассылки. Чистое чтение.
func (s *SessionStore) BuildSnapshot(now time.Time) *protocol.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]protocol.PlayerEntry, 0, len(s.players))
	for addr, player := range s.players {
		players = append(players, protocol.PlayerEntry{
			ID:    s.addrToID[addr],
			Pos:   player.Pos,
			Color: player.Color,
		})
	}

	acks := make(map[uuid.UUID]uint32, len(s.lastProcessed))
	for id, seq := range s.lastProcessed {
		acks[id] = seq
	}

	return &protocol.Snapshot{
		Players:       players,
		LastProcessed: acks,
		ServerTime:    seconds(now),
	}
}

// ActiveAddrs возвращает адреса всех живых сессий
func (s *SessionStore) ActiveAddrs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]string, 0, len(s.players))
	for addr := range s.players {
		addrs = append(addrs, addr)
	}
	return addrs
}

// ActiveCount возвращает число живых сессий
func (s *SessionStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// RecentCount возвращает число записей, ожидающих переподключения
func (s *SessionStore) RecentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recent)
}

// RecentRecords возвращает копии записей, ожидающих переподключения.
// Используется периодической выгрузкой архива во внешнее хранилище.
func (s *SessionStore) RecentRecords() []DisconnectedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]DisconnectedRecord, 0, len(s.recent))
	for _, rec := range s.recent {
		records = append(records, *rec)
	}
	return records
}

// PositionAt восстанавливает позицию игрока на момент ts по его
// истории перемещений. Для неизвестного игрока или пустой истории
// возвращает false.
func (s *SessionStore) PositionAt(id uuid.UUID, ts float64) (vec.Vec2, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.idToAddr[id]
	if !ok {
		return vec.Vec2{}, false
	}
	return s.players[addr].History.At(ts)
}

// CollisionCheck восстанавливает позиции всех игроков на момент ts и
// возвращает пары с точно совпавшими позициями, каждую пару один раз.
// Сложность O(n²), приемлемо при малом числе сессий.
func (s *SessionStore) CollisionCheck(ts float64) [][2]uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type located struct {
		id  uuid.UUID
		pos vec.Vec2
	}

	ids := make([]uuid.UUID, 0, len(s.idToAddr))
	for id := range s.idToAddr {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	players := make([]located, 0, len(ids))
	for _, id := range ids {
		if pos, ok := s.players[s.idToAddr[id]].History.At(ts); ok {
			players = append(players, located{id: id, pos: pos})
		}
	}

	var pairs [][2]uuid.UUID
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			if players[i].pos == players[j].pos {
				pairs = append(pairs, [2]uuid.UUID{players[i].id, players[j].id})
			}
		}
	}
	return pairs
}
