package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

func testAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func newTestStore() *SessionStore {
	return NewSessionStore(DefaultParams())
}

func TestNewSessionStore(t *testing.T) {
	store := newTestStore()

	if store.ActiveCount() != 0 {
		t.Errorf("Новое состояние должно быть пустым, игроков: %d", store.ActiveCount())
	}
	if store.RecentCount() != 0 {
		t.Errorf("Новое состояние не должно иметь записей переподключения: %d", store.RecentCount())
	}
}

func TestConnect(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, pos, isNew := store.Connect(addr, now)

	if !isNew {
		t.Error("Первое подключение должно создавать новую сессию")
	}
	if store.ActiveCount() != 1 {
		t.Errorf("Ожидалась 1 сессия, получено %d", store.ActiveCount())
	}

	// Обе таблицы индексов заполнены согласованно
	if store.idToAddr[id] != addr {
		t.Errorf("idToAddr: ожидался %s, получен %s", addr, store.idToAddr[id])
	}
	if store.addrToID[addr] != id {
		t.Errorf("addrToID: ожидался %s, получен %s", id, store.addrToID[addr])
	}

	// История начинается с позиции спавна
	player := store.players[addr]
	if player.History.Len() != 1 {
		t.Errorf("История должна содержать 1 запись, содержит %d", player.History.Len())
	}

	// Спавн внутри границ поля, полуоткрытые диапазоны
	b := DefaultParams().Board
	if pos.X < b.MinX() || pos.X >= b.MaxX() {
		t.Errorf("Спавн X=%d вне диапазона [%d, %d)", pos.X, b.MinX(), b.MaxX())
	}
	if pos.Y < b.MinY() || pos.Y >= b.MaxY() {
		t.Errorf("Спавн Y=%d вне диапазона [%d, %d)", pos.Y, b.MinY(), b.MaxY())
	}
}

func TestConnectIdempotent(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id1, _, _ := store.Connect(addr, now)
	id2, _, isNew := store.Connect(addr, now)

	if isNew {
		t.Error("Повторное подключение с того же адреса не должно создавать сессию")
	}
	if id1 != id2 {
		t.Errorf("Повторное подключение должно вернуть тот же id: %s != %s", id1, id2)
	}
	if store.ActiveCount() != 1 {
		t.Errorf("Ожидалась 1 сессия, получено %d", store.ActiveCount())
	}
}

func TestApplyInput(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, start, _ := store.Connect(addr, now)

	store.ApplyInput(addr, protocol.Input{Dir: physics.DirRight, Sequence: 1}, now.Add(time.Millisecond))

	player := store.players[addr]
	if player.Pos.X != start.X+5 || player.Pos.Y != start.Y {
		t.Errorf("Шаг вправо: ожидалась (%d,%d), получена %+v", start.X+5, start.Y, player.Pos)
	}
	if store.lastProcessed[id] != 1 {
		t.Errorf("Номер последнего ввода: ожидался 1, получен %d", store.lastProcessed[id])
	}
	if player.History.Len() != 2 {
		t.Errorf("История должна содержать 2 записи, содержит %d", player.History.Len())
	}
}

func TestApplyInputUnknownAddr(t *testing.T) {
	store := newTestStore()

	// Чужая датаграмма не должна ничего менять и тем более падать
	store.ApplyInput(testAddr(9999), protocol.Input{Dir: physics.DirUp, Sequence: 7}, time.Now())

	if store.ActiveCount() != 0 {
		t.Error("Ввод от неизвестного адреса не должен создавать сессию")
	}
}

func TestHistoryCapOnInput(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	store.Connect(addr, now)

	cap := DefaultParams().HistoryCap
	for i := 0; i < cap+10; i++ {
		store.ApplyInput(addr, protocol.Input{Dir: physics.DirRight, Sequence: uint32(i)},
			now.Add(time.Duration(i)*time.Millisecond))
	}

	if got := store.players[addr].History.Len(); got != cap {
		t.Errorf("История должна быть ограничена %d записями, содержит %d", cap, got)
	}
}

func TestMovementBoundaries(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()
	store.Connect(addr, now)
	b := DefaultParams().Board

	cases := []struct {
		name string
		set  vec.Vec2
		dir  physics.Direction
		want vec.Vec2
	}{
		{"Левая граница", vec.Vec2{X: b.MinX(), Y: 100}, physics.DirLeft, vec.Vec2{X: b.MinX(), Y: 100}},
		{"Правая граница", vec.Vec2{X: b.MaxX(), Y: 100}, physics.DirRight, vec.Vec2{X: b.MaxX(), Y: 100}},
		{"Верхняя граница", vec.Vec2{X: 100, Y: b.MinY()}, physics.DirUp, vec.Vec2{X: 100, Y: b.MinY()}},
		{"Нижняя граница", vec.Vec2{X: 100, Y: b.MaxY()}, physics.DirDown, vec.Vec2{X: 100, Y: b.MaxY()}},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store.players[addr].Pos = tc.set
			store.ApplyInput(addr, protocol.Input{Dir: tc.dir, Sequence: uint32(i + 1)}, now)
			if got := store.players[addr].Pos; got != tc.want {
				t.Errorf("Ожидалась позиция %+v, получена %+v", tc.want, got)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, pos, _ := store.Connect(addr, now)
	record, ok := store.Disconnect(addr, now)

	if !ok {
		t.Fatal("Disconnect известного адреса должен вернуть запись")
	}
	if record.ID != id || record.Pos != pos {
		t.Errorf("Запись должна сохранить id и позицию: %+v", record)
	}
	if store.ActiveCount() != 0 {
		t.Error("Живая сессия должна быть удалена")
	}
	if store.RecentCount() != 1 {
		t.Error("Должна появиться запись переподключения")
	}
	if len(store.idToAddr) != 0 || len(store.addrToID) != 0 || len(store.lastProcessed) != 0 {
		t.Error("Таблицы индексов должны быть очищены")
	}

	// Отключение неизвестного адреса безопасно
	if _, ok := store.Disconnect(testAddr(9999), now); ok {
		t.Error("Disconnect неизвестного адреса должен вернуть false")
	}
}

func TestEvictTimedOut(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, _, _ := store.Connect(addr, now)

	// Активный игрок не выселяется
	if evicted := store.EvictTimedOut(now.Add(time.Second)); len(evicted) != 0 {
		t.Errorf("Активный игрок не должен выселяться: %+v", evicted)
	}

	// Спустя таймаут игрок выселен и получает запись переподключения
	evicted := store.EvictTimedOut(now.Add(DefaultParams().ClientTimeout))
	if len(evicted) != 1 || evicted[0].ID != id {
		t.Fatalf("Ожидалось выселение игрока %s, получено %+v", id, evicted)
	}
	if store.ActiveCount() != 0 {
		t.Error("Выселенный игрок не должен оставаться живым")
	}
	if store.RecentCount() != 1 {
		t.Error("Выселение должно оставить запись переподключения")
	}

	// Повторное выселение ничего не находит
	if evicted := store.EvictTimedOut(now.Add(time.Minute)); len(evicted) != 0 {
		t.Errorf("Повторное выселение должно быть пустым: %+v", evicted)
	}
}

func TestReconnect(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	newAddr := testAddr(8081)
	now := time.Now()

	id, _, _ := store.Connect(addr, now)
	color := store.players[addr].Color
	store.Disconnect(addr, now)

	claimed := vec.Vec2{X: 300, Y: 300}
	pos, ok := store.Reconnect(newAddr, id, claimed, now.Add(time.Second))

	if !ok {
		t.Fatal("Переподключение в пределах льготного периода должно удаться")
	}
	if pos != claimed {
		t.Errorf("Заявленная позиция в границах поля: ожидалась %+v, получена %+v", claimed, pos)
	}
	if store.addrToID[newAddr] != id {
		t.Error("Переподключение должно восстановить прежний id")
	}
	if store.players[newAddr].Color != color {
		t.Error("Переподключение должно сохранить прежний цвет")
	}
	if store.RecentCount() != 0 {
		t.Error("Запись переподключения должна быть поглощена")
	}
}

func TestReconnectClampsClaimedPosition(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, _, _ := store.Connect(addr, now)
	store.Disconnect(addr, now)

	// Клиент заявляет позицию за пределами поля
	pos, ok := store.Reconnect(testAddr(8081), id, vec.Vec2{X: -500, Y: 99999}, now)
	if !ok {
		t.Fatal("Переподключение должно удаться")
	}

	b := DefaultParams().Board
	want := vec.Vec2{X: b.MinX(), Y: b.MaxY()}
	if pos != want {
		t.Errorf("Заявленная позиция должна прижиматься к границам: ожидалась %+v, получена %+v", want, pos)
	}
}

func TestReconnectUnknownID(t *testing.T) {
	store := newTestStore()

	if _, ok := store.Reconnect(testAddr(8080), uuid.New(), vec.Vec2{X: 100, Y: 100}, time.Now()); ok {
		t.Error("Переподключение с неизвестным id должно провалиться")
	}
}

func TestReconnectLiveIDRejected(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, _, _ := store.Connect(addr, now)
	store.Disconnect(addr, now)

	// Игрок вернулся и id снова живой
	if _, ok := store.Reconnect(testAddr(8081), id, vec.Vec2{X: 100, Y: 100}, now); !ok {
		t.Fatal("Первое переподключение должно удаться")
	}

	// Запись мог бы видеть параллельный проход: имитируем устаревшую запись
	store.mu.Lock()
	store.recent[id] = &DisconnectedRecord{ID: id, DisconnectedAt: now}
	store.mu.Unlock()

	// Второй претендент на живой id отвергается
	if _, ok := store.Reconnect(testAddr(8082), id, vec.Vec2{X: 100, Y: 100}, now); ok {
		t.Error("Переподключение на живой id должно быть отвергнуто")
	}
}

func TestCleanupExpired(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()
	grace := DefaultParams().ReconnectGrace

	id, _, _ := store.Connect(addr, now)
	store.Disconnect(addr, now)

	// До истечения льготного периода запись живёт
	if expired := store.CleanupExpired(now.Add(grace - time.Second)); len(expired) != 0 {
		t.Errorf("Запись не должна удаляться до истечения периода: %+v", expired)
	}

	// После истечения удаляется
	expired := store.CleanupExpired(now.Add(grace))
	if len(expired) != 1 || expired[0] != id {
		t.Fatalf("Ожидалось удаление записи %s, получено %+v", id, expired)
	}

	// Переподключение после очистки проваливается, клиент подключается заново
	if _, ok := store.Reconnect(testAddr(8081), id, vec.Vec2{X: 100, Y: 100}, now.Add(grace)); ok {
		t.Error("Переподключение после истечения периода должно провалиться")
	}
}

func TestCleanupSkipsLiveID(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()

	id, _, _ := store.Connect(addr, now)

	// Устаревшая запись с id живого игрока не должна удаляться
	store.mu.Lock()
	store.recent[id] = &DisconnectedRecord{ID: id, DisconnectedAt: now.Add(-time.Hour)}
	store.mu.Unlock()

	if expired := store.CleanupExpired(now); len(expired) != 0 {
		t.Errorf("Очистка не должна трогать живой id: %+v", expired)
	}
}

func TestActiveAddrs(t *testing.T) {
	store := newTestStore()
	now := time.Now()

	store.Connect(testAddr(8080), now)
	store.Connect(testAddr(8081), now)

	addrs := store.ActiveAddrs()
	if len(addrs) != 2 {
		t.Fatalf("Ожидалось 2 адреса, получено %d", len(addrs))
	}

	seen := map[string]bool{}
	for _, a := range addrs {
		seen[a] = true
	}
	if !seen[testAddr(8080)] || !seen[testAddr(8081)] {
		t.Errorf("Список адресов неполный: %v", addrs)
	}
}

func TestBuildSnapshot(t *testing.T) {
	store := newTestStore()
	now := time.Now()

	id1, _, _ := store.Connect(testAddr(8080), now)
	store.Connect(testAddr(8081), now)

	store.ApplyInput(testAddr(8080), protocol.Input{Dir: physics.DirUp, Sequence: 5}, now)

	snap := store.BuildSnapshot(now)

	if len(snap.Players) != 2 {
		t.Errorf("Снапшот должен содержать 2 игроков, содержит %d", len(snap.Players))
	}
	if snap.LastProcessed[id1] != 5 {
		t.Errorf("Снапшот должен нести подтверждённый номер 5, несёт %d", snap.LastProcessed[id1])
	}
	if snap.ServerTime != seconds(now) {
		t.Errorf("Метка времени сервера: ожидалась %f, получена %f", seconds(now), snap.ServerTime)
	}
}

func TestPositionAt(t *testing.T) {
	store := newTestStore()
	addr := testAddr(8080)
	base := time.Now()

	id, start, _ := store.Connect(addr, base)
	store.ApplyInput(addr, protocol.Input{Dir: physics.DirRight, Sequence: 1}, base.Add(time.Second))
	moved := store.players[addr].Pos

	t.Run("До начала истории", func(t *testing.T) {
		pos, ok := store.PositionAt(id, seconds(base)-1)
		if !ok || pos != start {
			t.Errorf("Ожидалась позиция спавна %+v, получена %+v", start, pos)
		}
	})

	t.Run("После конца истории", func(t *testing.T) {
		pos, ok := store.PositionAt(id, seconds(base)+100)
		if !ok || pos != moved {
			t.Errorf("Ожидалась последняя позиция %+v, получена %+v", moved, pos)
		}
	})

	t.Run("Между записями", func(t *testing.T) {
		pos, ok := store.PositionAt(id, seconds(base)+0.5)
		want := vec.Vec2{X: start.X + 2, Y: start.Y} // усечение 2.5 до 2
		if !ok || pos != want {
			t.Errorf("Ожидалась интерполированная позиция %+v, получена %+v", want, pos)
		}
	})

	t.Run("Неизвестный игрок", func(t *testing.T) {
		if _, ok := store.PositionAt(uuid.New(), seconds(base)); ok {
			t.Error("Неизвестный id должен возвращать false")
		}
	})
}

func TestCollisionCheck(t *testing.T) {
	store := newTestStore()
	now := time.Now()

	store.Connect(testAddr(8080), now)
	store.Connect(testAddr(8081), now)
	store.Connect(testAddr(8082), now)

	// Принудительно совмещаем историю двух игроков в момент ts=100
	store.mu.Lock()
	for _, addr := range []string{testAddr(8080), testAddr(8081)} {
		h := NewHistory(60)
		h.Push(vec.Vec2{X: 50, Y: 50}, 100.0)
		store.players[addr].History = h
	}
	third := NewHistory(60)
	third.Push(vec.Vec2{X: 500, Y: 500}, 100.0)
	store.players[testAddr(8082)].History = third
	store.mu.Unlock()

	pairs := store.CollisionCheck(100.0)
	if len(pairs) != 1 {
		t.Fatalf("Ожидалась ровно одна пара столкновения, получено %d", len(pairs))
	}

	a, b := store.addrToID[testAddr(8080)], store.addrToID[testAddr(8081)]
	got := pairs[0]
	if !((got[0] == a && got[1] == b) || (got[0] == b && got[1] == a)) {
		t.Errorf("Пара должна состоять из совпавших игроков, получена %+v", got)
	}

	// Повторный вызов детерминирован
	again := store.CollisionCheck(100.0)
	if len(again) != 1 || again[0] != got {
		t.Errorf("Повторная проверка должна дать ту же пару: %+v против %+v", again, got)
	}
}

func BenchmarkApplyInput(b *testing.B) {
	store := newTestStore()
	addr := testAddr(8080)
	now := time.Now()
	store.Connect(addr, now)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.ApplyInput(addr, protocol.Input{Dir: physics.Direction(i % 4), Sequence: uint32(i + 1)}, now)
	}
}
