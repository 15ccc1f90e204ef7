package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/mmo-netcode/internal/analysis"
	"github.com/annel0/mmo-netcode/internal/config"
	"github.com/annel0/mmo-netcode/internal/interpolation"
	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/network"
	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/prediction"
	"github.com/annel0/mmo-netcode/internal/protocol"
	"github.com/annel0/mmo-netcode/internal/vec"
)

const (
	// frameInterval период игрового цикла, примерно 60 кадров в секунду
	frameInterval = 16 * time.Millisecond

	// turnEveryFrames через сколько кадров бот меняет направление.
	// Бот ходит квадратом, чтобы предсказание работало с реальным
	// движением, а не со стоянием на месте.
	turnEveryFrames = 30

	// statusEvery период печати живой статистики соединения
	statusEvery = 5 * time.Second

	// connectRetryEvery период повтора Connect, пока сервер не ответил
	connectRetryEvery = time.Second
)

// walkPattern порядок направлений обхода квадрата
var walkPattern = []physics.Direction{
	physics.DirRight,
	physics.DirDown,
	physics.DirLeft,
	physics.DirUp,
}

// bot headless клиент: предсказывает своё движение, интерполирует
// чужое и при необходимости прогоняет замеры качества предсказания.
type bot struct {
	client *network.Client

	predParams prediction.Params
	interpCap  int
	interpDel  float64

	engine  *prediction.Engine
	pos     vec.Vec2
	remotes map[uuid.UUID]*interpolation.Buffer

	frame       int
	lastConnect time.Time
	lastStatus  time.Time

	// Замеры качества предсказания по набору сетевых условий
	analyzer *analysis.Analyzer
	origCond network.Conditions
	wantPerf bool
	testing  bool

	// Учения по переподключению: радиомолчание до таймаута, затем Reconnect
	drill      bool
	silentFrom time.Time
	silence    time.Duration
	drillPrev  uuid.UUID
	drillSent  bool
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:7778", "адрес UDP сервера")
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию ENV NETCODE_CONFIG)")
	delayFlag := flag.Int("delay", -1, "искусственная задержка исходящих, мс (-1 = из конфигурации)")
	lossFlag := flag.Float64("loss", -1, "искусственная потеря пакетов, %% (-1 = из конфигурации)")
	duration := flag.Duration("duration", 0, "длительность работы (0 = до сигнала)")
	perfTest := flag.Bool("perf-test", false, "прогнать замеры предсказания по набору сетевых условий и выйти")
	drill := flag.Bool("reconnect-drill", false, "учения: замолчать до таймаута сервера и переподключиться")
	silence := flag.Duration("silence", 12*time.Second, "длительность радиомолчания в учениях")
	flag.Parse()

	if err := logging.InitDefault("client"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	// Флаги командной строки перекрывают конфигурацию
	delayMS := cfg.Simulator.DelayMS
	if *delayFlag >= 0 {
		delayMS = *delayFlag
	}
	lossPercent := cfg.Simulator.LossPercent
	if *lossFlag >= 0 {
		lossPercent = *lossFlag
	}
	cond := network.Conditions{
		Delay:       time.Duration(delayMS) * time.Millisecond,
		LossPercent: lossPercent,
	}

	transport, err := network.NewUDPTransport(*serverAddr)
	if err != nil {
		log.Fatalf("❌ Не удалось открыть сокет к %s: %v", *serverAddr, err)
	}

	b := &bot{
		client: network.NewClient(transport, cond),
		predParams: prediction.Params{
			Board: physics.Board{
				Width:      cfg.Game.BoardWidth,
				Height:     cfg.Game.BoardHeight,
				PlayerSize: cfg.Game.PlayerSize,
				UIMargin:   cfg.Game.UIMargin,
			},
			MoveSpeed:            cfg.Game.MoveSpeed,
			MaxSequenceGap:       cfg.Prediction.MaxSequenceGap,
			MaxReconcileInterval: cfg.Prediction.MaxReconcileInterval().Seconds(),
		},
		interpCap: cfg.Interpolation.BufferCap,
		interpDel: cfg.Interpolation.DelaySeconds,
		remotes:   make(map[uuid.UUID]*interpolation.Buffer),
		origCond:  cond,
		wantPerf:  *perfTest,
		drill:     *drill,
		silence:   *silence,
	}
	defer b.client.Close()

	logging.Info("🎮 Клиент подключается к %s (задержка %dмс, потери %.1f%%)", *serverAddr, delayMS, lossPercent)
	if err := b.client.SendConnect(); err != nil {
		log.Fatalf("❌ Не удалось отправить Connect: %v", err)
	}
	b.lastConnect = time.Now()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logging.Info("📡 Получен сигнал %v, отключение...", sig)
			b.shutdown()
			return
		case <-deadline:
			logging.Info("⏰ Время работы истекло, отключение...")
			b.shutdown()
			return
		case <-ticker.C:
			if done := b.tick(time.Now()); done {
				b.shutdown()
				return
			}
		}
	}
}

// tick выполняет один кадр игрового цикла. Возвращает true, когда
// работа завершена (замеры прогнаны).
func (b *bot) tick(now time.Time) bool {
	b.frame++
	nowSec := protocol.NowSeconds()

	if b.drill {
		b.tickDrill(now)
	}

	silent := b.drill && !b.silentFrom.IsZero() && !b.drillSent

	// Пока идентификатор не присвоен, Connect повторяется: датаграмма
	// могла потеряться по дороге
	if _, ok := b.client.PlayerID(); !ok && !silent {
		if now.Sub(b.lastConnect) >= connectRetryEvery {
			_ = b.client.SendConnect()
			b.lastConnect = now
		}
	}

	// Локальный ввод применяется к отображаемой позиции немедленно
	if b.engine != nil && !silent {
		dir := walkPattern[(b.frame/turnEveryFrames)%len(walkPattern)]
		in := b.engine.Predict(dir, &b.pos, nowSec)
		if err := b.client.SendInput(in); err != nil {
			logging.Warn("Отправка ввода не удалась: %v", err)
		}
	}

	if !silent {
		_ = b.client.MaybePing(now)
	}

	for _, msg := range b.client.Poll(now) {
		switch m := msg.(type) {
		case *protocol.Snapshot:
			b.handleSnapshot(m, nowSec)
		case protocol.DisconnectAck:
			logging.Debug("Сервер подтвердил отключение")
		}
	}

	// Замеры стартуют только после появления собственной позиции,
	// иначе первое окно уходит на рукопожатие
	if b.wantPerf && !b.testing && b.engine != nil {
		b.startPerfTest()
		b.wantPerf = false
	}

	if b.testing && b.tickPerfTest() {
		return true
	}

	if now.Sub(b.lastStatus) >= statusEvery {
		b.logStatus()
		b.lastStatus = now
	}
	return false
}

// handleSnapshot применяет авторитетное состояние: сверка собственной
// позиции, буферизация чужих, снятие исчезнувших игроков.
func (b *bot) handleSnapshot(snap *protocol.Snapshot, nowSec float64) {
	selfID, hasID := b.client.PlayerID()
	seen := make(map[uuid.UUID]struct{}, len(snap.Players))

	for _, entry := range snap.Players {
		seen[entry.ID] = struct{}{}

		if hasID && entry.ID == selfID {
			if b.engine == nil {
				// Первый снапшот с собой задаёт подтверждённую базу
				b.engine = prediction.NewEngine(entry.Pos, b.predParams)
				b.pos = entry.Pos
				logging.Info("🎮 Стартовая позиция (%d, %d)", entry.Pos.X, entry.Pos.Y)
				continue
			}

			// Порядок существенный: сначала сверка, затем измерение
			// остаточной ошибки, затем повтор неподтверждённых вводов
			b.engine.Reconcile(entry.Pos, snap.LastProcessed[selfID], nowSec)
			errDist := b.engine.PredictionError(entry.Pos)
			if b.testing {
				b.analyzer.RecordReconciliation()
				b.analyzer.RecordPredictionError(errDist)
			}
			b.engine.ReapplyPendingInputs(&b.pos)
			continue
		}

		buf, ok := b.remotes[entry.ID]
		if !ok {
			buf = interpolation.NewBuffer(b.interpCap, b.interpDel)
			b.remotes[entry.ID] = buf
			logging.Info("👤 В игре новый игрок %s", entry.ID)
		}
		buf.AddPosition(entry.Pos, nowSec, snap.LastProcessed[entry.ID])
	}

	for id := range b.remotes {
		if _, ok := seen[id]; !ok {
			delete(b.remotes, id)
			logging.Info("👋 Игрок %s покинул игру", id)
		}
	}
}

// startPerfTest запускает серию замеров по стандартным сетевым условиям
func (b *bot) startPerfTest() {
	b.analyzer = analysis.NewAnalyzer(time.Second)
	b.testing = true

	cond, ok := b.analyzer.StartNextTest()
	if !ok {
		b.testing = false
		return
	}
	b.applyCondition(cond)
	logging.Info("🧪 Замер условий: %s", cond.Name)
}

// tickPerfTest продвигает серию замеров. Возвращает true после
// печати итогового отчёта.
func (b *bot) tickPerfTest() bool {
	if !b.analyzer.IsTestComplete() {
		return false
	}
	b.analyzer.CompleteCurrentTest()

	cond, ok := b.analyzer.StartNextTest()
	if ok {
		b.applyCondition(cond)
		logging.Info("🧪 Замер условий: %s", cond.Name)
		return false
	}

	// Серия закончена: вернуть исходные условия и показать отчёт
	b.client.SetConditions(b.origCond)
	b.testing = false
	fmt.Print(b.analyzer.GenerateReport())
	return true
}

// applyCondition переводит условие замера в настройки симулятора
func (b *bot) applyCondition(cond analysis.Condition) {
	b.client.SetConditions(network.Conditions{
		Delay:       time.Duration(cond.LatencyMS) * time.Millisecond,
		LossPercent: cond.LossPercent,
	})
}

// tickDrill ведёт учения по переподключению: после разогрева клиент
// замолкает, сервер выселяет его по таймауту, затем клиент просит
// восстановить прежнюю сессию.
func (b *bot) tickDrill(now time.Time) {
	// Радиомолчание начинается после пары секунд обычной игры
	if b.silentFrom.IsZero() {
		if b.engine != nil && b.frame > 2*int(time.Second/frameInterval) {
			id, ok := b.client.PlayerID()
			if !ok {
				return
			}
			b.drillPrev = id
			b.silentFrom = now
			logging.Info("🔇 Радиомолчание на %v, сервер должен выселить %s", b.silence, id)
		}
		return
	}

	if b.drillSent || now.Sub(b.silentFrom) < b.silence {
		return
	}

	// Прежний идентификатор сбрасывается, иначе ответ сервера не примется
	b.client.ResetID()
	b.engine = nil
	if err := b.client.SendReconnect(b.drillPrev, b.pos); err != nil {
		logging.Warn("Отправка Reconnect не удалась: %v", err)
		return
	}
	b.drillSent = true
	logging.Info("🔄 Попытка восстановить сессию %s с позиции (%d, %d)", b.drillPrev, b.pos.X, b.pos.Y)
}

// logStatus печатает живую сводку соединения
func (b *bot) logStatus() {
	rtt := b.client.RTT()
	sim := b.client.SimulatorStats()

	pending := 0
	if b.engine != nil {
		pending = b.engine.PendingCount()
	}

	logging.Info("❤️ RTT p50=%v p95=%v (%d замеров) | вводов в полёте %d | чужих игроков %d | потеряно пакетов %d",
		rtt.P50, rtt.P95, rtt.Count, pending, len(b.remotes), sim.Dropped)

	if b.drill && b.drillSent {
		if id, ok := b.client.PlayerID(); ok {
			if id == b.drillPrev {
				logging.Info("✅ Сессия %s восстановлена", id)
			} else {
				logging.Info("❌ Льготный период истёк, выдан новый идентификатор %s", id)
			}
		}
	}
}

// shutdown вежливо прощается с сервером
func (b *bot) shutdown() {
	if err := b.client.SendDisconnect(); err != nil {
		logging.Warn("Отправка Disconnect не удалась: %v", err)
	}
	// Небольшая пауза даёт DisconnectAck шанс дойти
	time.Sleep(100 * time.Millisecond)
	b.client.Poll(time.Now())
	logging.Info("👋 Клиент остановлен")
}
