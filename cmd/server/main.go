package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/mmo-netcode/internal/config"
	"github.com/annel0/mmo-netcode/internal/eventbus"
	"github.com/annel0/mmo-netcode/internal/game"
	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/metrics"
	"github.com/annel0/mmo-netcode/internal/network"
	"github.com/annel0/mmo-netcode/internal/physics"
	"github.com/annel0/mmo-netcode/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию ENV NETCODE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	// Инициализируем систему логирования
	logCfg := logging.DefaultConfig()
	logCfg.FilePath = cfg.Logging.File
	logCfg.MinConsoleLevel = logging.ParseLevel(cfg.Logging.ConsoleLevel)
	logCfg.MinFileLevel = logging.ParseLevel(cfg.Logging.FileLevel)
	if err := logging.Init(logCfg); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.Close()

	logging.Info("🎮 Запуск netcode сервера...")
	logging.Debug("Инициализация системы логирования завершена")

	// === КОНФИГУРАЦИЯ ===
	udpPort := cfg.Server.GetUDPPort()
	metricsPort := cfg.Server.GetMetricsPort()

	logging.Info("📡 Конфигурация сервера: UDP=:%d, метрики=:%d, снапшоты каждые %v",
		udpPort, metricsPort, cfg.Server.BroadcastInterval())
	logging.Info("   Поле %dx%d, размер игрока %d, скорость %d",
		cfg.Game.BoardWidth, cfg.Game.BoardHeight, cfg.Game.PlayerSize, cfg.Game.MoveSpeed)
	logging.Info("   Таймаут клиента %v, льготный период переподключения %v",
		cfg.Server.ClientTimeout(), cfg.Server.ReconnectGrace())

	// === ИНИЦИАЛИЗАЦИЯ КОМПОНЕНТОВ ===

	// Архив отключённых сессий
	logging.Debug("Создание архива сессий (бэкенд: %s)...", cfg.Storage.Backend)
	archive := newArchiveRepo(cfg)

	// Авторитетное состояние сессий
	logging.Debug("Создание хранилища сессий...")
	store := game.NewSessionStore(game.Params{
		Board: physics.Board{
			Width:      cfg.Game.BoardWidth,
			Height:     cfg.Game.BoardHeight,
			PlayerSize: cfg.Game.PlayerSize,
			UIMargin:   cfg.Game.UIMargin,
		},
		MoveSpeed:      cfg.Game.MoveSpeed,
		HistoryCap:     cfg.Game.HistoryCap,
		ClientTimeout:  cfg.Server.ClientTimeout(),
		ReconnectGrace: cfg.Server.ReconnectGrace(),
	})

	// Записи льготного периода переживают рестарт сервера
	restoreArchive(store, archive)

	// Шина событий сессий
	logging.Debug("Создание шины событий...")
	bus := newEventBus(cfg)
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось подписать логгер на шину событий: %v", err)
	}

	// Prometheus метрики и системный монитор
	logging.Debug("Запуск системы метрик...")
	nm := metrics.NewNetcodeMetrics()
	metricsSrv := metrics.StartServer(metricsPort)
	monitor := metrics.NewSystemMonitor(10 * time.Second)
	monitor.Start()
	busExporter := eventbus.NewMetricsExporter(bus)
	busExporter.Start()

	// UDP сервер
	logging.Debug("Создание UDP сервера...")
	srv, err := network.NewUDPServer(fmt.Sprintf(":%d", udpPort), network.ServerDeps{
		Store:             store,
		Bus:               bus,
		Archive:           archive,
		Metrics:           nm,
		BroadcastInterval: cfg.Server.BroadcastInterval(),
	})
	if err != nil {
		logging.Error("❌ Ошибка создания UDP сервера: %v", err)
		log.Fatalf("❌ Ошибка создания UDP сервера: %v", err)
	}
	srv.Start()

	// Периодическая выгрузка льготных записей во внешнее хранилище
	flushCtx, stopFlush := context.WithCancel(context.Background())
	go flushLoop(flushCtx, store, archive, cfg.Storage.FlushEvery())

	logging.Info("✅ Все сервисы запущены и готовы принимать соединения")
	logging.Info("   🎮 Игровой трафик: UDP %s", srv.Addr())
	logging.Info("   📈 Prometheus метрики: http://localhost:%d/metrics", metricsPort)
	logging.Debug("Сервер полностью инициализирован и работает")

	logging.Info("💡 Подключение клиента:")
	logging.Info("   go run ./cmd/client --server 127.0.0.1:%d", udpPort)
	logging.Info("   go run ./cmd/client --server 127.0.0.1:%d --perf-test", udpPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Debug("Ожидание сигналов завершения...")

	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	stopFlush()

	logging.Debug("Остановка UDP сервера...")
	srv.Stop()

	// Финальная выгрузка архива, чтобы льготные записи пережили рестарт
	if records := store.RecentRecords(); len(records) > 0 {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := archive.BatchSave(saveCtx, records); err != nil {
			logging.Warn("Не удалось сохранить архив при остановке: %v", err)
		} else {
			logging.Info("💾 Архив сессий сохранён: %d записей", len(records))
		}
		cancel()
	}

	logging.Debug("Остановка системного монитора...")
	monitor.Stop()
	busExporter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = metricsSrv.Shutdown(shutdownCtx)
	cancel()

	if err := archive.Close(); err != nil {
		logging.Warn("Ошибка закрытия архива: %v", err)
	}
	if closer, ok := bus.(interface{ Close() }); ok {
		closer.Close()
	}

	logging.Info("⏰ Аптайм сервера: %s", monitor.Uptime())
	logging.Info("👋 Сервер успешно остановлен")
}

// newArchiveRepo выбирает бэкенд архива по конфигурации. Если внешнее
// хранилище недоступно, сервер остаётся работоспособным на памяти.
func newArchiveRepo(cfg *config.Config) storage.ArchiveRepo {
	switch cfg.Storage.Backend {
	case "redis":
		rc := storage.DefaultRedisArchiveConfig()
		rc.Addr = cfg.Storage.Redis.Addr
		rc.Password = cfg.Storage.Redis.Password
		rc.DB = cfg.Storage.Redis.DB
		repo, err := storage.NewRedisArchiveRepo(rc)
		if err != nil {
			logging.Warn("⚠️ Redis недоступен (%v), архив сессий в памяти", err)
			return storage.NewMemoryArchiveRepo()
		}
		return repo

	case "maria", "mariadb":
		m := cfg.Storage.Maria
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			m.Username, m.Password, m.Host, m.Port, m.Database)
		repo, err := storage.NewMariaArchiveRepo(dsn)
		if err != nil {
			logging.Warn("⚠️ MariaDB недоступна (%v), архив сессий в памяти", err)
			return storage.NewMemoryArchiveRepo()
		}
		return repo

	default:
		return storage.NewMemoryArchiveRepo()
	}
}

// restoreArchive загружает записи льготного периода, сохранённые перед
// рестартом. Просроченные записи удалит первый же цикл обслуживания.
func restoreArchive(store *game.SessionStore, archive storage.ArchiveRepo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := archive.LoadAll(ctx)
	if err != nil {
		logging.Warn("Не удалось загрузить архив сессий: %v", err)
		return
	}
	if restored := store.RestoreRecords(records); restored > 0 {
		logging.Info("🔄 Восстановлено записей льготного периода: %d", restored)
	}
}

// newEventBus создаёт шину событий: JetStream при заданном URL, иначе в памяти.
func newEventBus(cfg *config.Config) eventbus.EventBus {
	if cfg.EventBus.URL == "" {
		return eventbus.NewMemoryBus(1024)
	}

	retention := time.Duration(cfg.EventBus.Retention) * time.Hour
	bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
	if err != nil {
		logging.Warn("⚠️ NATS недоступен (%v), шина событий в памяти", err)
		return eventbus.NewMemoryBus(1024)
	}
	logging.Info("🪵 События сессий публикуются в JetStream: %s", cfg.EventBus.URL)
	return bus
}

// flushLoop периодически выгружает записи льготного периода в архив.
// Память остаётся источником истины, выгрузка только страхует рестарт.
func flushLoop(ctx context.Context, store *game.SessionStore, archive storage.ArchiveRepo, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records := store.RecentRecords()
			if len(records) == 0 {
				continue
			}
			saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := archive.BatchSave(saveCtx, records); err != nil {
				logging.Warn("Выгрузка архива не удалась: %v", err)
			}
			cancel()
		}
	}
}
