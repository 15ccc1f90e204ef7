package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Отсутствующие в YAML поля сохраняют значения по умолчанию.

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Game          GameConfig          `yaml:"game"`
	Prediction    PredictionConfig    `yaml:"prediction"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
	Simulator     SimulatorConfig     `yaml:"simulator"`
	EventBus      EventBusConfig      `yaml:"eventbus"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	UDPPort               int `yaml:"udp_port"`
	MetricsPort           int `yaml:"metrics_port"`
	BroadcastIntervalMS   int `yaml:"broadcast_interval_ms"`
	ClientTimeoutSeconds  int `yaml:"client_timeout_seconds"`
	ReconnectGraceSeconds int `yaml:"reconnect_grace_seconds"`
}

type GameConfig struct {
	BoardWidth  int `yaml:"board_width"`
	BoardHeight int `yaml:"board_height"`
	PlayerSize  int `yaml:"player_size"`
	MoveSpeed   int `yaml:"move_speed"`
	UIMargin    int `yaml:"ui_margin"`
	HistoryCap  int `yaml:"history_cap"`
}

type PredictionConfig struct {
	MaxSequenceGap         uint32 `yaml:"max_sequence_gap"`
	MaxReconcileIntervalMS int    `yaml:"max_reconcile_interval_ms"`
}

type InterpolationConfig struct {
	BufferCap    int     `yaml:"buffer_cap"`
	DelaySeconds float64 `yaml:"delay_seconds"`
}

type SimulatorConfig struct {
	DelayMS     int     `yaml:"delay_ms"`
	JitterMS    int     `yaml:"jitter_ms"`
	LossPercent float64 `yaml:"loss_percent"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type StorageConfig struct {
	Backend           string      `yaml:"backend"` // memory | redis | mariadb
	FlushEverySeconds int         `yaml:"flush_every_seconds"`
	Redis             RedisConfig `yaml:"redis"`
	Maria             MariaConfig `yaml:"maria"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	File         string `yaml:"file"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// GetUDPPort возвращает UDP порт с поддержкой fallback значений
func (s *ServerConfig) GetUDPPort() int {
	return getPortWithEnvFallback(s.UDPPort, "NETCODE_UDP_PORT", 7778)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "NETCODE_METRICS_PORT", 2112)
}

// BroadcastInterval возвращает период рассылки снапшотов
func (s *ServerConfig) BroadcastInterval() time.Duration {
	if s.BroadcastIntervalMS <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(s.BroadcastIntervalMS) * time.Millisecond
}

// ClientTimeout возвращает таймаут неактивности клиента
func (s *ServerConfig) ClientTimeout() time.Duration {
	if s.ClientTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ClientTimeoutSeconds) * time.Second
}

// ReconnectGrace возвращает окно на переподключение после обрыва
func (s *ServerConfig) ReconnectGrace() time.Duration {
	if s.ReconnectGraceSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ReconnectGraceSeconds) * time.Second
}

// MaxReconcileInterval возвращает максимальный интервал между сверками
func (p *PredictionConfig) MaxReconcileInterval() time.Duration {
	if p.MaxReconcileIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(p.MaxReconcileIntervalMS) * time.Millisecond
}

// FlushEvery возвращает период выгрузки архива сессий в хранилище
func (s *StorageConfig) FlushEvery() time.Duration {
	if s.FlushEverySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.FlushEverySeconds) * time.Second
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:               7778,
			MetricsPort:           2112,
			BroadcastIntervalMS:   16,
			ClientTimeoutSeconds:  10,
			ReconnectGraceSeconds: 10,
		},
		Game: GameConfig{
			BoardWidth:  1024,
			BoardHeight: 768,
			PlayerSize:  20,
			MoveSpeed:   5,
			UIMargin:    50,
			HistoryCap:  60,
		},
		Prediction: PredictionConfig{
			MaxSequenceGap:         5,
			MaxReconcileIntervalMS: 500,
		},
		Interpolation: InterpolationConfig{
			BufferCap:    30,
			DelaySeconds: 0.016,
		},
		Simulator: SimulatorConfig{
			DelayMS:     0,
			JitterMS:    5,
			LossPercent: 0,
		},
		EventBus: EventBusConfig{
			Stream:    "NETCODE_EVENTS",
			Retention: 24,
		},
		Storage: StorageConfig{
			Backend:           "memory",
			FlushEverySeconds: 5,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Maria: MariaConfig{
				Host: "localhost",
				Port: 3306,
			},
		},
		Logging: LoggingConfig{
			File:         "logs/netcode.log",
			ConsoleLevel: "info",
			FileLevel:    "trace",
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV NETCODE_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NETCODE_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
