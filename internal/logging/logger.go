// Package logging реализует уровневое логирование сервера и клиента.
// Консоль получает INFO и выше, файл с ротацией пишет всё от
// настроенного уровня.
package logging

import (
	"encoding/hex"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровни логирования
type LogLevel int8

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// traceLevel - уровень zap ниже Debug для трассировки
const traceLevel = zapcore.Level(-2)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Config задаёт параметры системы логирования
type Config struct {
	FilePath        string   // Путь к файлу логов
	MinConsoleLevel LogLevel // Минимальный уровень для консоли
	MinFileLevel    LogLevel // Минимальный уровень для файла
	MaxSizeMB       int      // Размер файла до ротации
	MaxBackups      int      // Сколько файлов хранить
	MaxAgeDays      int      // Сколько дней хранить
}

// DefaultConfig возвращает параметры логирования по умолчанию
func DefaultConfig() Config {
	return Config{
		FilePath:        "logs/netcode.log",
		MinConsoleLevel: INFO,
		MinFileLevel:    TRACE,
		MaxSizeMB:       10,
		MaxBackups:      3,
		MaxAgeDays:      7,
	}
}

// Logger представляет логгер одного компонента
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
	baseSugar     *zap.SugaredLogger
)

// ParseLevel разбирает строковое имя уровня, по умолчанию INFO
func ParseLevel(s string) LogLevel {
	switch s {
	case "trace", "TRACE":
		return TRACE
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// InitDefault инициализирует логирование компонента с файлом logs/<component>.log
func InitDefault(component string) error {
	cfg := DefaultConfig()
	cfg.FilePath = "logs/" + component + ".log"
	return Init(cfg)
}

// Init инициализирует систему логирования. Повторный вызов
// заменяет глобальный логгер.
func Init(cfg Config) error {
	if cfg.FilePath == "" {
		cfg.FilePath = "logs/netcode.log"
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   false,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   encodeLevel,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	fileLevel := cfg.MinFileLevel.zapLevel()
	consoleLevel := cfg.MinConsoleLevel.zapLevel()

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(rotator),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= fileLevel })),
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= consoleLevel })),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))

	mu.Lock()
	baseSugar = logger.Sugar()
	defaultLogger = &Logger{sugar: baseSugar}
	mu.Unlock()
	return nil
}

// encodeLevel печатает TRACE для кастомного уровня, остальное как обычно
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

// NewLogger возвращает логгер для отдельного компонента.
// До вызова Init возвращает no-op логгер.
func NewLogger(component string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if baseSugar == nil {
		return &Logger{}
	}
	return &Logger{sugar: baseSugar.Named(component)}
}

// Close сбрасывает буферы логгера
func Close() {
	mu.RLock()
	defer mu.RUnlock()
	if baseSugar != nil {
		_ = baseSugar.Sync()
	}
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Logf(level.zapLevel(), format, args...)
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.logf(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.logf(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.logf(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.logf(ERROR, format, args...) }

func global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Trace логирует сообщение уровня TRACE в глобальный логгер
func Trace(format string, args ...interface{}) { global().logf(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG в глобальный логгер
func Debug(format string, args ...interface{}) { global().logf(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO в глобальный логгер
func Info(format string, args ...interface{}) { global().logf(INFO, format, args...) }

// Warn логирует сообщение уровня WARN в глобальный логгер
func Warn(format string, args ...interface{}) { global().logf(WARN, format, args...) }

// Error логирует сообщение уровня ERROR в глобальный логгер
func Error(format string, args ...interface{}) { global().logf(ERROR, format, args...) }

// HexDump создает hex дамп данных, не длиннее 256 байт
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogDatagram логирует датаграмму с hex дампом для отладки протокола
func LogDatagram(direction string, addr string, payload []byte) {
	Trace("=== %s датаграмма %s, %d байт ===", direction, addr, len(payload))
	if len(payload) > 0 {
		Trace("%s", HexDump(payload))
	}
}

// LogProtocolError логирует ошибку разбора датаграммы
func LogProtocolError(addr string, err error, data []byte) {
	Debug("Ошибка протокола от %s: %v", addr, err)
	if len(data) > 0 {
		Debug("Сырые данные (%d байт):\n%s", len(data), HexDump(data))
	}
}
