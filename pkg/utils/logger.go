package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на zap
//
// Один глобальный логгер на процесс (InitGlobalLogger в main),
// компоненты получают дочерние логгеры через WithComponent / WithFeed.

// LogConfig - настройки логгера
type LogConfig struct {
	Level  string // debug, info, warn, error, fatal
	Format string // json (по умолчанию) или text
	Output string // stdout, stderr или путь к файлу
}

// Logger - обёртка над zap.Logger с доменными хелперами
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер по конфигурации
//
// Невалидный путь вывода не является ошибкой: логгер пишет в stderr.
func InitLogger(cfg LogConfig) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg.Output), zap.NewAtomicLevelAt(parseLevel(cfg.Level)))
	return &Logger{Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}
}

func openOutput(output string) zapcore.WriteSyncer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewNopLogger возвращает логгер, который ничего не пишет (для тестов)
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ============================================================
// Глобальный логгер
// ============================================================

// L возвращает глобальный логгер, создавая его по умолчанию
//
// Нужен компонентам, которым логгер не передали явно.
func L() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger создаёт логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	setGlobalLogger(l)
	return l
}

func setGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Warn пишет в глобальный логгер
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Sync сбрасывает буферы глобального логгера
func Sync() error {
	return L().Sync()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithComponent - дочерний логгер компонента (store, relay, api)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithFeed - дочерний логгер фида (socket, binance)
func (l *Logger) WithFeed(name string) *Logger {
	return l.With(Feed(name))
}

// WithConn - дочерний логгер WebSocket соединения
func (l *Logger) WithConn(name string) *Logger {
	return l.With(Conn(name))
}

// ============================================================
// Доменные поля
// ============================================================

func Component(name string) zap.Field { return zap.String("component", name) }
func Feed(name string) zap.Field { return zap.String("feed", name) }
func Conn(name string) zap.Field { return zap.String("conn", name) }
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }
func PositionID(id string) zap.Field { return zap.String("position_id", id) }
func Price(price float64) zap.Field { return zap.Float64("price", price) }
func Quantity(qty float64) zap.Field { return zap.Float64("quantity", qty) }
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }
func Equity(equity float64) zap.Field { return zap.Float64("equity", equity) }
func Side(side string) zap.Field { return zap.String("side", side) }
func State(state string) zap.Field { return zap.String("state", state) }
func URL(url string) zap.Field { return zap.String("url", url) }
func Attempt(n int) zap.Field { return zap.Int("attempt", n) }
func MessageType(kind string) zap.Field { return zap.String("msg_type", kind) }
func ClientID(id string) zap.Field { return zap.String("client_id", id) }
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
func Generation(gen uint64) zap.Field { return zap.Uint64("generation", gen) }
func Count(n int) zap.Field { return zap.Int("count", n) }

// Переэкспорт базовых конструкторов zap
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
	Dur     = zap.Duration
)
