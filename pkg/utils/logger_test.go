package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger пишет JSON в буфер
func bufferLogger(buf *bytes.Buffer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:  "message",
			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,
		}),
		zapcore.AddSync(buf),
		level,
	)
	return &Logger{Logger: zap.New(core)}
}

// ============================================================
// Тесты InitLogger
// ============================================================

func TestInitLogger_FileOutput(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		message string
		want    []string
	}{
		{"json", "json", "feed started", []string{`"message":"feed started"`, `"level":"info"`, `"ts":`}},
		{"text", "text", "feed started", []string{"INFO", "feed started"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "app.log")
			logger := InitLogger(LogConfig{Level: "info", Format: tt.format, Output: path})

			logger.Debug("hidden")
			logger.Info(tt.message, Feed("socket"))
			logger.Sync()

			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read log file: %v", err)
			}
			out := string(content)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q does not contain %q", out, w)
				}
			}
			if strings.Contains(out, "hidden") {
				t.Error("debug entry written at info level")
			}
		})
	}
}

func TestInitLogger_InvalidFileOutput(t *testing.T) {
	// Несуществующая директория: fallback на stderr, без паники
	logger := InitLogger(LogConfig{
		Level:  "info",
		Output: "/nonexistent/directory/log.txt",
	})
	if logger == nil || logger.Logger == nil {
		t.Fatal("InitLogger returned nil for invalid output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("nop logger must not be enabled")
	}
	logger.WithFeed("socket").Info("dropped")
}

// ============================================================
// Тесты глобального логгера
// ============================================================

func TestGlobalLogger(t *testing.T) {
	globalMu.Lock()
	globalLogger = nil
	globalMu.Unlock()

	// L() создаёт логгер по умолчанию один раз
	first := L()
	if first == nil {
		t.Fatal("L() returned nil")
	}
	if L() != first {
		t.Error("L() returned different loggers")
	}

	installed := InitGlobalLogger(LogConfig{Level: "warn", Output: "stderr"})
	if L() != installed {
		t.Error("InitGlobalLogger did not replace the global logger")
	}
}

func TestGlobalWarn(t *testing.T) {
	var buf bytes.Buffer
	setGlobalLogger(bufferLogger(&buf, zapcore.DebugLevel))
	t.Cleanup(func() { setGlobalLogger(NewNopLogger()) })

	Warn("failed to encode response", Err(os.ErrClosed))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "failed to encode response") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, `"error":"file already closed"`) {
		t.Errorf("error field missing: %s", out)
	}
}

// ============================================================
// Дочерние логгеры и поля
// ============================================================

func TestLogger_ChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, zapcore.InfoLevel)

	tests := []struct {
		name   string
		child  *Logger
		expect string
	}{
		{"WithComponent", logger.WithComponent("relay"), `"component":"relay"`},
		{"WithFeed", logger.WithFeed("binance"), `"feed":"binance"`},
		{"WithConn", logger.WithConn("binance-0"), `"conn":"binance-0"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.child.Info("x")
			if !strings.Contains(buf.String(), tt.expect) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.expect)
			}
		})
	}

	// родитель не получает полей ребёнка
	buf.Reset()
	logger.Info("parent")
	if strings.Contains(buf.String(), "component") {
		t.Errorf("parent logger polluted: %s", buf.String())
	}
}

func TestFieldConstructors(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, zapcore.InfoLevel)

	logger.Info("test",
		Component("store"),
		Feed("socket"),
		Conn("socket"),
		Symbol("BTC"),
		PositionID("pos-456"),
		Price(25000.5),
		Quantity(0.5),
		PNL(100.25),
		Equity(10100.25),
		Side("LONG"),
		State("open"),
		URL("wss://fstream.binance.com"),
		Attempt(3),
		MessageType("price_update"),
		ClientID("c-1"),
		Latency(15.5),
		Generation(7),
		Count(2),
		Int64("bytes", 512),
		Dur("delay", 0),
	)

	expected := []string{
		`"component":"store"`,
		`"feed":"socket"`,
		`"conn":"socket"`,
		`"symbol":"BTC"`,
		`"position_id":"pos-456"`,
		`"price":25000.5`,
		`"quantity":0.5`,
		`"pnl":100.25`,
		`"equity":10100.25`,
		`"side":"LONG"`,
		`"state":"open"`,
		`"url":"wss://fstream.binance.com"`,
		`"attempt":3`,
		`"msg_type":"price_update"`,
		`"client_id":"c-1"`,
		`"latency_ms":15.5`,
		`"generation":7`,
		`"count":2`,
		`"bytes":512`,
	}
	out := buf.String()
	for _, field := range expected {
		if !strings.Contains(out, field) {
			t.Errorf("field %s not found in output: %s", field, out)
		}
	}
}

// ============================================================
// Бенчмарки
// ============================================================

func BenchmarkLogger_Info(b *testing.B) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, zapcore.InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		logger.Info("message applied", MessageType("price_update"), Symbol("BTC"), Price(50000))
	}
}

func BenchmarkLogger_DebugDisabled(b *testing.B) {
	logger := bufferLogger(&bytes.Buffer{}, zapcore.InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("message applied", MessageType("price_update"), Symbol("BTC"), Price(50000))
	}
}
