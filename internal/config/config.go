package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tradedash/internal/models"
	"tradedash/pkg/utils"
)

// Режимы фида
const (
	FeedModeSocket  = "socket"  // унифицированный сокет приложения
	FeedModeBinance = "binance" // прямой фид Binance Futures
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server  ServerConfig
	Feed    FeedConfig
	Binance BinanceConfig
	Relay   RelayConfig
	Store   StoreConfig
	Logging LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port               int
	Host               string
	CORSAllowedOrigins string
	ShutdownTimeout    time.Duration
}

// FeedConfig - настройки источника событий
type FeedConfig struct {
	Mode string

	// Символы для отслеживания (биржевые: BTCUSDT)
	Symbols []string

	// Unified socket
	SocketURL            string
	SocketReconnectDelay time.Duration

	// Параметры WebSocket соединений
	PingInterval   time.Duration // 0 = без ping
	ConnectTimeout time.Duration
}

// BinanceConfig - настройки прямого фида Binance
type BinanceConfig struct {
	WSURL          string
	RESTURL        string
	ReconnectDelay time.Duration
	TickerRefresh  time.Duration // период опроса 24h тикеров
	CombinedStream bool          // одно соединение на все символы
}

// RelayConfig - настройки downstream relay
type RelayConfig struct {
	HeartbeatInterval time.Duration
	AllowedOrigins    string
}

// StoreConfig - лимиты хранилища
type StoreConfig struct {
	TradesLimit    int
	EquityLimit    int
	InitialBalance float64
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Feed: FeedConfig{
			Mode:                 strings.ToLower(getEnv("FEED_MODE", FeedModeSocket)),
			Symbols:              getEnvAsSlice("FEED_SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}),
			SocketURL:            getEnv("FEED_SOCKET_URL", "ws://localhost:8000/ws"),
			SocketReconnectDelay: getEnvAsDuration("SOCKET_RECONNECT_DELAY", 2*time.Second),
			PingInterval:         getEnvAsDuration("WS_PING_INTERVAL", 0),
			ConnectTimeout:       getEnvAsDuration("WS_CONNECT_TIMEOUT", 10*time.Second),
		},
		Binance: BinanceConfig{
			WSURL:          getEnv("BINANCE_WS_URL", "wss://fstream.binance.com"),
			RESTURL:        getEnv("BINANCE_REST_URL", "https://fapi.binance.com"),
			ReconnectDelay: getEnvAsDuration("BINANCE_RECONNECT_DELAY", 3*time.Second),
			TickerRefresh:  getEnvAsDuration("TICKER_REFRESH", 5*time.Second),
			CombinedStream: getEnvAsBool("BINANCE_COMBINED_STREAM", false),
		},
		Relay: RelayConfig{
			HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 5*time.Second),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
		},
		Store: StoreConfig{
			TradesLimit:    getEnvAsInt("TRADES_LIMIT", 1000),
			EquityLimit:    getEnvAsInt("EQUITY_LIMIT", 4320),
			InitialBalance: getEnvAsFloat("INITIAL_BALANCE", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// BTC и BTCUSDT задают один поток
	cfg.Feed.Symbols = exchangeSymbols(cfg.Feed.Symbols)

	// Валидация режима фида и адресов
	if err := cfg.validateFeed(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// exchangeSymbols приводит ключи тикеров к биржевым символам без повторов
func exchangeSymbols(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, sym := range list {
		ex := models.ExchangeSymbol(sym, "USDT")
		if _, ok := seen[ex]; ok {
			continue
		}
		seen[ex] = struct{}{}
		out = append(out, ex)
	}
	return out
}

// validateFeed проверяет режим и адреса источника
func (c *Config) validateFeed() error {
	switch c.Feed.Mode {
	case FeedModeSocket:
		if err := validateWSURL("FEED_SOCKET_URL", c.Feed.SocketURL); err != nil {
			return err
		}
	case FeedModeBinance:
		if len(c.Feed.Symbols) == 0 {
			return fmt.Errorf("FEED_SYMBOLS is required in binance mode")
		}
		for _, sym := range c.Feed.Symbols {
			if !utils.IsValidSymbol(sym) {
				return fmt.Errorf("FEED_SYMBOLS contains invalid symbol %q", sym)
			}
		}
		if err := validateWSURL("BINANCE_WS_URL", c.Binance.WSURL); err != nil {
			return err
		}
		u, err := url.Parse(c.Binance.RESTURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("BINANCE_REST_URL must be an http(s) URL, got %q", c.Binance.RESTURL)
		}
	default:
		return fmt.Errorf("FEED_MODE must be %q or %q, got %q", FeedModeSocket, FeedModeBinance, c.Feed.Mode)
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Feed.SocketReconnectDelay <= 0 {
		return fmt.Errorf("SOCKET_RECONNECT_DELAY must be positive, got %v", c.Feed.SocketReconnectDelay)
	}

	if c.Binance.ReconnectDelay <= 0 {
		return fmt.Errorf("BINANCE_RECONNECT_DELAY must be positive, got %v", c.Binance.ReconnectDelay)
	}

	if c.Binance.TickerRefresh < time.Second {
		return fmt.Errorf("TICKER_REFRESH must be at least 1s, got %v", c.Binance.TickerRefresh)
	}

	if c.Feed.ConnectTimeout <= 0 {
		return fmt.Errorf("WS_CONNECT_TIMEOUT must be positive, got %v", c.Feed.ConnectTimeout)
	}

	// 0 отключает ping / heartbeat
	if c.Feed.PingInterval < 0 {
		return fmt.Errorf("WS_PING_INTERVAL cannot be negative, got %v", c.Feed.PingInterval)
	}

	if c.Relay.HeartbeatInterval < 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL cannot be negative, got %v", c.Relay.HeartbeatInterval)
	}

	// Лимиты хранилища
	if c.Store.TradesLimit < 1 {
		return fmt.Errorf("TRADES_LIMIT must be positive, got %d", c.Store.TradesLimit)
	}

	if c.Store.EquityLimit < 1 {
		return fmt.Errorf("EQUITY_LIMIT must be positive, got %d", c.Store.EquityLimit)
	}

	if c.Store.InitialBalance < 0 {
		return fmt.Errorf("INITIAL_BALANCE cannot be negative, got %v", c.Store.InitialBalance)
	}

	return nil
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func validateWSURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%s must be a ws(s) URL, got %q", key, raw)
	}
	return nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice читает список через запятую, пустые элементы отбрасываются
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
