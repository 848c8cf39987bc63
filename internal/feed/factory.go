package feed

import (
	"fmt"
	"strings"
	"time"

	"tradedash/internal/config"
	"tradedash/internal/exchange"
	"tradedash/internal/store"
	"tradedash/pkg/utils"
)

// SupportedModes - список поддерживаемых режимов фида
var SupportedModes = []string{
	config.FeedModeSocket,
	config.FeedModeBinance,
}

// NewFeed создает фид по режиму из конфигурации
func NewFeed(cfg *config.Config, st *store.Store, logger *utils.Logger) (Feed, error) {
	mode := strings.ToLower(cfg.Feed.Mode)

	switch mode {
	case config.FeedModeSocket:
		ws := wsConfig(cfg, cfg.Feed.SocketReconnectDelay)
		return NewSocketFeed(cfg.Feed.SocketURL, ws, st, logger), nil

	case config.FeedModeBinance:
		market := exchange.NewBinance(exchange.BinanceConfig{
			RESTURL: cfg.Binance.RESTURL,
			WSURL:   cfg.Binance.WSURL,
			HTTP:    exchange.DefaultHTTPClientConfig(),
		})
		return NewBinanceFeed(market, BinanceConfig{
			Symbols:       cfg.Feed.Symbols,
			Combined:      cfg.Binance.CombinedStream,
			TickerRefresh: cfg.Binance.TickerRefresh,
			WS:            wsConfig(cfg, cfg.Binance.ReconnectDelay),
		}, st, logger), nil

	default:
		return nil, fmt.Errorf("unsupported feed mode: %s", mode)
	}
}

// IsSupported проверяет, поддерживается ли режим
func IsSupported(mode string) bool {
	mode = strings.ToLower(mode)
	for _, supported := range SupportedModes {
		if mode == supported {
			return true
		}
	}
	return false
}

func wsConfig(cfg *config.Config, delay time.Duration) exchange.WSReconnectConfig {
	ws := exchange.DefaultWSReconnectConfig()
	ws.ReconnectDelay = delay
	ws.ConnectTimeout = cfg.Feed.ConnectTimeout
	ws.PingInterval = cfg.Feed.PingInterval
	return ws
}
