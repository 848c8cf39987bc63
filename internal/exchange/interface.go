package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketData - источник публичных рыночных данных биржи
//
// Только публичные эндпоинты: ключи и подписи не используются.
type MarketData interface {
	// Name возвращает имя биржи
	Name() string

	// Get24hTickers получает 24h статистику по биржевым символам (BTCUSDT)
	Get24hTickers(ctx context.Context, symbols []string) ([]Ticker24h, error)

	// BookTickerURLs возвращает адреса стримов лучших bid/ask
	BookTickerURLs(symbols []string, combined bool) []StreamURL

	// Close освобождает HTTP соединения
	Close()
}

// StreamURL - адрес стрима и символы, которые он несёт
type StreamURL struct {
	Name    string   // имя соединения для логов и метрик
	URL     string
	Symbols []string // биржевые символы
}

// Ticker24h содержит 24h статистику символа
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
}

// BookTicker - лучшие bid/ask символа
type BookTicker struct {
	EventType string          `json:"e"`
	Symbol    string          `json:"s"`
	UpdateID  int64           `json:"u"`
	Bid       decimal.Decimal `json:"b"`
	BidQty    decimal.Decimal `json:"B"`
	Ask       decimal.Decimal `json:"a"`
	AskQty    decimal.Decimal `json:"A"`
	TradeTime int64           `json:"T"`
	EventTime int64           `json:"E"`
}

// Mid возвращает среднюю цену (bid + ask) / 2
//
// Если одна сторона стакана пуста, возвращается другая.
func (b BookTicker) Mid() decimal.Decimal {
	switch {
	case b.Bid.IsPositive() && b.Ask.IsPositive():
		return b.Bid.Add(b.Ask).Div(decimal.NewFromInt(2))
	case b.Bid.IsPositive():
		return b.Bid
	default:
		return b.Ask
	}
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}
