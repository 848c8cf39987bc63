package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
	jsoniter "github.com/json-iterator/go"

	"tradedash/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Адреса Binance USDⓈ-M Futures по умолчанию
const (
	DefaultBinanceRESTURL = "https://fapi.binance.com"
	DefaultBinanceWSURL   = "wss://fstream.binance.com"
)

// Вес запроса /fapi/v1/ticker/24hr
const (
	tickerWeightSingle = 1
	tickerWeightAll    = 40
)

// BinanceConfig - настройки публичного клиента Binance
type BinanceConfig struct {
	RESTURL string
	WSURL   string
	HTTP    HTTPClientConfig

	// Limiter - бюджет веса REST запросов; nil - 2400 в минуту
	Limiter *ratelimit.WeightLimiter
}

// Binance - публичный клиент Binance Futures
//
// REST идёт через futures.Client из go-binance; стримы bookTicker
// обслуживаются WSReconnectManager, здесь только адреса и разбор.
type Binance struct {
	client     *futures.Client
	httpClient *http.Client
	limiter    *ratelimit.WeightLimiter
	wsURL      string
}

// NewBinance создаёт публичный клиент (без ключей)
func NewBinance(cfg BinanceConfig) *Binance {
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultBinanceRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultBinanceWSURL
	}
	if cfg.HTTP.TotalTimeout == 0 {
		cfg.HTTP = DefaultHTTPClientConfig()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewWeightLimiter(40, 1200)
	}

	httpClient := NewHTTPClient(cfg.HTTP)
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimRight(cfg.RESTURL, "/")
	client.HTTPClient = httpClient

	return &Binance{
		client:     client,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		wsURL:      strings.TrimRight(cfg.WSURL, "/"),
	}
}

// Name возвращает имя биржи
func (b *Binance) Name() string { return "binance" }

// Get24hTickers получает 24h статистику по символам
//
// Для одного символа запрашивается только он, иначе вся таблица
// фильтруется по списку. Пустой список - все символы биржи.
func (b *Binance) Get24hTickers(ctx context.Context, symbols []string) ([]Ticker24h, error) {
	svc := b.client.NewListPriceChangeStatsService()
	weight := tickerWeightAll
	if len(symbols) == 1 {
		svc = svc.Symbol(strings.ToUpper(symbols[0]))
		weight = tickerWeightSingle
	}

	if err := b.limiter.WaitN(ctx, weight); err != nil {
		return nil, &ExchangeError{Exchange: b.Name(), Code: "rate_limit", Message: "request weight budget exhausted", Original: err}
	}

	stats, err := svc.Do(ctx)
	if err != nil {
		return nil, &ExchangeError{
			Exchange: b.Name(),
			Code:     "ticker_24h",
			Message:  fmt.Sprintf("24h ticker request failed: %v", err),
			Original: err,
		}
	}

	var wanted map[string]struct{}
	if len(symbols) > 0 {
		wanted = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			wanted[strings.ToUpper(s)] = struct{}{}
		}
	}

	out := make([]Ticker24h, 0, len(stats))
	for _, st := range stats {
		if st == nil {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[st.Symbol]; !ok {
				continue
			}
		}
		t, err := convertPriceChangeStats(st)
		if err != nil {
			return nil, &ExchangeError{Exchange: b.Name(), Code: "parse", Message: err.Error(), Original: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func convertPriceChangeStats(st *futures.PriceChangeStats) (Ticker24h, error) {
	t := Ticker24h{Symbol: st.Symbol}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"lastPrice", st.LastPrice, &t.LastPrice},
		{"priceChangePercent", st.PriceChangePercent, &t.PriceChangePercent},
		{"quoteVolume", st.QuoteVolume, &t.QuoteVolume},
		{"highPrice", st.HighPrice, &t.HighPrice},
		{"lowPrice", st.LowPrice, &t.LowPrice},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return Ticker24h{}, fmt.Errorf("%s %s: %w", st.Symbol, f.name, err)
		}
		*f.dst = v
	}
	return t, nil
}

// BookTickerURLs возвращает адреса bookTicker стримов
//
// combined=false: отдельное соединение на символ ({ws}/ws/{sym}@bookTicker).
// combined=true: одно соединение ({ws}/stream?streams=a@bookTicker/b@bookTicker).
func (b *Binance) BookTickerURLs(symbols []string, combined bool) []StreamURL {
	if len(symbols) == 0 {
		return nil
	}

	if combined {
		streams := make([]string, len(symbols))
		for i, s := range symbols {
			streams[i] = streamName(s)
		}
		return []StreamURL{{
			Name:    "binance:combined",
			URL:     b.wsURL + "/stream?streams=" + strings.Join(streams, "/"),
			Symbols: upperAll(symbols),
		}}
	}

	out := make([]StreamURL, len(symbols))
	for i, s := range symbols {
		out[i] = StreamURL{
			Name:    "binance:" + strings.ToLower(s),
			URL:     b.wsURL + "/ws/" + streamName(s),
			Symbols: []string{strings.ToUpper(s)},
		}
	}
	return out
}

// Close закрывает idle HTTP соединения
func (b *Binance) Close() {
	CloseIdle(b.httpClient)
}

func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

// combinedEnvelope - обёртка сообщений combined стрима
type combinedEnvelope struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

// ParseBookTicker разбирает bookTicker событие
//
// Принимает как сырое событие, так и обёртку combined стрима.
func ParseBookTicker(data []byte) (BookTicker, error) {
	var env combinedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BookTicker{}, fmt.Errorf("book ticker: %w", err)
	}
	payload := data
	if env.Stream != "" && len(env.Data) > 0 {
		payload = env.Data
	}

	var bt BookTicker
	if err := json.Unmarshal(payload, &bt); err != nil {
		return BookTicker{}, fmt.Errorf("book ticker: %w", err)
	}
	if bt.Symbol == "" {
		return BookTicker{}, fmt.Errorf("book ticker: missing symbol")
	}
	if !bt.Bid.IsPositive() && !bt.Ask.IsPositive() {
		return BookTicker{}, fmt.Errorf("book ticker %s: empty book", bt.Symbol)
	}
	return bt, nil
}
