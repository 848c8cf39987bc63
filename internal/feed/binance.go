package feed

import (
	"context"
	"sync"
	"time"

	"tradedash/internal/exchange"
	"tradedash/internal/metrics"
	"tradedash/internal/models"
	"tradedash/internal/store"
	"tradedash/pkg/utils"
)

const binanceFeedName = "binance"

// BinanceConfig - параметры прямого фида
type BinanceConfig struct {
	Symbols       []string // биржевые символы: BTCUSDT
	Combined      bool     // один combined стрим вместо соединения на символ
	TickerRefresh time.Duration
	WS            exchange.WSReconnectConfig
}

// BinanceFeed - прямой фид Binance Futures
//
// Два независимых пути:
//   - bookTicker стримы: mid = (bid+ask)/2 -> UpdatePrice
//   - REST опрос 24h тикеров каждые TickerRefresh (первый сразу) -> SetTickers
//
// Ошибка REST логируется и повторяется только на следующем тике,
// стримы от нее не зависят. Флаг connected агрегируется ConnGroup:
// выставляется когда открыты все стримы, снимается когда закрыт последний.
type BinanceFeed struct {
	market exchange.MarketData
	config BinanceConfig
	store  *store.Store
	logger *utils.Logger
	conns  connSet
}

// NewBinanceFeed создает прямой фид
func NewBinanceFeed(market exchange.MarketData, config BinanceConfig, st *store.Store, logger *utils.Logger) *BinanceFeed {
	if logger == nil {
		logger = utils.L()
	}
	if config.TickerRefresh <= 0 {
		config.TickerRefresh = 5 * time.Second
	}
	return &BinanceFeed{
		market: market,
		config: config,
		store:  st,
		logger: logger.WithFeed(binanceFeedName),
	}
}

// Name возвращает имя фида
func (f *BinanceFeed) Name() string { return binanceFeedName }

// Status возвращает состояние стримов
func (f *BinanceFeed) Status() Status { return f.conns.status(binanceFeedName) }

// Run запускает стримы и опрос тикеров до отмены ctx
func (f *BinanceFeed) Run(ctx context.Context) error {
	group := exchange.NewConnGroup(func(connected bool) {
		f.store.SetConnected(connected)
	})

	urls := f.market.BookTickerURLs(f.config.Symbols, f.config.Combined)
	managers := make([]*exchange.WSReconnectManager, 0, len(urls))
	for _, su := range urls {
		m := exchange.NewWSReconnectManager(su.Name, su.URL, f.config.WS, f.logger)
		m.SetOnMessage(f.handleBookTicker)
		group.Track(m, nil)
		managers = append(managers, m)
	}
	f.conns.set(managers)

	for _, m := range managers {
		if err := m.Start(); err != nil {
			f.conns.closeAll()
			return err
		}
	}
	f.logger.Info("feed started",
		utils.Count(len(managers)),
		utils.Bool("combined", f.config.Combined),
		utils.Dur("ticker_refresh", f.config.TickerRefresh))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pollTickers(ctx)
	}()

	<-ctx.Done()
	f.conns.closeAll()
	wg.Wait()
	f.market.Close()
	f.logger.Info("feed stopped")
	return nil
}

// handleBookTicker переводит bookTicker в тик mid-цены
func (f *BinanceFeed) handleBookTicker(data []byte) {
	f.conns.touch()

	bt, err := exchange.ParseBookTicker(data)
	if err != nil {
		metrics.RecordFeedDropped(binanceFeedName, metrics.DropInvalid)
		f.logger.Warn("dropping book ticker", utils.Err(err))
		return
	}

	mid, _ := bt.Mid().Float64()
	if err := utils.ValidatePrice(mid); err != nil {
		metrics.RecordFeedDropped(binanceFeedName, metrics.DropInvalid)
		f.logger.Warn("dropping book ticker", utils.Symbol(bt.Symbol), utils.Err(err))
		return
	}

	metrics.RecordFeedMessage(binanceFeedName, "book_ticker")
	f.store.UpdatePrice(models.NormalizeSymbol(bt.Symbol), mid)
}

// pollTickers опрашивает 24h статистику: сразу и затем по таймеру
func (f *BinanceFeed) pollTickers(ctx context.Context) {
	f.fetchTickers(ctx)

	ticker := time.NewTicker(f.config.TickerRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.fetchTickers(ctx)
		}
	}
}

// fetchTickers выполняет один опрос; ошибка только логируется
func (f *BinanceFeed) fetchTickers(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.TickerRefresh)
	defer cancel()

	start := time.Now()
	list, err := f.market.Get24hTickers(reqCtx, f.config.Symbols)
	latency := float64(time.Since(start).Microseconds()) / 1000

	if ctx.Err() != nil {
		// остановка во время запроса
		return
	}
	metrics.RecordRESTPoll(err, latency)
	if err != nil {
		f.logger.Warn("ticker poll failed", utils.Latency(latency), utils.Err(err))
		return
	}

	f.store.SetTickers(toTickerData(list))
	f.logger.Debug("tickers refreshed", utils.Count(len(list)), utils.Latency(latency))
}

// toTickerData нормализует символы и отбрасывает нечисловые строки
func toTickerData(list []exchange.Ticker24h) []models.TickerData {
	out := make([]models.TickerData, 0, len(list))
	for _, t := range list {
		if !utils.AllFinite(t.LastPrice, t.PriceChangePercent, t.QuoteVolume, t.HighPrice, t.LowPrice) {
			continue
		}
		out = append(out, models.TickerData{
			Symbol:    models.NormalizeSymbol(t.Symbol),
			Price:     t.LastPrice,
			Change24h: t.PriceChangePercent,
			Volume24h: t.QuoteVolume,
			High24h:   t.HighPrice,
			Low24h:    t.LowPrice,
		})
	}
	return out
}
