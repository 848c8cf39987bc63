// Package store - единый источник истины о состоянии торгового аккаунта
//
// Все мутации сериализуются writer-мьютексом, который удерживается
// на время изменения и синхронного оповещения подписчиков: порядок
// оповещений совпадает с порядком коммитов. Читатели получают
// глубокие копии под RWMutex и не блокируют друг друга.
//
// Хранилище не валидирует вход: это делает фид.
package store

import (
	"sort"
	"sync"

	"tradedash/internal/models"
	"tradedash/internal/pnl"
)

// Лимиты по умолчанию
const (
	DefaultTradesLimit = 1000
	DefaultEquityLimit = 4320 // 72 часа при шаге в 1 минуту
)

// Options - параметры хранилища
type Options struct {
	TradesLimit    int
	EquityLimit    int
	InitialBalance float64
}

// Subscriber вызывается синхронно после каждого коммита
//
// Подписчик не должен вызывать мутирующие методы хранилища:
// writer-мьютекс не реентерабелен. Читать через Snapshot и геттеры можно.
type Subscriber func(Change)

// Store - потокобезопасное хранилище состояния
type Store struct {
	writeMu sync.Mutex   // сериализует мутации + оповещения
	mu      sync.RWMutex // защищает поля состояния

	tradesLimit int
	equityLimit int

	tickers       []models.TickerData
	positions     []models.Position
	trades        []models.Trade
	equityData    []models.EquityPoint
	metrics       models.Metrics
	account       models.AccountSummary
	balance       float64
	currentEquity float64
	connected     bool

	subsMu sync.RWMutex
	subs   map[int]Subscriber
	nextID int
}

// New создаёт пустое хранилище
func New(opts Options) *Store {
	if opts.TradesLimit <= 0 {
		opts.TradesLimit = DefaultTradesLimit
	}
	if opts.EquityLimit <= 0 {
		opts.EquityLimit = DefaultEquityLimit
	}
	return &Store{
		tradesLimit:   opts.TradesLimit,
		equityLimit:   opts.EquityLimit,
		tickers:       []models.TickerData{},
		positions:     []models.Position{},
		trades:        []models.Trade{},
		equityData:    []models.EquityPoint{},
		balance:       opts.InitialBalance,
		currentEquity: opts.InitialBalance,
		subs:          make(map[int]Subscriber),
	}
}

// Subscribe регистрирует подписчика и возвращает функцию отписки
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// commit применяет мутацию и оповещает подписчиков
//
// mutate выполняется под s.mu и возвращает описание изменения.
func (s *Store) commit(mutate func() Change) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	ch := mutate()
	ch.Totals = s.totalsLocked()
	s.mu.Unlock()

	s.notify(ch)
}

func (s *Store) notify(ch Change) {
	s.subsMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ch)
	}
}

func (s *Store) totalsLocked() Totals {
	total, pct := pnl.TotalPnL(s.currentEquity, s.balance)
	return Totals{
		Balance:         s.balance,
		CurrentEquity:   s.currentEquity,
		UnrealizedPnl:   pnl.UnrealizedTotal(s.positions),
		TotalPnL:        total,
		TotalPnLPercent: pct,
		Connected:       s.connected,
		Positions:       len(s.positions),
		Trades:          len(s.trades),
		EquityPoints:    len(s.equityData),
	}
}

// ============================================================
// Мутации
// ============================================================

// SetTickers заменяет список тикеров целиком
//
// Символы нормализуются, при дубликатах побеждает последний.
func (s *Store) SetTickers(list []models.TickerData) {
	s.commit(func() Change {
		s.tickers = normalizeTickers(list)
		return Change{Kind: ChangeTickers, Tickers: cloneTickers(s.tickers)}
	})
}

// UpdatePrice обновляет цену символа и пересчитывает позиции по нему
//
// Неизвестный символ добавляется. Повтор с той же ценой не меняет состояние.
func (s *Store) UpdatePrice(symbol string, price float64) {
	sym := models.NormalizeSymbol(symbol)
	s.commit(func() Change {
		idx := s.tickerIndexLocked(sym)
		if idx < 0 {
			s.tickers = append(s.tickers, models.TickerData{Symbol: sym, Price: price})
		} else {
			s.tickers[idx].Price = price
		}

		for i := range s.positions {
			if s.positions[i].Symbol == sym {
				s.positions[i] = pnl.Recompute(s.positions[i], price)
			}
		}
		s.currentEquity = pnl.Equity(s.balance, s.positions)

		return Change{Kind: ChangePrice, Symbol: sym, Price: price}
	})
}

// UpsertPosition добавляет, заменяет или удаляет позицию
//
// Quantity == 0 удаляет позицию по ID (no-op если её нет).
// Производные поля пересчитываются: цена берётся из позиции,
// затем из тикера, затем entryPrice.
func (s *Store) UpsertPosition(p models.Position) {
	s.commit(func() Change {
		idx := s.positionIndexLocked(p.ID)

		if p.IsClosed() {
			if idx >= 0 {
				s.positions = append(s.positions[:idx], s.positions[idx+1:]...)
			}
			s.currentEquity = pnl.Equity(s.balance, s.positions)
			return Change{Kind: ChangePosition, PositionID: p.ID, Removed: true}
		}

		p = s.recomputeLocked(p)
		if idx >= 0 {
			s.positions[idx] = p
		} else {
			s.positions = append([]models.Position{p}, s.positions...)
		}
		s.currentEquity = pnl.Equity(s.balance, s.positions)

		cp := p
		return Change{Kind: ChangePosition, PositionID: p.ID, Position: &cp}
	})
}

// SetPositions заменяет список позиций целиком
//
// Позиции с нулевым объёмом отбрасываются, дубликаты ID - последний побеждает.
// ID, которых нет в новом списке, попадают в Change.RemovedIDs.
func (s *Store) SetPositions(list []models.Position) {
	s.commit(func() Change {
		out := make([]models.Position, 0, len(list))
		seen := make(map[string]int, len(list))
		for _, p := range list {
			if p.IsClosed() {
				continue
			}
			p = s.recomputeLocked(p)
			if i, ok := seen[p.ID]; ok {
				out[i] = p
				continue
			}
			seen[p.ID] = len(out)
			out = append(out, p)
		}
		var removed []string
		for _, p := range s.positions {
			if _, ok := seen[p.ID]; !ok {
				removed = append(removed, p.ID)
			}
		}
		s.positions = out
		s.currentEquity = pnl.Equity(s.balance, s.positions)
		return Change{Kind: ChangePositions, Positions: clonePositions(out), RemovedIDs: removed}
	})
}

// SetTrades заменяет список сделок (newest-first), обрезая до лимита
func (s *Store) SetTrades(list []models.Trade) {
	s.commit(func() Change {
		n := len(list)
		if n > s.tradesLimit {
			n = s.tradesLimit
		}
		s.trades = append(make([]models.Trade, 0, n), list[:n]...)
		return Change{Kind: ChangeTrades, Trades: cloneTrades(s.trades)}
	})
}

// PrependTrade добавляет сделку в начало списка, обрезая до лимита
func (s *Store) PrependTrade(t models.Trade) {
	s.commit(func() Change {
		n := len(s.trades) + 1
		if n > s.tradesLimit {
			n = s.tradesLimit
		}
		trades := make([]models.Trade, 0, n)
		trades = append(trades, t)
		trades = append(trades, s.trades[:n-1]...)
		s.trades = trades

		cp := t
		return Change{Kind: ChangeTrade, Trade: &cp}
	})
}

// SetMetrics заменяет метрики целиком
func (s *Store) SetMetrics(m models.Metrics) {
	s.commit(func() Change {
		s.metrics = cloneMetrics(m)
		cp := cloneMetrics(m)
		return Change{Kind: ChangeMetrics, Metrics: &cp}
	})
}

// SetAccount заменяет сводку аккаунта; её balance становится авторитетным
func (s *Store) SetAccount(a models.AccountSummary) {
	s.commit(func() Change {
		s.account = a
		s.balance = a.Balance
		s.currentEquity = pnl.Equity(s.balance, s.positions)
		cp := a
		return Change{Kind: ChangeAccount, Account: &cp}
	})
}

// SetEquityData заменяет историю equity (посев исторических данных)
//
// Точки сортируются, дубликаты timestamp схлопываются (последний побеждает),
// остаются самые свежие EquityLimit точек.
func (s *Store) SetEquityData(list []models.EquityPoint) {
	s.commit(func() Change {
		s.equityData = normalizeEquity(list, s.equityLimit)
		return Change{Kind: ChangeEquityData, EquityData: cloneEquity(s.equityData)}
	})
}

// AddEquityPoint добавляет точку equity
//
// Точка с тем же timestamp заменяется, порядок по возрастанию сохраняется,
// лишние старые точки отбрасываются. Equity точки становится текущей,
// balance обновляется только если передан.
func (s *Store) AddEquityPoint(pt models.EquityPoint) {
	pt = cloneEquityPoint(pt)
	s.commit(func() Change {
		data := s.equityData
		i := sort.Search(len(data), func(i int) bool { return data[i].Timestamp >= pt.Timestamp })
		switch {
		case i < len(data) && data[i].Timestamp == pt.Timestamp:
			data[i] = pt
		default:
			data = append(data, models.EquityPoint{})
			copy(data[i+1:], data[i:])
			data[i] = pt
		}
		if over := len(data) - s.equityLimit; over > 0 {
			data = append(data[:0:0], data[over:]...)
		}
		s.equityData = data

		s.currentEquity = pt.Equity
		if pt.Balance != nil {
			s.balance = *pt.Balance
		}

		cp := cloneEquityPoint(pt)
		return Change{Kind: ChangeEquityPoint, EquityPoint: &cp}
	})
}

// SetConnected выставляет флаг подключения
func (s *Store) SetConnected(connected bool) {
	s.commit(func() Change {
		s.connected = connected
		return Change{Kind: ChangeConnected, Connected: connected}
	})
}

// ============================================================
// Внутренние хелперы (вызываются под s.mu)
// ============================================================

func (s *Store) tickerIndexLocked(sym string) int {
	for i := range s.tickers {
		if s.tickers[i].Symbol == sym {
			return i
		}
	}
	return -1
}

func (s *Store) positionIndexLocked(id string) int {
	for i := range s.positions {
		if s.positions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) recomputeLocked(p models.Position) models.Position {
	p.Symbol = models.NormalizeSymbol(p.Symbol)
	price := p.CurrentPrice
	if price <= 0 {
		if idx := s.tickerIndexLocked(p.Symbol); idx >= 0 {
			price = s.tickers[idx].Price
		}
	}
	return pnl.Recompute(p, price)
}

func normalizeTickers(list []models.TickerData) []models.TickerData {
	out := make([]models.TickerData, 0, len(list))
	seen := make(map[string]int, len(list))
	for _, t := range list {
		t.Symbol = models.NormalizeSymbol(t.Symbol)
		if i, ok := seen[t.Symbol]; ok {
			out[i] = t
			continue
		}
		seen[t.Symbol] = len(out)
		out = append(out, t)
	}
	return out
}

func normalizeEquity(list []models.EquityPoint, limit int) []models.EquityPoint {
	byTS := make(map[int64]models.EquityPoint, len(list))
	for _, pt := range list {
		byTS[pt.Timestamp] = cloneEquityPoint(pt)
	}
	out := make([]models.EquityPoint, 0, len(byTS))
	for _, pt := range byTS {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if over := len(out) - limit; over > 0 {
		out = out[over:]
	}
	return out
}
