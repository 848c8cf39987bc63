package store

import (
	"tradedash/internal/models"
	"tradedash/internal/pnl"
)

// Snapshot - согласованная глубокая копия состояния
type Snapshot struct {
	Tickers         []models.TickerData   `json:"tickers"`
	Positions       []models.Position     `json:"positions"`
	Trades          []models.Trade        `json:"trades"`     // newest-first
	EquityData      []models.EquityPoint  `json:"equityData"` // по возрастанию timestamp
	Metrics         models.Metrics        `json:"metrics"`
	Account         models.AccountSummary `json:"account"`
	Balance         float64               `json:"balance"`
	CurrentEquity   float64               `json:"currentEquity"`
	TotalPnL        float64               `json:"totalPnL"`
	TotalPnLPercent float64               `json:"totalPnLPercent"`
	Connected       bool                  `json:"connected"`
}

// Snapshot возвращает копию всего состояния
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, pct := pnl.TotalPnL(s.currentEquity, s.balance)
	return Snapshot{
		Tickers:         cloneTickers(s.tickers),
		Positions:       clonePositions(s.positions),
		Trades:          cloneTrades(s.trades),
		EquityData:      cloneEquity(s.equityData),
		Metrics:         cloneMetrics(s.metrics),
		Account:         s.account,
		Balance:         s.balance,
		CurrentEquity:   s.currentEquity,
		TotalPnL:        total,
		TotalPnLPercent: pct,
		Connected:       s.connected,
	}
}

// View вызывает fn со снимком, пока ни один коммит не может начаться
//
// Ни одно уведомление не находится "в полёте": всё, что вошло в снимок,
// подписчики уже получили, всё последующее они получат после возврата fn.
// Нельзя вызывать из подписчика.
func (s *Store) View(fn func(Snapshot)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	fn(s.Snapshot())
}

// Totals возвращает текущие агрегаты без копирования коллекций
func (s *Store) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalsLocked()
}

// Tickers возвращает копию тикеров
func (s *Store) Tickers() []models.TickerData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTickers(s.tickers)
}

// Ticker возвращает тикер по символу (символ нормализуется)
func (s *Store) Ticker(symbol string) (models.TickerData, bool) {
	sym := models.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.tickerIndexLocked(sym); idx >= 0 {
		return s.tickers[idx], true
	}
	return models.TickerData{}, false
}

// Positions возвращает копию открытых позиций
func (s *Store) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePositions(s.positions)
}

// Position возвращает позицию по ID
func (s *Store) Position(id string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.positionIndexLocked(id); idx >= 0 {
		return s.positions[idx], true
	}
	return models.Position{}, false
}

// Trades возвращает до limit последних сделок (limit <= 0 - все)
func (s *Store) Trades(limit int) []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	return cloneTrades(s.trades[:n])
}

// EquitySince возвращает точки equity с timestamp >= sinceMillis
func (s *Store) EquitySince(sinceMillis int64) []models.EquityPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EquityPoint, 0, len(s.equityData))
	for _, pt := range s.equityData {
		if pt.Timestamp >= sinceMillis {
			out = append(out, cloneEquityPoint(pt))
		}
	}
	return out
}

// Metrics возвращает копию метрик
func (s *Store) Metrics() models.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMetrics(s.metrics)
}

// Account возвращает сводку аккаунта
func (s *Store) Account() models.AccountSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Connected возвращает флаг подключения
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ============================================================
// Глубокое копирование
// ============================================================

func cloneTickers(in []models.TickerData) []models.TickerData {
	return append(make([]models.TickerData, 0, len(in)), in...)
}

func clonePositions(in []models.Position) []models.Position {
	return append(make([]models.Position, 0, len(in)), in...)
}

func cloneTrades(in []models.Trade) []models.Trade {
	return append(make([]models.Trade, 0, len(in)), in...)
}

func cloneEquity(in []models.EquityPoint) []models.EquityPoint {
	out := make([]models.EquityPoint, len(in))
	for i := range in {
		out[i] = cloneEquityPoint(in[i])
	}
	return out
}

func cloneEquityPoint(pt models.EquityPoint) models.EquityPoint {
	pt.Balance = cloneFloat(pt.Balance)
	pt.UnrealizedPnl = cloneFloat(pt.UnrealizedPnl)
	return pt
}

func cloneMetrics(m models.Metrics) models.Metrics {
	m.RealizedPnL = cloneFloat(m.RealizedPnL)
	m.UnrealizedPnL = cloneFloat(m.UnrealizedPnL)
	if m.FlatTrades != nil {
		v := *m.FlatTrades
		m.FlatTrades = &v
	}
	return m
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
