package store

import "tradedash/internal/models"

// ChangeKind - тип мутации
type ChangeKind string

// Типы мутаций
const (
	ChangeTickers     ChangeKind = "tickers"
	ChangePrice       ChangeKind = "price"
	ChangePosition    ChangeKind = "position"
	ChangePositions   ChangeKind = "positions"
	ChangeTrades      ChangeKind = "trades"
	ChangeTrade       ChangeKind = "trade"
	ChangeMetrics     ChangeKind = "metrics"
	ChangeAccount     ChangeKind = "account"
	ChangeEquityData  ChangeKind = "equity_data"
	ChangeEquityPoint ChangeKind = "equity_point"
	ChangeConnected   ChangeKind = "connected"
)

// Change описывает один коммит
//
// Заполнены только поля, относящиеся к Kind. Все срезы и указатели -
// собственные копии подписчика.
type Change struct {
	Kind ChangeKind

	Symbol string  // ChangePrice
	Price  float64 // ChangePrice

	PositionID string           // ChangePosition
	Position   *models.Position // ChangePosition, nil при удалении
	Removed    bool             // ChangePosition

	Tickers     []models.TickerData    // ChangeTickers
	Positions   []models.Position      // ChangePositions
	RemovedIDs  []string               // ChangePositions: ID, пропавшие из списка
	Trades      []models.Trade         // ChangeTrades
	Trade       *models.Trade          // ChangeTrade
	Metrics     *models.Metrics        // ChangeMetrics
	Account     *models.AccountSummary // ChangeAccount
	EquityData  []models.EquityPoint   // ChangeEquityData
	EquityPoint *models.EquityPoint    // ChangeEquityPoint
	Connected   bool                   // ChangeConnected

	// Итоги после коммита
	Totals Totals
}

// Totals - агрегаты состояния после коммита
type Totals struct {
	Balance         float64 `json:"balance"`
	CurrentEquity   float64 `json:"currentEquity"`
	UnrealizedPnl   float64 `json:"unrealizedPnl"`
	TotalPnL        float64 `json:"totalPnL"`
	TotalPnLPercent float64 `json:"totalPnLPercent"`
	Connected       bool    `json:"connected"`
	Positions       int     `json:"positions"`
	Trades          int     `json:"trades"`
	EquityPoints    int     `json:"equityPoints"`
}
