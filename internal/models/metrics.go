package models

// Metrics - агрегированные показатели торговли
//
// Всегда приходит снапшотом от upstream и заменяется целиком,
// локально из сделок не пересчитывается.
type Metrics struct {
	TotalPnL        float64 `json:"totalPnL"`
	TotalPnLPercent float64 `json:"totalPnLPercent"`
	WinRate         float64 `json:"winRate"`
	SharpeRatio     float64 `json:"sharpeRatio"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	AvgWin          float64 `json:"avgWin"`
	AvgLoss         float64 `json:"avgLoss"`
	ProfitFactor    float64 `json:"profitFactor"`
	TotalTrades     int     `json:"totalTrades"`
	WinningTrades   int     `json:"winningTrades"`
	LosingTrades    int     `json:"losingTrades"`

	RealizedPnL   *float64 `json:"realizedPnL,omitempty"`
	UnrealizedPnL *float64 `json:"unrealizedPnL,omitempty"`
	FlatTrades    *int     `json:"flatTrades,omitempty"`
}
