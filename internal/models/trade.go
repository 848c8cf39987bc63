package models

// Trade представляет завершённую сделку
//
// После записи не изменяется. Список сделок хранится newest-first.
type Trade struct {
	ID          int64   `json:"id"`
	Model       string  `json:"model"` // maker / taker или имя стратегии
	Side        Side    `json:"side"`
	Symbol      string  `json:"symbol"`
	EntryPrice  float64 `json:"entryPrice"`
	ExitPrice   float64 `json:"exitPrice"`
	Quantity    float64 `json:"quantity"`
	EntryTime   string  `json:"entryTime"`
	ExitTime    string  `json:"exitTime"`
	HoldingTime string  `json:"holdingTime"` // "1h 5m"
	Notional    string  `json:"notional"`    // "5100.00 USDT"
	PnlNet      float64 `json:"pnlNet"`
	PnlPercent  float64 `json:"pnlPercent"`
	Commission  float64 `json:"commission"`
}
