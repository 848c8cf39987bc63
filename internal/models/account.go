package models

// AccountSummary - сводка по аккаунту
//
// Balance отсюда становится авторитетным cash-балансом хранилища.
type AccountSummary struct {
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"availableBalance"`
	MarginRatio      float64 `json:"marginRatio"`
	Leverage         float64 `json:"leverage"`
	Pnl24h           float64 `json:"pnl24h"`
}
