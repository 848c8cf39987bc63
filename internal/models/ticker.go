package models

// TickerData представляет котировку одного отслеживаемого символа
//
// Ключ - нормализованный символ (BTC, ETH). Поля Volume24h/High24h/Low24h
// заполняются только REST-опросом 24h статистики.
type TickerData struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"` // % за 24 часа

	Volume24h float64 `json:"volume24h,omitempty"` // quote volume
	High24h   float64 `json:"high24h,omitempty"`
	Low24h    float64 `json:"low24h,omitempty"`
}
