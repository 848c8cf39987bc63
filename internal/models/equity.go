package models

// EquityPoint - точка кривой equity
//
// Timestamp (epoch millis) - ключ дедупликации. Time только для отображения.
// Balance и UnrealizedPnl опциональны: nil означает "не передано".
type EquityPoint struct {
	Timestamp     int64    `json:"timestamp"`
	Time          string   `json:"time"`
	Equity        float64  `json:"equity"`
	Balance       *float64 `json:"balance,omitempty"`
	UnrealizedPnl *float64 `json:"unrealizedPnl,omitempty"`
}
