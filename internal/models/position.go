package models

import "fmt"

// Side - направление позиции
type Side string

// Направления позиций
const (
	SideLong  Side = "LONG"  // ставка на рост
	SideShort Side = "SHORT" // ставка на падение
)

// Direction возвращает +1 для LONG и -1 для SHORT
func (s Side) Direction() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Validate проверяет что направление известно
func (s Side) Validate() error {
	switch s {
	case SideLong, SideShort:
		return nil
	default:
		return fmt.Errorf("unknown side %q", string(s))
	}
}

// Position представляет открытую позицию
//
// Identity = ID. Quantity хранится без знака, направление задаёт Side.
// Позиция с Quantity == 0 в хранилище не держится.
type Position struct {
	ID                   string  `json:"id"`
	Symbol               string  `json:"symbol"`
	Side                 Side    `json:"side"`
	EntryPrice           float64 `json:"entryPrice"`
	CurrentPrice         float64 `json:"currentPrice"`
	Quantity             float64 `json:"quantity"`
	UnrealizedPnl        float64 `json:"unrealizedPnl"`
	UnrealizedPnlPercent float64 `json:"unrealizedPnlPercent"`
	Notional             float64 `json:"notional"`
}

// IsClosed возвращает true если позиция должна быть удалена
func (p *Position) IsClosed() bool {
	return p.Quantity == 0
}
