// Package pnl - расчёт производных показателей позиций и аккаунта
//
// Все функции чистые: хранилище вызывает их под своей блокировкой
// и при обновлении цены, и при upsert позиции, поэтому оба пути
// дают одинаковый результат.
package pnl

import (
	"tradedash/internal/models"
	"tradedash/pkg/utils"
)

// PositionPnL возвращает нереализованный PnL и его процент от стоимости входа
//
//	pnl = (current - entry) × qty × direction
//	pct = pnl / (entry × qty) × 100, 0 если entry × qty == 0
func PositionPnL(side models.Side, entry, current, qty float64) (pnl, pct float64) {
	pnl = (current - entry) * qty * side.Direction()
	pct = utils.SafePercent(pnl, entry*qty)
	return pnl, pct
}

// Notional возвращает стоимость позиции по текущей цене
func Notional(price, qty float64) float64 {
	return price * qty
}

// Equity возвращает balance + сумма нереализованного PnL открытых позиций
func Equity(balance float64, positions []models.Position) float64 {
	eq := balance
	for i := range positions {
		eq += positions[i].UnrealizedPnl
	}
	return eq
}

// UnrealizedTotal - сумма нереализованного PnL
func UnrealizedTotal(positions []models.Position) float64 {
	var total float64
	for i := range positions {
		total += positions[i].UnrealizedPnl
	}
	return total
}

// TotalPnL возвращает изменение equity относительно баланса
//
// При нулевом балансе процент равен 0.
func TotalPnL(equity, balance float64) (abs, pct float64) {
	abs = equity - balance
	return abs, utils.SafePercent(abs, balance)
}

// Recompute пересчитывает производные поля позиции по цене
//
// Если price не положительна, используется entryPrice.
func Recompute(p models.Position, price float64) models.Position {
	if price <= 0 {
		price = p.EntryPrice
	}
	p.CurrentPrice = price
	p.Notional = Notional(price, p.Quantity)
	p.UnrealizedPnl, p.UnrealizedPnlPercent = PositionPnL(p.Side, p.EntryPrice, price, p.Quantity)
	return p
}
