package models

import "strings"

// QuoteSuffixes - котируемые валюты, которые отрезаются от биржевого символа.
// Порядок важен: длинные суффиксы проверяются раньше.
var QuoteSuffixes = []string{"FDUSD", "USDT", "USDC", "BUSD"}

// NormalizeSymbol приводит биржевой символ к ключу тикера
//
// BTCUSDT -> BTC, ethusdt -> ETH, SOL -> SOL.
// Суффикс отрезается один раз и только если после него что-то остаётся.
func NormalizeSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	for _, quote := range QuoteSuffixes {
		if len(sym) > len(quote) && strings.HasSuffix(sym, quote) {
			return strings.TrimSuffix(sym, quote)
		}
	}
	return sym
}

// ExchangeSymbol строит биржевой символ из ключа тикера (BTC -> BTCUSDT)
//
// Символ, уже оканчивающийся известной котируемой валютой, не меняется:
// BTCUSDC остаётся BTCUSDC.
func ExchangeSymbol(symbol, quote string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if quote == "" {
		quote = "USDT"
	}
	if NormalizeSymbol(sym) != sym {
		return sym
	}
	return sym + quote
}
