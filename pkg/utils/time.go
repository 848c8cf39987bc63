package utils

import (
	"math"
	"time"
)

// time.go - утилиты для работы со временем
//
// Таймстемпы в протоколе: equity_snapshot несёт секунды (float),
// хранилище ключует точки equity миллисекундами.

// ISOLayout - формат ISO-8601 с миллисекундами в UTC
const ISOLayout = "2006-01-02T15:04:05.000Z"

// ============================================================
// Утилиты для timestamp
// ============================================================

// FromUnixMillis конвертирует миллисекунды Unix в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// SecondsToMillis переводит секунды (допускается дробная часть) в миллисекунды
//
// Пример: 1700000000.5 -> 1700000000500
func SecondsToMillis(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// FormatISO форматирует время как ISO-8601 в UTC
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// FormatISOMillis форматирует миллисекунды Unix как ISO-8601
func FormatISOMillis(ms int64) string {
	return FormatISO(FromUnixMillis(ms))
}
