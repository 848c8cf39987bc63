package utils

import (
	"math"
)

// math.go - числовые утилиты
//
// Все функции чистые. Деление на ноль нигде не паникует и не даёт NaN:
// вместо этого возвращается 0.

// SafeDiv делит a на b, возвращает 0 если b == 0 или результат не конечен.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// SafePercent возвращает part / base × 100 с защитой от нулевой базы.
//
// Примеры:
//   - SafePercent(50, 1000) = 5
//   - SafePercent(10, 0) = 0
func SafePercent(part, base float64) float64 {
	return SafeDiv(part, base) * 100
}
