package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// validator.go - валидация данных на границе фидов
//
// Всё что приходит из upstream проверяется здесь до попадания в хранилище:
// хранилище входные данные не валидирует.

// Ошибки валидации
var (
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNotFinite       = errors.New("value is not finite")
	ErrEmptyID         = errors.New("empty id")
)

var symbolRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-/]{0,29}$`)

// ValidationError описывает ошибку одного поля
//
// Err - исходная ошибка (ErrInvalidPrice, ...), если поле проверял валидатор.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors - набор ошибок валидации сообщения
type ValidationErrors []ValidationError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку если она не nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		*v = append(*v, ValidationError{Field: field, Message: err.Error(), Err: err})
	}
}

// HasErrors возвращает true если есть хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap отдает ошибки полей для errors.Is / errors.As
func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Err возвращает nil для пустого набора, иначе сам набор
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ValidateSymbol проверяет формат символа (BTC, BTCUSDT, BTC-USDT)
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(strings.TrimSpace(symbol)) || strings.ContainsAny(symbol, " \t") {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// IsValidSymbol - булева обёртка над ValidateSymbol
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// ValidateFinite отклоняет NaN и ±Inf
func ValidateFinite(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrNotFinite
	}
	return nil
}

// ValidatePrice проверяет цену: конечное число больше нуля
func ValidatePrice(price float64) error {
	if err := ValidateFinite(price); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPrice, err)
	}
	if price <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidPrice, price)
	}
	return nil
}

// ValidateQuantity проверяет объём: конечное неотрицательное число
func ValidateQuantity(qty float64) error {
	if err := ValidateFinite(qty); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
	}
	if qty < 0 {
		return fmt.Errorf("%w: must be >= 0, got %v", ErrInvalidQuantity, qty)
	}
	return nil
}

// ValidateID проверяет что идентификатор не пустой
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	return nil
}

// AllFinite возвращает true если все значения конечны
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if ValidateFinite(v) != nil {
			return false
		}
	}
	return true
}
