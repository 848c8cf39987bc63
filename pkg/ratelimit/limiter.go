package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WeightLimiter - token bucket по весу запросов
//
// Binance считает лимит не в запросах, а в "весе": запрос 24h тикера
// по одному символу стоит 1, по всей таблице 40, бюджет IP - 2400
// в минуту. Ведро пополняется со скоростью rate единиц веса в секунду
// до ёмкости burst; запрос забирает свой вес целиком.
//
// Использование:
//
//	limiter := NewWeightLimiter(40, 1200) // 2400/мин, burst 1200
//	if err := limiter.WaitN(ctx, 40); err != nil { ... }
type WeightLimiter struct {
	rate       float64 // единиц веса в секунду
	burst      float64
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewWeightLimiter создаёт limiter с полным ведром
//
// rate <= 0 заменяется на 40 (2400 в минуту), burst < rate поднимается до rate.
func NewWeightLimiter(rate, burst float64) *WeightLimiter {
	if rate <= 0 {
		rate = 40
	}
	if burst < rate {
		burst = rate
	}
	return &WeightLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// refill вызывается под mu
func (l *WeightLimiter) refill(now time.Time) {
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Wait ждёт единицу веса
func (l *WeightLimiter) Wait(ctx context.Context) error {
	return l.WaitN(ctx, 1)
}

// WaitN блокирует до получения weight единиц или отмены ctx
//
// Вес больше burst урезается до burst, иначе ожидание было бы вечным.
func (l *WeightLimiter) WaitN(ctx context.Context, weight int) error {
	if weight <= 0 {
		return nil
	}
	need := float64(weight)

	for {
		l.mu.Lock()
		if need > l.burst {
			need = l.burst
		}
		l.refill(time.Now())
		if l.tokens >= need {
			l.tokens -= need
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((need - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// AllowN забирает weight единиц без ожидания, если они есть
func (l *WeightLimiter) AllowN(weight int) bool {
	if weight <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	if l.tokens >= float64(weight) {
		l.tokens -= float64(weight)
		return true
	}
	return false
}

// Tokens возвращает доступный вес
func (l *WeightLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	return l.tokens
}
