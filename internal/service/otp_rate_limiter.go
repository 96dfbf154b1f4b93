package service

import (
	"context"
	"sync"
	"time"
)

// OTPRateLimiter limita cuantos OTP se emiten por numero dentro de una ventana.
// Si niega, devuelve cuanto falta para que la ventana libere un envio.
type OTPRateLimiter interface {
	Allow(ctx context.Context, mobile string) (bool, time.Duration)
}

type memoryOTPRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	sends  map[string][]time.Time
	now    func() time.Time
}

// NewOTPRateLimiter crea un limitador en memoria, valido para una sola instancia.
func NewOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	window, max = normalizeWindow(window, max)
	return &memoryOTPRateLimiter{
		window: window,
		max:    max,
		sends:  make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryOTPRateLimiter) Allow(_ context.Context, mobile string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.sends[mobile][:0]
	for _, sentAt := range l.sends[mobile] {
		if now.Sub(sentAt) < l.window {
			recent = append(recent, sentAt)
		}
	}
	if len(recent) >= l.max {
		l.sends[mobile] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}
	l.sends[mobile] = append(recent, now)
	return true, 0
}

func normalizeWindow(window time.Duration, max int) (time.Duration, int) {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return window, max
}
