package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// El primer envio de la ventana fija su expiracion; devuelve {envios, ms restantes}.
const otpSendWindowScript = `
local sends = redis.call("INCR", KEYS[1])
if sends == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {sends, redis.call("PTTL", KEYS[1])}
`

const otpSendKeyPrefix = "grocery:otp:sends:"

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisOTPRateLimiter comparte la ventana entre todas las replicas de la API.
type redisOTPRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
}

func NewRedisOTPRateLimiter(client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	window, max = normalizeWindow(window, max)
	return &redisOTPRateLimiter{client: client, window: window, max: max}
}

// Allow deja pasar si Redis falla: el cooldown en otp_records sigue aplicando.
func (l *redisOTPRateLimiter) Allow(ctx context.Context, mobile string) (bool, time.Duration) {
	if l == nil || l.client == nil {
		return true, 0
	}
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return false, l.window
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	reply, err := l.client.Eval(ctx, otpSendWindowScript, []string{otpSendKeyPrefix + mobile}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(reply) != 2 {
		return true, 0
	}
	if reply[0] <= int64(l.max) {
		return true, 0
	}
	retryAfter := time.Duration(reply[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return false, retryAfter
}
