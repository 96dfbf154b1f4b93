package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisEvaler struct {
	keys  []string
	args  []interface{}
	reply []interface{}
	err   error
}

func (f *fakeRedisEvaler) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.keys = keys
	f.args = args
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(f.reply)
	return cmd
}

func TestRedisOTPRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	limiter := func(f *fakeRedisEvaler) *redisOTPRateLimiter {
		return &redisOTPRateLimiter{client: f, window: 15 * time.Minute, max: 5}
	}

	t.Run("nil limiter lets sends through", func(t *testing.T) {
		var l *redisOTPRateLimiter
		if ok, _ := l.Allow(ctx, "9876543210"); !ok {
			t.Fatalf("expected nil limiter to allow")
		}
	})

	t.Run("blank mobile denied", func(t *testing.T) {
		ok, retry := limiter(&fakeRedisEvaler{reply: []interface{}{int64(1), int64(900000)}}).Allow(ctx, "  ")
		if ok || retry != 15*time.Minute {
			t.Fatalf("expected deny with full window, got %t %v", ok, retry)
		}
	})

	t.Run("last send in budget", func(t *testing.T) {
		f := &fakeRedisEvaler{reply: []interface{}{int64(5), int64(600000)}}
		if ok, _ := limiter(f).Allow(ctx, " 9876543210 "); !ok {
			t.Fatalf("expected allow at max")
		}
		if len(f.keys) != 1 || f.keys[0] != "grocery:otp:sends:9876543210" {
			t.Fatalf("unexpected keys %v", f.keys)
		}
		if len(f.args) != 1 || f.args[0] != int64(900000) {
			t.Fatalf("expected window in ms, got %v", f.args)
		}
	})

	t.Run("over budget reports remaining window", func(t *testing.T) {
		ok, retry := limiter(&fakeRedisEvaler{reply: []interface{}{int64(6), int64(42000)}}).Allow(ctx, "9876543210")
		if ok {
			t.Fatalf("expected deny over max")
		}
		if retry != 42*time.Second {
			t.Fatalf("expected 42s retry, got %v", retry)
		}
	})

	t.Run("redis error lets sends through", func(t *testing.T) {
		if ok, _ := limiter(&fakeRedisEvaler{err: errors.New("redis down")}).Allow(ctx, "9876543210"); !ok {
			t.Fatalf("expected allow when redis fails")
		}
	})
}

func TestMemoryOTPRateLimiterWindow(t *testing.T) {
	l := NewOTPRateLimiter(time.Minute, 2).(*memoryOTPRateLimiter)
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "a"); !ok {
			t.Fatalf("send %d should pass", i+1)
		}
		now = now.Add(10 * time.Second)
	}
	ok, retry := l.Allow(ctx, "a")
	if ok {
		t.Fatalf("third send in window should be denied")
	}
	if retry != 40*time.Second {
		t.Fatalf("expected 40s until the oldest send leaves the window, got %v", retry)
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatalf("numbers should be limited independently")
	}

	now = now.Add(40 * time.Second)
	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatalf("send after the window should pass")
	}
}
