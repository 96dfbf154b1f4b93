package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisKV struct {
	values map[string]interface{}
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedisKV() *fakeRedisKV {
	return &fakeRedisKV{values: map[string]interface{}{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.values[key] = value
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedisKV) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedisKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestMemoryRefreshTokenStore_Expiry(t *testing.T) {
	store := NewMemoryRefreshTokenStore().(*memoryRefreshTokenStore)
	clock := newTestClock()
	store.now = clock.Now

	if ok, err := store.Exists("missing"); err != nil || ok {
		t.Fatalf("expected missing token false,nil; got %v,%v", ok, err)
	}
	if err := store.Store("jti-1", "u1", time.Hour); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if ok, _ := store.Exists("jti-1"); !ok {
		t.Fatalf("expected token to exist")
	}
	if store.entries["jti-1"].userID != "u1" {
		t.Fatalf("expected owner recorded, got %+v", store.entries["jti-1"])
	}

	clock.Advance(time.Hour)
	if ok, _ := store.Exists("jti-1"); ok {
		t.Fatalf("expected token to expire at its ttl")
	}
	if _, kept := store.entries["jti-1"]; kept {
		t.Fatalf("expected expired entry to be dropped")
	}
}

func TestMemoryRefreshTokenStore_Revoke(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	if err := store.Store("", "u1", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	_ = store.Store("jti-2", "u1", 0)
	if ok, _ := store.Exists("jti-2"); !ok {
		t.Fatalf("expected zero ttl to fall back to default")
	}
	if err := store.Revoke("jti-2"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if ok, _ := store.Exists("jti-2"); ok {
		t.Fatalf("expected revoked token absent")
	}
}

func TestRedisRefreshTokenStore_Lifecycle(t *testing.T) {
	kv := newFakeRedisKV()
	store := &redisRefreshTokenStore{client: kv, prefix: "grocery:refresh:"}

	if err := store.Store(" j1 ", "u1", 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if kv.values["grocery:refresh:j1"] != "u1" {
		t.Fatalf("expected user id stored under prefixed key, got %+v", kv.values)
	}
	if kv.ttls["grocery:refresh:j1"] != defaultRefreshTTL {
		t.Fatalf("expected default ttl, got %v", kv.ttls["grocery:refresh:j1"])
	}

	if ok, err := store.Exists("j1"); err != nil || !ok {
		t.Fatalf("expected exists true,nil; got %v,%v", ok, err)
	}
	if err := store.Revoke("j1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if ok, _ := store.Exists("j1"); ok {
		t.Fatalf("expected token revoked")
	}
}

func TestRedisRefreshTokenStore_Errors(t *testing.T) {
	kv := newFakeRedisKV()
	kv.err = errors.New("redis down")
	store := &redisRefreshTokenStore{client: kv, prefix: "grocery:refresh:"}

	if err := store.Store("", "u1", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	if err := store.Store("j2", "u1", time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := store.Exists("j2"); err == nil {
		t.Fatalf("expected exists error")
	}
	if err := store.Revoke("j2"); err == nil {
		t.Fatalf("expected revoke error")
	}
}

func TestJWTServiceWithRedisStore(t *testing.T) {
	kv := newFakeRedisKV()
	svc := NewJWTServiceWithStore("secret", time.Minute, time.Hour, &redisRefreshTokenStore{client: kv, prefix: "grocery:refresh:"})

	pair, err := svc.GeneratePair(testUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if len(kv.values) != 1 {
		t.Fatalf("expected one stored jti, got %d", len(kv.values))
	}
	if err := svc.RevokeRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(kv.values) != 0 {
		t.Fatalf("expected jti removed on logout")
	}
}
