package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisOpTimeout        = 500 * time.Millisecond
	refreshTokenKeyPrefix = "grocery:refresh:"
)

// RefreshTokenStore guarda el jti de cada refresh token vigente y permite revocarlo.
// Un jti vacio se ignora en Store y Revoke y nunca existe.
type RefreshTokenStore interface {
	Store(jti, userID string, ttl time.Duration) error
	Exists(jti string) (bool, error)
	Revoke(jti string) error
}

func normalizeJTI(jti string) (string, bool) {
	jti = strings.TrimSpace(jti)
	return jti, jti != ""
}

func refreshTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultRefreshTTL
	}
	return ttl
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu      sync.Mutex
	entries map[string]refreshEntry
	now     func() time.Time
}

// NewMemoryRefreshTokenStore sirve para una sola instancia; las sesiones se pierden al reiniciar.
func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		entries: make(map[string]refreshEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryRefreshTokenStore) Store(jti, userID string, ttl time.Duration) error {
	jti, ok := normalizeJTI(jti)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = refreshEntry{userID: userID, expiresAt: s.now().Add(refreshTTL(ttl))}
	return nil
}

func (s *memoryRefreshTokenStore) Exists(jti string) (bool, error) {
	jti, ok := normalizeJTI(jti)
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.entries[jti]
	if !found {
		return false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, jti)
		return false, nil
	}
	return true, nil
}

func (s *memoryRefreshTokenStore) Revoke(jti string) error {
	if jti, ok := normalizeJTI(jti); ok {
		s.mu.Lock()
		delete(s.entries, jti)
		s.mu.Unlock()
	}
	return nil
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRefreshTokenStore guarda jti -> user id con el TTL del refresh token.
type redisRefreshTokenStore struct {
	client redisKV
	prefix string
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{client: client, prefix: refreshTokenKeyPrefix}
}

func (s *redisRefreshTokenStore) Store(jti, userID string, ttl time.Duration) error {
	jti, ok := normalizeJTI(jti)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, userID, refreshTTL(ttl)).Err()
}

func (s *redisRefreshTokenStore) Exists(jti string) (bool, error) {
	jti, ok := normalizeJTI(jti)
	if !ok {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	return n > 0, err
}

func (s *redisRefreshTokenStore) Revoke(jti string) error {
	jti, ok := normalizeJTI(jti)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+jti).Err()
}
