package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

type redemption struct {
	code     string
	userID   string
	orderRef string
	at       time.Time
}

type CouponStore struct {
	mu          sync.Mutex
	coupons     map[string]domain.Coupon
	redemptions []redemption
}

func NewCouponStore(coupons ...domain.Coupon) *CouponStore {
	s := &CouponStore{coupons: make(map[string]domain.Coupon)}
	for _, c := range coupons {
		s.coupons[c.Code] = c
	}
	return s
}

var _ repository.CouponRepository = (*CouponStore)(nil)

func (s *CouponStore) Put(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.Code] = c
}

func (s *CouponStore) GetByCode(_ context.Context, code string) (domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return domain.Coupon{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *CouponStore) ListActive(_ context.Context, now time.Time) ([]domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Coupon
	for _, c := range s.coupons {
		if !c.Active {
			continue
		}
		if c.StartsAt != nil && c.StartsAt.After(now) {
			continue
		}
		if c.EndsAt != nil && c.EndsAt.Before(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *CouponStore) CountRedemptions(_ context.Context, code, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.redemptions {
		if r.code == code && r.userID == userID {
			n++
		}
	}
	return n, nil
}

func (s *CouponStore) RedemptionCounts(_ context.Context, userID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range s.redemptions {
		if r.userID == userID {
			counts[r.code]++
		}
	}
	return counts, nil
}

// redeem aplica el cupo y registra el canje de una vez.
func (s *CouponStore) redeem(c repository.CheckoutCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CouponLimit > 0 {
		used := 0
		for _, r := range s.redemptions {
			if r.code == c.CouponCode && r.userID == c.UserID {
				used++
			}
		}
		if used >= c.CouponLimit {
			return repository.ErrLimitReached
		}
	}
	s.redemptions = append(s.redemptions, redemption{code: c.CouponCode, userID: c.UserID, orderRef: c.OrderRef, at: c.Now})
	return nil
}

// RecordRedemption siembra un canje ya confirmado.
func (s *CouponStore) RecordRedemption(_ context.Context, code, userID, orderRef string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redemptions = append(s.redemptions, redemption{code: code, userID: userID, orderRef: orderRef, at: now})
	return nil
}
