package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// CouponService valida cupones contra el carrito y mantiene el cupon aplicado.
type CouponService struct {
	logger  *zap.Logger
	coupons repository.CouponRepository
	carts   repository.CartRepository
	now     func() time.Time
}

func NewCouponService(logger *zap.Logger, coupons repository.CouponRepository, carts repository.CartRepository) *CouponService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponService{
		logger:  logger,
		coupons: coupons,
		carts:   carts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ValidateCoupon calcula el ahorro del cupon sobre el carrito actual sin modificarlo.
func (s *CouponService) ValidateCoupon(ctx context.Context, code, userID string) (domain.CouponQuote, error) {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return domain.CouponQuote{}, err
	}
	return s.quote(ctx, code, userID, cart)
}

// ApplyCoupon revalida y escribe el cupon en el carrito; reemplaza cualquier cupon previo.
func (s *CouponService) ApplyCoupon(ctx context.Context, code, userID string) (domain.Cart, domain.CouponQuote, error) {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, domain.CouponQuote{}, err
	}
	quote, err := s.quote(ctx, code, userID, cart)
	if err != nil {
		return domain.Cart{}, domain.CouponQuote{}, err
	}

	applied := &domain.AppliedCoupon{Code: quote.Code, Savings: quote.Savings, AppliedAt: s.now()}
	if err := s.carts.SetCoupon(ctx, userID, applied, s.now()); err != nil {
		return domain.Cart{}, domain.CouponQuote{}, internal("apply coupon", err)
	}
	cart.Coupon = applied
	return cart, quote, nil
}

// RemoveCoupon es idempotente: sin carrito o sin cupon no hace nada.
func (s *CouponService) RemoveCoupon(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return emptyCart(userID), nil
		}
		return domain.Cart{}, internal("load cart", err)
	}
	if cart.Coupon == nil {
		return cart, nil
	}
	if err := s.carts.SetCoupon(ctx, userID, nil, s.now()); err != nil && !isNotFound(err) {
		return domain.Cart{}, internal("remove coupon", err)
	}
	cart.Coupon = nil
	return cart, nil
}

// AvailableCoupons lista los cupones vigentes que el usuario aun puede usar.
func (s *CouponService) AvailableCoupons(ctx context.Context, userID string) ([]domain.AvailableCoupon, error) {
	now := s.now()
	coupons, err := s.coupons.ListActive(ctx, now)
	if err != nil {
		return nil, internal("list coupons", err)
	}
	used, err := s.coupons.RedemptionCounts(ctx, userID)
	if err != nil {
		return nil, internal("load redemptions", err)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			return nil, internal("load cart", err)
		}
		cart = emptyCart(userID)
	}

	out := make([]domain.AvailableCoupon, 0, len(coupons))
	for _, c := range coupons {
		if c.UsageLimitPerUser > 0 && used[c.Code] >= c.UsageLimitPerUser {
			continue
		}
		entry := domain.AvailableCoupon{Coupon: c}
		quote, err := evaluateCoupon(c, cart, used[c.Code], now)
		if err != nil {
			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				return nil, err
			}
			entry.Reason = appErr.Message
		} else {
			entry.Applicable = true
			savings := quote.Savings
			entry.Savings = &savings
		}
		out = append(out, entry)
	}
	return out, nil
}

// Reconcile recalcula el ahorro del cupon aplicado tras un cambio de items, o lo
// quita si ya no valida. Nunca deja un ahorro obsoleto en el carrito.
func (s *CouponService) Reconcile(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.Coupon == nil {
		return cart, nil
	}
	quote, err := s.quote(ctx, cart.Coupon.Code, cart.UserID, cart)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return domain.Cart{}, err
		}
		s.logger.Info("coupon dropped from cart",
			zap.String("user_id", cart.UserID),
			zap.String("code", cart.Coupon.Code),
			zap.Error(err),
		)
		if err := s.carts.SetCoupon(ctx, cart.UserID, nil, s.now()); err != nil {
			return domain.Cart{}, internal("clear coupon", err)
		}
		cart.Coupon = nil
		return cart, nil
	}

	if quote.Savings.Equal(cart.Coupon.Savings) {
		return cart, nil
	}
	updated := &domain.AppliedCoupon{Code: quote.Code, Savings: quote.Savings, AppliedAt: cart.Coupon.AppliedAt}
	if err := s.carts.SetCoupon(ctx, cart.UserID, updated, s.now()); err != nil {
		return domain.Cart{}, internal("update coupon savings", err)
	}
	cart.Coupon = updated
	return cart, nil
}

func (s *CouponService) quote(ctx context.Context, code, userID string, cart domain.Cart) (domain.CouponQuote, error) {
	code = normalizeCouponCode(code)
	if code == "" {
		return domain.CouponQuote{}, ErrCouponCodeRequired
	}
	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return domain.CouponQuote{}, ErrCouponNotFound
		}
		return domain.CouponQuote{}, internal("load coupon", err)
	}
	used, err := s.coupons.CountRedemptions(ctx, code, userID)
	if err != nil {
		return domain.CouponQuote{}, internal("count redemptions", err)
	}
	return evaluateCoupon(coupon, cart, used, s.now())
}

func (s *CouponService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{}, ErrCartEmpty
		}
		return domain.Cart{}, internal("load cart", err)
	}
	return cart, nil
}

// evaluateCoupon aplica las reglas del cupon a un carrito ya cargado.
func evaluateCoupon(c domain.Coupon, cart domain.Cart, used int, now time.Time) (domain.CouponQuote, error) {
	switch {
	case !c.Active:
		return domain.CouponQuote{}, ErrCouponInactive
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return domain.CouponQuote{}, ErrCouponNotStarted
	case c.EndsAt != nil && now.After(*c.EndsAt):
		return domain.CouponQuote{}, ErrCouponExpired
	case c.UsageLimitPerUser > 0 && used >= c.UsageLimitPerUser:
		return domain.CouponQuote{}, ErrCouponUsageExceeded
	case cart.IsEmpty():
		return domain.CouponQuote{}, ErrCartEmpty
	}

	eligible := decimal.Zero
	for _, item := range cart.Items {
		if c.AppliesTo(item) {
			eligible = eligible.Add(item.LineTotal())
		}
	}
	if !eligible.IsPositive() {
		return domain.CouponQuote{}, ErrCouponNotApplicable
	}
	if eligible.LessThan(c.MinCartValue) {
		return domain.CouponQuote{}, ErrCouponMinCartValue.WithDetails(map[string]string{
			"minCartValue": c.MinCartValue.StringFixed(2),
			"shortfall":    c.MinCartValue.Sub(eligible).StringFixed(2),
		})
	}

	var savings decimal.Decimal
	switch c.DiscountType {
	case domain.DiscountPercent:
		savings = eligible.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount.IsPositive() && savings.GreaterThan(c.MaxDiscount) {
			savings = c.MaxDiscount
		}
	default:
		savings = c.DiscountValue
	}
	if savings.GreaterThan(eligible) {
		savings = eligible
	}
	if savings.IsNegative() {
		savings = decimal.Zero
	}

	return domain.CouponQuote{
		Code:              c.Code,
		Description:       c.Description,
		Savings:           savings.Round(2),
		EligibleSubtotal:  eligible,
		UsageLimitPerUser: c.UsageLimitPerUser,
	}, nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func emptyCart(userID string) domain.Cart {
	return domain.Cart{
		UserID:        userID,
		Items:         []domain.CartItem{},
		SavedForLater: []domain.CartItem{},
	}
}
