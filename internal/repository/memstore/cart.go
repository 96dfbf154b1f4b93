package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

// CartStore registra los usos de cupon del checkout en coupons, si se le pasa.
type CartStore struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	coupons *CouponStore
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*domain.Cart)}
}

// NewLinkedCartStore comparte los canjes con coupons, como las dos tablas en Postgres.
func NewLinkedCartStore(coupons *CouponStore) *CartStore {
	s := NewCartStore()
	s.coupons = coupons
	return s
}

var _ repository.CartRepository = (*CartStore)(nil)

func (s *CartStore) Get(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, repository.ErrNotFound
	}
	return cloneCart(*cart), nil
}

func (s *CartStore) EnsureCart(_ context.Context, userID, mobile string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		s.carts[userID] = &domain.Cart{
			UserID:        userID,
			MobileNumber:  mobile,
			Items:         []domain.CartItem{},
			SavedForLater: []domain.CartItem{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return nil
	}
	if mobile != "" {
		cart.MobileNumber = mobile
	}
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) AddItem(_ context.Context, userID string, item domain.CartItem, now time.Time) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return domain.CartItem{}, repository.ErrNotFound
	}

	if i := indexOf(cart.Items, item.Key()); i >= 0 {
		existing := &cart.Items[i]
		existing.Quantity += item.Quantity
		existing.UnitPrice = item.UnitPrice
		existing.ProductName = item.ProductName
		existing.Category = item.Category
		cart.UpdatedAt = now
		return *existing, nil
	}

	item.AddedAt = now
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = now
	return item, nil
}

func (s *CartStore) SetQuantity(_ context.Context, userID string, key domain.CartKey, qty int, price *decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	i := indexOf(cart.Items, key)
	if i < 0 {
		return repository.ErrNotFound
	}
	cart.Items[i].Quantity = qty
	if price != nil {
		cart.Items[i].UnitPrice = *price
	}
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) DecrementQuantity(_ context.Context, userID string, key domain.CartKey, by int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	i := indexOf(cart.Items, key)
	if i < 0 {
		return 0, repository.ErrNotFound
	}
	remaining := cart.Items[i].Quantity - by
	if remaining <= 0 {
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		remaining = 0
	} else {
		cart.Items[i].Quantity = remaining
	}
	cart.UpdatedAt = now
	return remaining, nil
}

func (s *CartStore) RemoveItem(_ context.Context, userID, list string, key domain.CartKey, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	items := listOf(cart, list)
	i := indexOf(*items, key)
	if i < 0 {
		return repository.ErrNotFound
	}
	*items = append((*items)[:i], (*items)[i+1:]...)
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) MoveItem(_ context.Context, userID string, key domain.CartKey, from, to string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	src := listOf(cart, from)
	dst := listOf(cart, to)
	i := indexOf(*src, key)
	if i < 0 {
		return repository.ErrNotFound
	}
	item := (*src)[i]
	*src = append((*src)[:i], (*src)[i+1:]...)

	if j := indexOf(*dst, key); j >= 0 {
		(*dst)[j].Quantity += item.Quantity
	} else {
		item.AddedAt = now
		*dst = append(*dst, item)
	}
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) ClearItems(_ context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil
	}
	cart.Items = []domain.CartItem{}
	cart.Coupon = nil
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) SetCoupon(_ context.Context, userID string, coupon *domain.AppliedCoupon, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if coupon == nil {
		cart.Coupon = nil
	} else {
		c := *coupon
		cart.Coupon = &c
	}
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) SetDelivery(_ context.Context, userID string, tip decimal.Decimal, instructions string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	cart.DeliveryTip = tip
	cart.DeliveryInstructions = instructions
	cart.UpdatedAt = now
	return nil
}

func (s *CartStore) CompleteCheckout(_ context.Context, c repository.CheckoutCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[c.UserID]
	if !ok || len(cart.Items) == 0 || !cart.UpdatedAt.Equal(c.Version) {
		return repository.ErrStale
	}
	if c.CouponCode != "" {
		if s.coupons == nil {
			return errors.New("cart store has no coupon store")
		}
		if err := s.coupons.redeem(c); err != nil {
			return err
		}
	}
	cart.Items = []domain.CartItem{}
	cart.Coupon = nil
	cart.UpdatedAt = c.Now
	return nil
}

// DeleteUser elimina el carrito del usuario, igual que la cascada en Postgres.
func (s *CartStore) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

func listOf(cart *domain.Cart, list string) *[]domain.CartItem {
	if list == domain.CartListSaved {
		return &cart.SavedForLater
	}
	return &cart.Items
}

func indexOf(items []domain.CartItem, key domain.CartKey) int {
	for i, item := range items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem{}, c.Items...)
	c.SavedForLater = append([]domain.CartItem{}, c.SavedForLater...)
	if c.Coupon != nil {
		coupon := *c.Coupon
		c.Coupon = &coupon
	}
	return c
}
