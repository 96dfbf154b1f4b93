package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository/memstore"
)

const testUserID = "u1"

var (
	milkKey  = domain.CartKey{ProductID: "milk", VariantLabel: "1l"}
	breadKey = domain.CartKey{ProductID: "bread", VariantLabel: "400g"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type commerceFixture struct {
	clock    *testClock
	carts    *memstore.CartStore
	catalog  *memstore.CatalogStore
	coupons  *memstore.CouponStore
	methods  *memstore.PaymentMethodStore
	pub      *recordingPublisher
	couponSv *CouponService
	paySv    *PaymentMethodService
	cartSv   *CartService
}

func newCommerceFixture() *commerceFixture {
	coupons := memstore.NewCouponStore()
	f := &commerceFixture{
		clock: newTestClock(),
		carts: memstore.NewLinkedCartStore(coupons),
		catalog: memstore.NewCatalogStore(
			domain.ProductVariant{ProductID: "milk", ProductName: "Toned Milk", Category: "dairy", Label: "1l", Price: dec("40"), Stock: 10, Active: true},
			domain.ProductVariant{ProductID: "bread", ProductName: "Brown Bread", Category: "bakery", Label: "400g", Price: dec("60"), Stock: 5, Active: true},
		),
		coupons: coupons,
		methods: memstore.NewPaymentMethodStore(),
		pub:     &recordingPublisher{},
	}
	f.couponSv = NewCouponService(nil, f.coupons, f.carts)
	f.couponSv.now = f.clock.Now
	f.paySv = NewPaymentMethodService(nil, f.methods)
	f.paySv.now = f.clock.Now
	f.cartSv = NewCartService(CartDeps{
		Carts:     f.carts,
		Catalog:   f.catalog,
		Coupons:   f.couponSv,
		Payments:  f.paySv,
		Publisher: f.pub,
	})
	f.cartSv.now = f.clock.Now
	return f
}

func (f *commerceFixture) add(t *testing.T, key domain.CartKey, qty int) domain.Cart {
	t.Helper()
	cart, err := f.cartSv.AddToCart(context.Background(), testUserID, AddItemInput{
		ProductID:    key.ProductID,
		VariantLabel: key.VariantLabel,
		Quantity:     qty,
	}, testMobile)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	return cart
}

func (f *commerceFixture) addCard(t *testing.T, token, lastFour string, makeDefault bool) domain.PaymentMethod {
	t.Helper()
	pm, err := f.paySv.AddPaymentMethod(context.Background(), testUserID, AddPaymentMethodInput{
		GatewayToken: token,
		Brand:        "visa",
		LastFour:     lastFour,
		ExpMonth:     12,
		ExpYear:      2030,
		MakeDefault:  makeDefault,
	})
	if err != nil {
		t.Fatalf("add payment method: %v", err)
	}
	return pm
}

func findItem(items []domain.CartItem, key domain.CartKey) (domain.CartItem, bool) {
	for _, item := range items {
		if item.Key() == key {
			return item, true
		}
	}
	return domain.CartItem{}, false
}
