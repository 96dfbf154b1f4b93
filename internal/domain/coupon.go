package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscountPercent = "percent"
	DiscountFlat    = "flat"
)

type Coupon struct {
	Code                 string          `json:"code"`
	Description          string          `json:"description,omitempty"`
	DiscountType         string          `json:"discountType"`
	DiscountValue        decimal.Decimal `json:"discountValue"`
	MaxDiscount          decimal.Decimal `json:"maxDiscount"`
	MinCartValue         decimal.Decimal `json:"minCartValue"`
	StartsAt             *time.Time      `json:"startsAt,omitempty"`
	EndsAt               *time.Time      `json:"endsAt,omitempty"`
	Active               bool            `json:"active"`
	UsageLimitPerUser    int             `json:"usageLimitPerUser"`
	ApplicableCategories []string        `json:"applicableCategories,omitempty"`
	ApplicableProducts   []string        `json:"applicableProducts,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// AppliesTo indica si una linea del carrito es elegible para el cupon.
// Sin restricciones de categoria ni producto, todas las lineas son elegibles.
func (c Coupon) AppliesTo(item CartItem) bool {
	if len(c.ApplicableCategories) == 0 && len(c.ApplicableProducts) == 0 {
		return true
	}
	for _, p := range c.ApplicableProducts {
		if p == item.ProductID {
			return true
		}
	}
	for _, cat := range c.ApplicableCategories {
		if cat == item.Category {
			return true
		}
	}
	return false
}

// CouponQuote es el resultado de validar un cupon contra un carrito.
type CouponQuote struct {
	Code             string          `json:"code"`
	Description      string          `json:"description,omitempty"`
	Savings          decimal.Decimal `json:"savings"`
	EligibleSubtotal decimal.Decimal `json:"eligibleSubtotal"`
	// UsageLimitPerUser se vuelve a aplicar al confirmar el checkout.
	UsageLimitPerUser int `json:"-"`
}

// AvailableCoupon es un cupon listado para el usuario con su aplicabilidad actual.
type AvailableCoupon struct {
	Coupon     Coupon           `json:"coupon"`
	Applicable bool             `json:"applicable"`
	Savings    *decimal.Decimal `json:"savings,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}
