package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listas dentro del carrito: activa y "guardar para despues".
const (
	CartListActive = "cart"
	CartListSaved  = "saved"
)

// CartKey identifica una linea por producto y variante.
type CartKey struct {
	ProductID    string `json:"productId"`
	VariantLabel string `json:"variantLabel"`
}

type CartItem struct {
	ProductID    string          `json:"productId"`
	VariantLabel string          `json:"variantLabel"`
	ProductName  string          `json:"productName,omitempty"`
	Category     string          `json:"category,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	AddedAt      time.Time       `json:"addedAt"`
}

func (i CartItem) Key() CartKey {
	return CartKey{ProductID: i.ProductID, VariantLabel: i.VariantLabel}
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AppliedCoupon es el cupon aplicado al carrito con el ahorro calculado.
type AppliedCoupon struct {
	Code      string          `json:"code"`
	Savings   decimal.Decimal `json:"savings"`
	AppliedAt time.Time       `json:"appliedAt"`
}

// Cart es el agregado por usuario: una sola fila por user_id.
type Cart struct {
	UserID               string          `json:"userId"`
	MobileNumber         string          `json:"mobileNumber,omitempty"`
	Items                []CartItem      `json:"items"`
	SavedForLater        []CartItem      `json:"savedForLater"`
	Coupon               *AppliedCoupon  `json:"coupon"`
	DeliveryTip          decimal.Decimal `json:"deliveryTip"`
	DeliveryInstructions string          `json:"deliveryInstructions,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c Cart) Savings() decimal.Decimal {
	if c.Coupon == nil {
		return decimal.Zero
	}
	return c.Coupon.Savings
}

// Total nunca es negativo aunque el ahorro supere el subtotal.
func (c Cart) Total() decimal.Decimal {
	total := c.Subtotal().Sub(c.Savings())
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Add(c.DeliveryTip)
}

func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartTotals es la vista de importes que se devuelve junto al carrito.
type CartTotals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Savings     decimal.Decimal `json:"savings"`
	DeliveryTip decimal.Decimal `json:"deliveryTip"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
}

func (c Cart) Totals() CartTotals {
	return CartTotals{
		Subtotal:    c.Subtotal(),
		Savings:     c.Savings(),
		DeliveryTip: c.DeliveryTip,
		Total:       c.Total(),
		ItemCount:   c.ItemCount(),
	}
}

// Tipos de discrepancias detectadas al validar el carrito contra el catalogo.
const (
	CartIssueUnavailable       = "unavailable"
	CartIssueOutOfStock        = "out_of_stock"
	CartIssueInsufficientStock = "insufficient_stock"
	CartIssuePriceChanged      = "price_changed"
)

type CartIssue struct {
	ProductID         string           `json:"productId"`
	VariantLabel      string           `json:"variantLabel"`
	Kind              string           `json:"kind"`
	Message           string           `json:"message"`
	SnapshotPrice     *decimal.Decimal `json:"snapshotPrice,omitempty"`
	CurrentPrice      *decimal.Decimal `json:"currentPrice,omitempty"`
	RequestedQuantity int              `json:"requestedQuantity,omitempty"`
	AvailableStock    *int             `json:"availableStock,omitempty"`
}

// CheckoutSummary es el resultado de un checkout exitoso.
type CheckoutSummary struct {
	OrderRef        string          `json:"orderRef"`
	UserID          string          `json:"userId"`
	Items           []CartItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Savings         decimal.Decimal `json:"savings"`
	DeliveryTip     decimal.Decimal `json:"deliveryTip"`
	Total           decimal.Decimal `json:"total"`
	CouponCode      string          `json:"couponCode,omitempty"`
	PaymentMethodID string          `json:"paymentMethodId"`
	PlacedAt        time.Time       `json:"placedAt"`
}
