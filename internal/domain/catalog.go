package domain

import "github.com/shopspring/decimal"

// ProductVariant es la vista de solo lectura del catalogo que usa el carrito.
type ProductVariant struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Category    string          `json:"category"`
	Label       string          `json:"label"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
}

func (v ProductVariant) Key() CartKey {
	return CartKey{ProductID: v.ProductID, VariantLabel: v.Label}
}
