package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/domain"
	"grocery-api/internal/service"
)

var errForeignCart = apperr.New(apperr.KindForbidden, "cannot access another user's cart")

// CartHandler expone el carrito del usuario autenticado.
type CartHandler struct {
	logger *zap.Logger
	carts  *service.CartService
}

func NewCartHandler(logger *zap.Logger, carts *service.CartService) *CartHandler {
	return &CartHandler{logger: logger, carts: carts}
}

type cartView struct {
	Cart   domain.Cart       `json:"cart"`
	Totals domain.CartTotals `json:"totals"`
}

func newCartView(cart domain.Cart) cartView {
	return cartView{Cart: cart, Totals: cart.Totals()}
}

type itemKeyRequest struct {
	ProductID    string `json:"productId" binding:"required"`
	VariantLabel string `json:"variantLabel" binding:"required"`
}

func (r itemKeyRequest) key() domain.CartKey {
	return domain.CartKey{ProductID: r.ProductID, VariantLabel: r.VariantLabel}
}

func (h *CartHandler) reply(c *gin.Context, message string, cart domain.Cart, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, message, newCartView(cart))
}

// Add maneja POST /v1/cart/add.
func (h *CartHandler) Add(c *gin.Context) {
	req, ok := bindBody[struct {
		itemKeyRequest
		Quantity int `json:"quantity" binding:"required,min=1,max=100"`
	}](c)
	if !ok {
		return
	}
	claims, _ := GetAuthClaims(c)
	cart, err := h.carts.AddToCart(c.Request.Context(), claims.UserID, service.AddItemInput{
		ProductID:    req.ProductID,
		VariantLabel: req.VariantLabel,
		Quantity:     req.Quantity,
	}, claims.Mobile)
	h.reply(c, "item added to cart", cart, err)
}

// Update maneja POST /v1/cart/update; quantity 0 o negativa elimina la linea.
func (h *CartHandler) Update(c *gin.Context) {
	req, ok := bindBody[struct {
		itemKeyRequest
		Quantity *int `json:"quantity" binding:"required,max=100"`
	}](c)
	if !ok {
		return
	}
	cart, err := h.carts.UpdateCartItem(c.Request.Context(), currentUserID(c), req.key(), *req.Quantity)
	h.reply(c, "cart updated", cart, err)
}

// Decrease maneja POST /v1/cart/decrease.
func (h *CartHandler) Decrease(c *gin.Context) {
	req, ok := bindBody[struct {
		itemKeyRequest
		By int `json:"by" binding:"omitempty,min=1"`
	}](c)
	if !ok {
		return
	}
	cart, err := h.carts.DecreaseCartItem(c.Request.Context(), currentUserID(c), req.key(), req.By)
	h.reply(c, "cart updated", cart, err)
}

// Remove maneja POST /v1/cart/remove.
func (h *CartHandler) Remove(c *gin.Context) {
	req, ok := bindBody[itemKeyRequest](c)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveFromCart(c.Request.Context(), currentUserID(c), req.key())
	h.reply(c, "item removed from cart", cart, err)
}

// SaveForLater maneja POST /v1/cart/save-for-later.
func (h *CartHandler) SaveForLater(c *gin.Context) {
	req, ok := bindBody[itemKeyRequest](c)
	if !ok {
		return
	}
	cart, err := h.carts.MoveToSaveForLater(c.Request.Context(), currentUserID(c), req.key())
	h.reply(c, "item saved for later", cart, err)
}

// MoveToCart maneja POST /v1/cart/move-to-cart.
func (h *CartHandler) MoveToCart(c *gin.Context) {
	req, ok := bindBody[itemKeyRequest](c)
	if !ok {
		return
	}
	cart, err := h.carts.MoveToCart(c.Request.Context(), currentUserID(c), req.key())
	h.reply(c, "item moved to cart", cart, err)
}

// Clear maneja POST /v1/cart/clear-cart.
func (h *CartHandler) Clear(c *gin.Context) {
	cart, err := h.carts.ClearCart(c.Request.Context(), currentUserID(c))
	h.reply(c, "cart cleared", cart, err)
}

// Get maneja GET /v1/cart/:userId; solo el propio carrito es visible.
func (h *CartHandler) Get(c *gin.Context) {
	userID := currentUserID(c)
	if c.Param("userId") != userID {
		respondError(c, h.logger, errForeignCart)
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), userID)
	h.reply(c, "cart", cart, err)
}

// UpdateDelivery maneja PUT /v1/cart/delivery.
func (h *CartHandler) UpdateDelivery(c *gin.Context) {
	req, ok := bindBody[struct {
		DeliveryTip  decimal.Decimal `json:"deliveryTip"`
		Instructions string          `json:"instructions" binding:"max=500"`
	}](c)
	if !ok {
		return
	}
	cart, err := h.carts.UpdateDelivery(c.Request.Context(), currentUserID(c), req.DeliveryTip, req.Instructions)
	h.reply(c, "delivery updated", cart, err)
}

// Validate maneja POST /v1/cart/validate.
func (h *CartHandler) Validate(c *gin.Context) {
	issues, err := h.carts.ValidateCart(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "cart validated", gin.H{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

type checkoutRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// Checkout maneja POST /v1/cart/checkout; sin paymentMethodId se usa el default.
func (h *CartHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength != 0 {
		parsed, ok := bindBody[checkoutRequest](c)
		if !ok {
			return
		}
		req = parsed
	}

	summary, err := h.carts.Checkout(c.Request.Context(), currentUserID(c), req.PaymentMethodID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "order placed", summary)
}
