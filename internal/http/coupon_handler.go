package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/service"
)

type CouponHandler struct {
	logger  *zap.Logger
	coupons *service.CouponService
}

func NewCouponHandler(logger *zap.Logger, coupons *service.CouponService) *CouponHandler {
	return &CouponHandler{logger: logger, coupons: coupons}
}

type couponRequest struct {
	CouponCode string `json:"couponCode" binding:"required,max=64"`
}

// Validate maneja POST /v1/coupons/validate; no modifica el carrito.
func (h *CouponHandler) Validate(c *gin.Context) {
	req, ok := bindBody[couponRequest](c)
	if !ok {
		return
	}
	quote, err := h.coupons.ValidateCoupon(c.Request.Context(), req.CouponCode, currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "coupon is valid", quote)
}

// Apply maneja POST /v1/coupons/apply.
func (h *CouponHandler) Apply(c *gin.Context) {
	req, ok := bindBody[couponRequest](c)
	if !ok {
		return
	}
	cart, quote, err := h.coupons.ApplyCoupon(c.Request.Context(), req.CouponCode, currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "coupon applied", gin.H{
		"coupon": quote,
		"cart":   newCartView(cart),
	})
}

// Remove maneja DELETE /v1/coupons/remove.
func (h *CouponHandler) Remove(c *gin.Context) {
	cart, err := h.coupons.RemoveCoupon(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "coupon removed", newCartView(cart))
}

// Available maneja GET /v1/coupons/available.
func (h *CouponHandler) Available(c *gin.Context) {
	coupons, err := h.coupons.AvailableCoupons(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "available coupons", coupons)
}
