package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/service"
)

type PaymentMethodHandler struct {
	logger  *zap.Logger
	methods *service.PaymentMethodService
}

func NewPaymentMethodHandler(logger *zap.Logger, methods *service.PaymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{logger: logger, methods: methods}
}

// Add maneja POST /v1/payment-methods. El token viene ya tokenizado por el gateway.
func (h *PaymentMethodHandler) Add(c *gin.Context) {
	req, ok := bindBody[struct {
		GatewayToken string `json:"gatewayToken" binding:"required,max=255"`
		Brand        string `json:"brand" binding:"required,max=32"`
		LastFour     string `json:"lastFour" binding:"required,len=4,numeric"`
		ExpMonth     int    `json:"expMonth" binding:"required,min=1,max=12"`
		ExpYear      int    `json:"expYear" binding:"required,min=1000,max=9999"`
		MakeDefault  bool   `json:"makeDefault"`
	}](c)
	if !ok {
		return
	}

	pm, err := h.methods.AddPaymentMethod(c.Request.Context(), currentUserID(c), service.AddPaymentMethodInput{
		GatewayToken: req.GatewayToken,
		Brand:        req.Brand,
		LastFour:     req.LastFour,
		ExpMonth:     req.ExpMonth,
		ExpYear:      req.ExpYear,
		MakeDefault:  req.MakeDefault,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "payment method added", pm)
}

// List maneja GET /v1/payment-methods.
func (h *PaymentMethodHandler) List(c *gin.Context) {
	methods, err := h.methods.ListPaymentMethods(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "payment methods", methods)
}

// Get maneja GET /v1/payment-methods/:id.
func (h *PaymentMethodHandler) Get(c *gin.Context) {
	pm, err := h.methods.GetPaymentMethod(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "payment method", pm)
}

// SetDefault maneja PUT /v1/payment-methods/:id/default.
func (h *PaymentMethodHandler) SetDefault(c *gin.Context) {
	pm, err := h.methods.SetDefaultPaymentMethod(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "default payment method updated", pm)
}

// Delete maneja DELETE /v1/payment-methods/:id.
func (h *PaymentMethodHandler) Delete(c *gin.Context) {
	promoted, err := h.methods.DeletePaymentMethod(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "payment method deleted", gin.H{"promotedDefault": promoted})
}
