package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/domain"
	"grocery-api/internal/service"
)

// AuthHandler expone el flujo OTP y la rotacion de tokens.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

type mobileRequest struct {
	MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
}

type otpIssueResponse struct {
	ExpiresIn   int  `json:"expiresIn"`
	ResendAfter int  `json:"resendAfter"`
	Delivered   bool `json:"delivered"`
}

func newOTPIssueResponse(issue domain.OTPIssue) otpIssueResponse {
	return otpIssueResponse{
		ExpiresIn:   int(issue.ExpiresIn.Seconds()),
		ResendAfter: int(issue.ResendAfter.Seconds()),
		Delivered:   issue.Delivered,
	}
}

// SendOTP maneja POST /v1/otp/send-otp.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	req, ok := bindBody[mobileRequest](c)
	if !ok {
		return
	}
	issue, err := h.auth.SendOTP(c.Request.Context(), req.MobileNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "OTP sent", newOTPIssueResponse(issue))
}

// ResendOTP maneja POST /v1/otp/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	req, ok := bindBody[mobileRequest](c)
	if !ok {
		return
	}
	issue, err := h.auth.ResendOTP(c.Request.Context(), req.MobileNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "OTP resent", newOTPIssueResponse(issue))
}

// VerifyOTP maneja POST /v1/otp/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	req, ok := bindBody[struct {
		MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
		EnteredOTP   string `json:"enteredOTP" binding:"required,otp"`
	}](c)
	if !ok {
		return
	}

	res, err := h.auth.VerifyOTPAndLogin(c.Request.Context(), req.MobileNumber, req.EnteredOTP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respond(c, status, "OTP verified", gin.H{
		"userId":       res.User.ID,
		"token":        res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
		"expiresIn":    res.Tokens.ExpiresIn,
		"isNewUser":    res.Created,
		"user":         res.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh maneja POST /v1/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	req, ok := bindBody[refreshRequest](c)
	if !ok {
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "token refreshed", tokens)
}

// Logout maneja POST /v1/auth/logout; un token ya revocado no es error.
func (h *AuthHandler) Logout(c *gin.Context) {
	req, ok := bindBody[refreshRequest](c)
	if !ok {
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.logger.Debug("logout with invalid refresh token", zap.Error(err))
	}
	respond(c, http.StatusOK, "logged out", nil)
}
