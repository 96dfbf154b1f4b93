package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/domain"
	"grocery-api/internal/service"
)

// UserHandler mantiene dependencias para endpoints de perfil.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
}

func NewUserHandler(logger *zap.Logger, userServ *service.UserService) *UserHandler {
	return &UserHandler{logger: logger, userServ: userServ}
}

// GetMe maneja GET /v1/users/me.
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userServ.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "profile", user)
}

// UpdateMe maneja PUT /v1/users/me; los campos ausentes no se modifican.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	req, ok := bindBody[struct {
		Name                    *string         `json:"name" binding:"omitempty,max=100"`
		Email                   *string         `json:"email"`
		Avatar                  *string         `json:"avatar" binding:"omitempty,max=500"`
		PrimaryAddressID        *string         `json:"primaryAddressId"`
		NotificationPreferences map[string]bool `json:"notificationPreferences"`
	}](c)
	if !ok {
		return
	}

	user, err := h.userServ.UpdateProfile(c.Request.Context(), currentUserID(c), domain.ProfileUpdate{
		Name:                    req.Name,
		Email:                   req.Email,
		Avatar:                  req.Avatar,
		PrimaryAddressID:        req.PrimaryAddressID,
		NotificationPreferences: req.NotificationPreferences,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "profile updated", user)
}

// DeleteMe maneja DELETE /v1/users/me.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	if err := h.userServ.DeleteAccount(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "account deleted", nil)
}

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096"`
}

// AddDeviceToken maneja POST /v1/users/me/device-tokens.
func (h *UserHandler) AddDeviceToken(c *gin.Context) {
	req, ok := bindBody[deviceTokenRequest](c)
	if !ok {
		return
	}
	if err := h.userServ.AddDeviceToken(c.Request.Context(), currentUserID(c), req.Token); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "device token registered", nil)
}

// RemoveDeviceToken maneja DELETE /v1/users/me/device-tokens.
func (h *UserHandler) RemoveDeviceToken(c *gin.Context) {
	req, ok := bindBody[deviceTokenRequest](c)
	if !ok {
		return
	}
	if err := h.userServ.RemoveDeviceToken(c.Request.Context(), currentUserID(c), req.Token); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "device token removed", nil)
}
