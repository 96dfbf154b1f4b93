package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
)

// envelope es el formato comun de todas las respuestas JSON.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Meta    any                 `json:"meta,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondError traduce errores de servicio al envelope; los desconocidos se loguean
// y salen como 500 con un mensaje generico.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
			Message: "internal server error",
			Errors:  []apperr.FieldError{{Code: string(apperr.KindInternal), Message: "internal server error"}},
		})
		return
	}

	body := envelope{Message: appErr.Message}
	switch details := appErr.Details.(type) {
	case nil:
	case []apperr.FieldError:
		body.Errors = details
	default:
		body.Meta = details
	}
	if len(body.Errors) == 0 {
		body.Errors = []apperr.FieldError{{Code: string(appErr.Kind), Message: appErr.Message}}
	}
	c.AbortWithStatusJSON(appErr.Kind.Status(), body)
}
