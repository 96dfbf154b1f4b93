package http

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/service"
)

const authClaimsKey = "auth_claims"

var errMissingToken = apperr.New(apperr.KindUnauthorized, "missing token")

// JWTAuthMiddleware exige un access token; un token vencido responde "jwt expired" para que la app use el refresh.
func JWTAuthMiddleware(logger *zap.Logger, jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			respondError(c, logger, apperr.New(apperr.KindInternal, "jwt not configured"))
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondError(c, logger, errMissingToken)
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if errors.Is(err, service.ErrJWTExpired) {
			respondError(c, logger, service.ErrJWTExpired)
			return
		}
		if err != nil {
			respondError(c, logger, service.ErrJWTInvalid)
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

// currentUserID asume que JWTAuthMiddleware ya corrio en la ruta.
func currentUserID(c *gin.Context) string {
	claims, _ := GetAuthClaims(c)
	return claims.UserID
}
