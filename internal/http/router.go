package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"grocery-api/internal/metrics"
	"grocery-api/internal/service"
)

// RouterDeps agrupa handlers e infraestructura del router.
type RouterDeps struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	JWT      *service.JWTService
	// Health verifica dependencias (DB, Redis); nil responde siempre ok.
	Health func(ctx context.Context) error

	Auth     *AuthHandler
	Users    *UserHandler
	Cart     *CartHandler
	Coupons  *CouponHandler
	Payments *PaymentMethodHandler
}

// NewRouter configura el router de Gin con middlewares y rutas v1.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterValidators()

	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware(deps.Metrics))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{Message: "route not found"})
	})

	r.GET("/healthz", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1", jsonContentTypeMiddleware())

	otp := v1.Group("/otp")
	otp.POST("/send-otp", deps.Auth.SendOTP)
	otp.POST("/verify-otp", deps.Auth.VerifyOTP)
	otp.POST("/resend-otp", deps.Auth.ResendOTP)

	auth := v1.Group("/auth")
	auth.POST("/refresh", deps.Auth.Refresh)
	auth.POST("/logout", deps.Auth.Logout)

	protected := v1.Group("", JWTAuthMiddleware(logger, deps.JWT))

	users := protected.Group("/users/me")
	users.GET("", deps.Users.GetMe)
	users.PUT("", deps.Users.UpdateMe)
	users.DELETE("", deps.Users.DeleteMe)
	users.POST("/device-tokens", deps.Users.AddDeviceToken)
	users.DELETE("/device-tokens", deps.Users.RemoveDeviceToken)

	cart := protected.Group("/cart")
	cart.POST("/add", deps.Cart.Add)
	cart.POST("/update", deps.Cart.Update)
	cart.POST("/decrease", deps.Cart.Decrease)
	cart.POST("/remove", deps.Cart.Remove)
	cart.POST("/clear-cart", deps.Cart.Clear)
	cart.POST("/save-for-later", deps.Cart.SaveForLater)
	cart.POST("/move-to-cart", deps.Cart.MoveToCart)
	cart.POST("/validate", deps.Cart.Validate)
	cart.POST("/checkout", deps.Cart.Checkout)
	cart.PUT("/delivery", deps.Cart.UpdateDelivery)
	cart.GET("/:userId", deps.Cart.Get)

	coupons := protected.Group("/coupons")
	coupons.POST("/validate", deps.Coupons.Validate)
	coupons.POST("/apply", deps.Coupons.Apply)
	coupons.DELETE("/remove", deps.Coupons.Remove)
	coupons.GET("/available", deps.Coupons.Available)

	payments := protected.Group("/payment-methods")
	payments.GET("", deps.Payments.List)
	payments.POST("", deps.Payments.Add)
	payments.GET("/:id", deps.Payments.Get)
	payments.DELETE("/:id", deps.Payments.Delete)
	payments.PUT("/:id/default", deps.Payments.SetDefault)

	return r
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, envelope{Message: "unhealthy: " + err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, envelope{Success: true, Message: "ok"})
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware etiqueta por ruta registrada para no explotar la cardinalidad.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
