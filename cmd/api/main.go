package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"grocery-api/internal/config"
	"grocery-api/internal/db"
	"grocery-api/internal/events"
	apihttp "grocery-api/internal/http"
	"grocery-api/internal/metrics"
	"grocery-api/internal/repository"
	"grocery-api/internal/service"
	"grocery-api/internal/sms"
	"grocery-api/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.ApplyMigrations(ctx, pool, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrated")
	}

	m := metrics.Registry(cfg.MetricsNamespace)

	var (
		otpLimiter  = service.NewOTPRateLimiter(cfg.OTPRateWindow, cfg.OTPRateMax)
		tokenStore  service.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter and token store", zap.Error(err))
			redisClient = nil
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, cfg.OTPRateWindow, cfg.OTPRateMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
			UseTLS:   cfg.KafkaUseTLS,
		}, logger)
		if err != nil {
			logger.Warn("kafka publisher init failed, events disabled", zap.Error(err))
		} else {
			defer kp.Close()
			publisher = kp
		}
	}

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	cartRepo := repository.NewPgCartRepository(pool)
	catalogRepo := repository.NewPgCatalogRepository(pool)
	couponRepo := repository.NewPgCouponRepository(pool)
	paymentRepo := repository.NewPgPaymentMethodRepository(pool)

	authSvc := service.NewAuthService(service.AuthDeps{
		Logger:    logger,
		OTPs:      otpRepo,
		Users:     userRepo,
		Sender:    newSMSSender(cfg, logger, m),
		JWT:       jwtSvc,
		Limiter:   otpLimiter,
		Publisher: publisher,
		Metrics:   m,
	}, service.OTPOptions{
		TTL:            cfg.OTPTTL,
		ResendCooldown: cfg.OTPResendCooldown,
		MaxAttempts:    cfg.OTPMaxAttempts,
		SendTimeout:    cfg.SMSTimeout,
	})
	userSvc := service.NewUserService(logger, userRepo, otpRepo, publisher)
	couponSvc := service.NewCouponService(logger, couponRepo, cartRepo)
	paymentSvc := service.NewPaymentMethodService(logger, paymentRepo)
	cartSvc := service.NewCartService(service.CartDeps{
		Logger:    logger,
		Carts:     cartRepo,
		Catalog:   catalogRepo,
		Coupons:   couponSvc,
		Payments:  paymentSvc,
		Publisher: publisher,
		Metrics:   m,
	})

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Logger:   logger,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		JWT:      jwtSvc,
		Health:   healthCheck(pool, redisClient),
		Auth:     apihttp.NewAuthHandler(logger, authSvc),
		Users:    apihttp.NewUserHandler(logger, userSvc),
		Cart:     apihttp.NewCartHandler(logger, cartSvc),
		Coupons:  apihttp.NewCouponHandler(logger, couponSvc),
		Payments: apihttp.NewPaymentMethodHandler(logger, paymentSvc),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	return nil
}

// newSMSSender arma la cadena de envio: gateway si esta configurado y, fuera de
// produccion, el codigo tambien se muestra en consola.
func newSMSSender(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) sms.Sender {
	var sender sms.Sender = sms.NewDisabledSender("sms gateway not configured")
	if cfg.SMSGatewayURL != "" {
		gw, err := sms.NewGatewaySender(sms.GatewayConfig{
			BaseURL:    cfg.SMSGatewayURL,
			APIKey:     cfg.SMSAPIKey,
			SenderID:   cfg.SMSSenderID,
			TemplateID: cfg.SMSTemplateID,
			Template:   cfg.SMSTemplate,
			Timeout:    cfg.SMSTimeout,
		}, m)
		if err != nil {
			logger.Warn("sms gateway init failed", zap.Error(err))
		} else {
			sender = gw
		}
	}
	if !cfg.IsProduction() {
		if cfg.SMSGatewayURL == "" {
			return sms.NewConsoleSender(logger, nil)
		}
		return sms.NewConsoleSender(logger, sender)
	}
	return sender
}

func healthCheck(pool *pgxpool.Pool, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx, pool); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
