package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grocery-api/internal/domain"
	"grocery-api/internal/events"
	"grocery-api/internal/metrics"
	"grocery-api/internal/repository"
	"grocery-api/internal/sms"
)

// OTPOptions agrupa los parametros del flujo OTP.
type OTPOptions struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	SendTimeout    time.Duration
}

func (o OTPOptions) withDefaults() OTPOptions {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.ResendCooldown < 0 {
		o.ResendCooldown = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	return o
}

// AuthDeps son las dependencias de AuthService; Limiter, Publisher y Metrics son opcionales.
type AuthDeps struct {
	Logger    *zap.Logger
	OTPs      repository.OTPRepository
	Users     repository.UserRepository
	Sender    sms.Sender
	JWT       *JWTService
	Limiter   OTPRateLimiter
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// AuthService emite, verifica y reenvia OTPs y abre sesion al verificar.
type AuthService struct {
	logger    *zap.Logger
	otps      repository.OTPRepository
	users     repository.UserRepository
	sender    sms.Sender
	jwt       *JWTService
	limiter   OTPRateLimiter
	publisher events.Publisher
	metrics   *metrics.Metrics
	opts      OTPOptions

	now          func() time.Time
	generateCode func() (string, error)
}

func NewAuthService(deps AuthDeps, opts OTPOptions) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := deps.Sender
	if sender == nil {
		sender = sms.NewDisabledSender("sms sender not configured")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	opts = opts.withDefaults()
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewOTPRateLimiter(15*time.Minute, 5)
	}
	return &AuthService{
		logger:       logger,
		otps:         deps.OTPs,
		users:        deps.Users,
		sender:       sender,
		jwt:          deps.JWT,
		limiter:      limiter,
		publisher:    publisher,
		metrics:      deps.Metrics,
		opts:         opts,
		now:          func() time.Time { return time.Now().UTC() },
		generateCode: generateOTPCode,
	}
}

// LoginResult es la respuesta de un verify exitoso.
type LoginResult struct {
	User    domain.User
	Tokens  TokenPair
	Created bool
}

func (s *AuthService) SendOTP(ctx context.Context, mobile string) (domain.OTPIssue, error) {
	return s.issue(ctx, mobile, "send")
}

// ResendOTP reemplaza el codigo vigente; esta sujeto al mismo cooldown que SendOTP.
func (s *AuthService) ResendOTP(ctx context.Context, mobile string) (domain.OTPIssue, error) {
	return s.issue(ctx, mobile, "resend")
}

func (s *AuthService) issue(ctx context.Context, mobile, action string) (domain.OTPIssue, error) {
	mobile = strings.TrimSpace(mobile)
	if !ValidMobile(mobile) {
		return domain.OTPIssue{}, ErrInvalidMobile
	}
	// El cooldown va antes del limitador: un reenvio rechazado no consume cupo de la ventana.
	now := s.now()
	if err := s.checkCooldown(ctx, mobile, now); err != nil {
		return domain.OTPIssue{}, err
	}
	if ok, retryAfter := s.limiter.Allow(ctx, mobile); !ok {
		s.metrics.OTPIssue("rate_limited")
		return domain.OTPIssue{}, ErrOTPRateLimited.WithDetails(retryDetails(retryAfter))
	}

	code, err := s.generateCode()
	if err != nil {
		return domain.OTPIssue{}, internal("generate otp", err)
	}
	hash, err := hashOTPCode(code)
	if err != nil {
		return domain.OTPIssue{}, internal("hash otp", err)
	}

	rec := domain.OTPRecord{
		MobileNumber: mobile,
		CodeHash:     hash,
		ExpiresAt:    now.Add(s.opts.TTL),
		LastSentAt:   now,
	}
	issued, err := s.otps.Issue(ctx, rec, now.Add(-s.opts.ResendCooldown))
	if err != nil {
		return domain.OTPIssue{}, internal("persist otp", err)
	}
	if !issued {
		s.metrics.OTPIssue("cooldown")
		return domain.OTPIssue{}, s.cooldownError(ctx, mobile, now)
	}

	delivered := s.deliver(ctx, mobile, code)
	outcome := "sent"
	if !delivered {
		outcome = "undelivered"
	}
	s.metrics.OTPIssue(outcome)
	s.logger.Info("otp issued",
		zap.String("action", action),
		zap.String("mobile", maskMobile(mobile)),
		zap.Bool("delivered", delivered),
	)

	return domain.OTPIssue{
		MobileNumber: mobile,
		ExpiresAt:    rec.ExpiresAt,
		ExpiresIn:    s.opts.TTL,
		ResendAfter:  s.opts.ResendCooldown,
		Delivered:    delivered,
	}, nil
}

// deliver nunca hace fallar la emision: el codigo queda valido aunque el SMS no salga.
func (s *AuthService) deliver(ctx context.Context, mobile, code string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	if err := s.sender.SendOTP(sendCtx, mobile, code, s.opts.TTL); err != nil {
		s.metrics.Error("sms")
		s.logger.Warn("otp delivery failed", zap.String("mobile", maskMobile(mobile)), zap.Error(err))
		return false
	}
	return true
}

func (s *AuthService) checkCooldown(ctx context.Context, mobile string, now time.Time) error {
	if s.opts.ResendCooldown <= 0 {
		return nil
	}
	rec, err := s.otps.Get(ctx, mobile)
	switch {
	case isNotFound(err):
		return nil
	case err != nil:
		return internal("load otp", err)
	}
	if wait := rec.LastSentAt.Add(s.opts.ResendCooldown).Sub(now); wait > 0 {
		s.metrics.OTPIssue("cooldown")
		return ErrOTPCooldown.WithDetails(retryDetails(wait))
	}
	return nil
}

func (s *AuthService) cooldownError(ctx context.Context, mobile string, now time.Time) error {
	retryAfter := s.opts.ResendCooldown
	if rec, err := s.otps.Get(ctx, mobile); err == nil {
		retryAfter = rec.LastSentAt.Add(s.opts.ResendCooldown).Sub(now)
	}
	return ErrOTPCooldown.WithDetails(retryDetails(retryAfter))
}

func retryDetails(retryAfter time.Duration) map[string]int {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return map[string]int{"retryAfterSeconds": seconds}
}

func (s *AuthService) VerifyOTPAndLogin(ctx context.Context, mobile, code string) (LoginResult, error) {
	mobile = strings.TrimSpace(mobile)
	code = strings.TrimSpace(code)
	if !ValidMobile(mobile) {
		return LoginResult{}, ErrInvalidMobile
	}
	if !ValidOTPCode(code) {
		return LoginResult{}, ErrInvalidOTPFormat
	}

	rec, err := s.otps.Get(ctx, mobile)
	if err != nil {
		if isNotFound(err) {
			s.metrics.OTPVerify("not_found")
			return LoginResult{}, ErrOTPNotFound
		}
		return LoginResult{}, internal("load otp", err)
	}

	now := s.now()
	switch {
	case rec.Verified:
		s.metrics.OTPVerify("reused")
		return LoginResult{}, ErrOTPMismatch
	case rec.IsExpired(now):
		s.metrics.OTPVerify("expired")
		return LoginResult{}, ErrOTPExpired
	case rec.Attempts >= s.opts.MaxAttempts:
		s.metrics.OTPVerify("locked")
		return LoginResult{}, ErrOTPAttemptsExceeded
	}

	if !otpMatches(code, rec.CodeHash) {
		attempts, err := s.otps.IncrementAttempts(ctx, mobile, now)
		if err != nil && !isNotFound(err) {
			return LoginResult{}, internal("record otp attempt", err)
		}
		s.metrics.OTPVerify("mismatch")
		remaining := s.opts.MaxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		return LoginResult{}, ErrOTPMismatch.WithDetails(map[string]int{"attemptsRemaining": remaining})
	}

	// El update condicional sobre el hash garantiza un solo verify exitoso por codigo.
	consumed, err := s.otps.MarkVerified(ctx, mobile, rec.CodeHash, now)
	if err != nil {
		return LoginResult{}, internal("consume otp", err)
	}
	if !consumed {
		s.metrics.OTPVerify("reused")
		return LoginResult{}, ErrOTPMismatch
	}

	verifiedAt := now
	user, created, err := s.users.UpsertVerifiedByMobile(ctx, domain.User{
		ID:                      uuid.NewString(),
		MobileNumber:            mobile,
		IsVerified:              true,
		VerifiedAt:              &verifiedAt,
		NotificationPreferences: domain.DefaultNotificationPreferences(),
		CreatedAt:               now,
	})
	if err != nil {
		return LoginResult{}, internal("find or create user", err)
	}

	tokens, err := s.jwt.GeneratePair(user)
	if err != nil {
		return LoginResult{}, internal("issue tokens", err)
	}

	if created {
		emit(ctx, s.logger, s.publisher, s.now(), events.TypeUserRegistered, user.ID, map[string]any{
			"userId":       user.ID,
			"mobileNumber": user.MobileNumber,
		})
	}
	s.metrics.OTPVerify("success")

	return LoginResult{User: user, Tokens: tokens, Created: created}, nil
}

// Refresh rota el par de tokens; el usuario debe seguir existiendo.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.jwt.parseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.users.GetByID(ctx, claims.UserID); err != nil {
		if isNotFound(err) {
			return TokenPair{}, ErrJWTInvalid
		}
		return TokenPair{}, internal("load user", err)
	}
	return s.jwt.RefreshPair(refreshToken)
}

func (s *AuthService) Logout(_ context.Context, refreshToken string) error {
	return s.jwt.RevokeRefresh(refreshToken)
}

func maskMobile(mobile string) string {
	if len(mobile) < 4 {
		return mobile
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
