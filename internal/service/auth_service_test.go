package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"grocery-api/internal/apperr"
	"grocery-api/internal/events"
	"grocery-api/internal/repository/memstore"
	"grocery-api/internal/sms"
)

const testMobile = "9876543210"

type authFixture struct {
	svc    *AuthService
	otps   *memstore.OTPStore
	users  *memstore.UserStore
	sender *captureSender
	pub    *recordingPublisher
	clock  *testClock
}

func newAuthFixture(opts OTPOptions) *authFixture {
	f := &authFixture{
		otps:   memstore.NewOTPStore(),
		users:  memstore.NewUserStore(),
		sender: &captureSender{},
		pub:    &recordingPublisher{},
		clock:  newTestClock(),
	}
	f.svc = NewAuthService(AuthDeps{
		OTPs:      f.otps,
		Users:     f.users,
		Sender:    f.sender,
		JWT:       NewJWTServiceWithStore("secret", 15*time.Minute, time.Hour, NewMemoryRefreshTokenStore()),
		Limiter:   NewOTPRateLimiter(time.Minute, 100),
		Publisher: f.pub,
	}, opts)
	f.svc.now = f.clock.Now
	return f
}

func TestAuthService_SendAndVerifyCreatesUser(t *testing.T) {
	f := newAuthFixture(OTPOptions{ResendCooldown: 30 * time.Second})
	ctx := context.Background()

	issue, err := f.svc.SendOTP(ctx, testMobile)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if !issue.Delivered || issue.ExpiresIn != 5*time.Minute || issue.ResendAfter != 30*time.Second {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	code := f.sender.last()
	if len(code) != OTPLength {
		t.Fatalf("expected %d digit code, got %q", OTPLength, code)
	}

	rec, err := f.otps.Get(ctx, testMobile)
	if err != nil {
		t.Fatalf("get otp: %v", err)
	}
	if rec.CodeHash == code {
		t.Fatalf("otp must not be stored in plain text")
	}

	res, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, code)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if !res.Created || !res.User.IsVerified || res.User.MobileNumber != testMobile {
		t.Fatalf("unexpected login result: %+v", res)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}
	if got := f.pub.types(); len(got) != 1 || got[0] != events.TypeUserRegistered {
		t.Fatalf("expected user.registered event, got %v", got)
	}
}

func TestAuthService_VerifySucceedsOnlyOnce(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	code := f.sender.last()
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, code); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch on reuse, got %v", err)
	}
}

func TestAuthService_ExistingUserLogsIn(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	ctx := context.Background()

	login := func() LoginResult {
		t.Helper()
		if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
			t.Fatalf("send otp: %v", err)
		}
		res, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, f.sender.last())
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		return res
	}

	first := login()
	f.clock.Advance(time.Minute)
	second := login()
	if second.Created {
		t.Fatalf("second login must not create a user")
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("expected same user id, got %s and %s", first.User.ID, second.User.ID)
	}
	if n := len(f.pub.types()); n != 1 {
		t.Fatalf("expected a single registration event, got %d", n)
	}
}

func TestAuthService_ExpiredOTP(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	f.clock.Advance(5*time.Minute + time.Second)

	_, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, f.sender.last())
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindExpired {
		t.Fatalf("expected expired kind, got %s", apperr.KindOf(err))
	}
}

func TestAuthService_ResendInvalidatesPreviousCode(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	f.svc.generateCode = sequenceCodes("111111", "222222")
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if _, err := f.svc.ResendOTP(ctx, testMobile); err != nil {
		t.Fatalf("resend otp: %v", err)
	}

	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "111111"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected old code to be rejected, got %v", err)
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "222222"); err != nil {
		t.Fatalf("expected new code to verify: %v", err)
	}
}

func TestAuthService_ResendCooldown(t *testing.T) {
	f := newAuthFixture(OTPOptions{ResendCooldown: 30 * time.Second})
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	f.clock.Advance(10 * time.Second)

	_, err := f.svc.ResendOTP(ctx, testMobile)
	if !errors.Is(err, ErrOTPCooldown) {
		t.Fatalf("expected ErrOTPCooldown, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr.Error, got %T", err)
	}
	details, ok := appErr.Details.(map[string]int)
	if !ok || details["retryAfterSeconds"] != 20 {
		t.Fatalf("expected retryAfterSeconds=20, got %#v", appErr.Details)
	}

	f.clock.Advance(20 * time.Second)
	if _, err := f.svc.ResendOTP(ctx, testMobile); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
}

func TestAuthService_CooldownRejectionKeepsSendBudget(t *testing.T) {
	f := newAuthFixture(OTPOptions{ResendCooldown: 30 * time.Second})
	f.svc.limiter = NewOTPRateLimiter(time.Hour, 2)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.clock.Advance(5 * time.Second)
		if _, err := f.svc.ResendOTP(ctx, testMobile); !errors.Is(err, ErrOTPCooldown) {
			t.Fatalf("resend %d: expected ErrOTPCooldown, got %v", i+1, err)
		}
	}

	f.clock.Advance(30 * time.Second)
	if _, err := f.svc.ResendOTP(ctx, testMobile); err != nil {
		t.Fatalf("second real send should fit the window budget: %v", err)
	}
	if _, err := f.svc.ResendOTP(ctx, testMobile); !errors.Is(err, ErrOTPCooldown) {
		t.Fatalf("expected cooldown right after the resend, got %v", err)
	}
}

func TestAuthService_AttemptsExceeded(t *testing.T) {
	f := newAuthFixture(OTPOptions{MaxAttempts: 2})
	f.svc.generateCode = sequenceCodes("123456")
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}

	_, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "000000")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if details := appErr.Details.(map[string]int); details["attemptsRemaining"] != 1 {
		t.Fatalf("expected 1 attempt remaining, got %v", details)
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "000001"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "123456"); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected ErrOTPAttemptsExceeded, got %v", err)
	}
}

func TestAuthService_Validation(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mobile string
		code   string
		want   error
	}{
		{name: "short mobile", mobile: "98765", code: "123456", want: ErrInvalidMobile},
		{name: "mobile starting with 5", mobile: "5876543210", code: "123456", want: ErrInvalidMobile},
		{name: "letters in otp", mobile: testMobile, code: "12ab56", want: ErrInvalidOTPFormat},
		{name: "short otp", mobile: testMobile, code: "1234", want: ErrInvalidOTPFormat},
		{name: "no otp issued", mobile: "9123456789", code: "123456", want: ErrOTPNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.VerifyOTPAndLogin(ctx, tt.mobile, tt.code); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.SendOTP(ctx, "12345"); !errors.Is(err, ErrInvalidMobile) {
		t.Fatalf("expected ErrInvalidMobile, got %v", err)
	}
}

func TestAuthService_RateLimited(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	f.svc.limiter = NewOTPRateLimiter(time.Minute, 1)
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	_, err := f.svc.ResendOTP(ctx, testMobile)
	if !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr.Error, got %T", err)
	}
	details, ok := appErr.Details.(map[string]int)
	if !ok || details["retryAfterSeconds"] < 1 || details["retryAfterSeconds"] > 60 {
		t.Fatalf("expected retryAfterSeconds within the window, got %#v", appErr.Details)
	}
}

func TestAuthService_DeliveryFailureIsSoft(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	f.sender.err = errors.New("gateway down")
	ctx := context.Background()

	issue, err := f.svc.SendOTP(ctx, testMobile)
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if issue.Delivered {
		t.Fatalf("expected delivered=false")
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, f.sender.last()); err != nil {
		t.Fatalf("code should still verify: %v", err)
	}
}

func TestAuthService_ConsoleSenderLogsCode(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newAuthFixture(OTPOptions{})
	f.svc.sender = sms.NewConsoleSender(zap.New(core), nil)
	f.svc.generateCode = sequenceCodes("482913")
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	entries := logs.FilterField(zap.String("code", "482913")).All()
	if len(entries) != 1 {
		t.Fatalf("expected console log with code, got %d entries", len(entries))
	}
	if _, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, "482913"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAuthService_RefreshRequiresExistingUser(t *testing.T) {
	f := newAuthFixture(OTPOptions{})
	ctx := context.Background()

	if _, err := f.svc.SendOTP(ctx, testMobile); err != nil {
		t.Fatalf("send otp: %v", err)
	}
	res, err := f.svc.VerifyOTPAndLogin(ctx, testMobile, f.sender.last())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected revoked refresh token to fail")
	}

	if err := f.users.Delete(ctx, res.User.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	second, err := f.svc.jwt.GeneratePair(res.User)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for deleted user, got %v", err)
	}
}

func TestMaskMobile(t *testing.T) {
	if got := maskMobile(testMobile); got != "******3210" {
		t.Fatalf("unexpected mask: %s", got)
	}
}
