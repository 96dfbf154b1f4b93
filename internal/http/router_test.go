package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"grocery-api/internal/domain"
	"grocery-api/internal/metrics"
	"grocery-api/internal/repository/memstore"
	"grocery-api/internal/service"
)

type lastCodeSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *lastCodeSender) SendOTP(_ context.Context, mobile, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[mobile] = code
	return nil
}

func (s *lastCodeSender) code(mobile string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[mobile]
}

type testServer struct {
	router *gin.Engine
	sender *lastCodeSender
	jwt    *service.JWTService
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Meta json.RawMessage `json:"meta"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := memstore.NewUserStore()
	otps := memstore.NewOTPStore()
	catalog := memstore.NewCatalogStore(
		domain.ProductVariant{ProductID: "milk", ProductName: "Toned Milk", Category: "dairy", Label: "1l", Price: decimal.RequireFromString("40"), Stock: 10, Active: true},
	)
	coupons := memstore.NewCouponStore(domain.Coupon{
		Code: "SAVE10", DiscountType: domain.DiscountFlat, DiscountValue: decimal.RequireFromString("10"), Active: true,
	})
	carts := memstore.NewLinkedCartStore(coupons)
	methods := memstore.NewPaymentMethodStore()

	reg := prometheus.NewRegistry()
	m := metrics.New("grocery_test", reg)
	sender := &lastCodeSender{codes: map[string]string{}}
	jwtSvc := service.NewJWTServiceWithStore("secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())

	authSvc := service.NewAuthService(service.AuthDeps{
		OTPs:    otps,
		Users:   users,
		Sender:  sender,
		JWT:     jwtSvc,
		Limiter: service.NewOTPRateLimiter(time.Minute, 100),
		Metrics: m,
	}, service.OTPOptions{})
	couponSvc := service.NewCouponService(nil, coupons, carts)
	paySvc := service.NewPaymentMethodService(nil, methods)
	cartSvc := service.NewCartService(service.CartDeps{
		Carts:    carts,
		Catalog:  catalog,
		Coupons:  couponSvc,
		Payments: paySvc,
		Metrics:  m,
	})

	router := NewRouter(RouterDeps{
		Metrics:  m,
		Gatherer: reg,
		JWT:      jwtSvc,
		Auth:     NewAuthHandler(nil, authSvc),
		Users:    NewUserHandler(nil, service.NewUserService(nil, users, otps, nil)),
		Cart:     NewCartHandler(nil, cartSvc),
		Coupons:  NewCouponHandler(nil, couponSvc),
		Payments: NewPaymentMethodHandler(nil, paySvc),
	})
	return &testServer{router: router, sender: sender, jwt: jwtSvc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %s: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func (s *testServer) login(t *testing.T, mobile string) (userID, token string) {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/v1/otp/send-otp", "", map[string]string{"mobileNumber": mobile})
	if code != http.StatusOK {
		t.Fatalf("send-otp: %d %+v", code, resp)
	}
	code, resp = s.do(t, http.MethodPost, "/v1/otp/verify-otp", "", map[string]string{
		"mobileNumber": mobile,
		"enteredOTP":   s.sender.code(mobile),
	})
	if code != http.StatusCreated && code != http.StatusOK {
		t.Fatalf("verify-otp: %d %+v", code, resp)
	}
	var data struct {
		UserID       string `json:"userId"`
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if data.UserID == "" || data.Token == "" || data.RefreshToken == "" {
		t.Fatalf("incomplete login payload: %s", resp.Data)
	}
	return data.UserID, data.Token
}

func TestRouter_SendOTPValidation(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodPost, "/v1/otp/send-otp", "", map[string]string{"mobileNumber": "12345"})
	if code != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400, got %d", code)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Field != "mobileNumber" || resp.Errors[0].Code != "mobile" {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}

	code, resp = s.do(t, http.MethodPost, "/v1/otp/verify-otp", "", map[string]string{"mobileNumber": "9876543210", "enteredOTP": "12"})
	if code != http.StatusBadRequest || len(resp.Errors) != 1 || resp.Errors[0].Field != "enteredOTP" {
		t.Fatalf("expected otp field error, got %d %+v", code, resp.Errors)
	}
}

func TestRouter_SendOTPResponse(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodPost, "/v1/otp/send-otp", "", map[string]string{"mobileNumber": "9876543210"})
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("expected 200, got %d", code)
	}
	var data struct {
		ExpiresIn int  `json:"expiresIn"`
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.ExpiresIn != 300 || !data.Delivered {
		t.Fatalf("unexpected payload: %+v", data)
	}
	if strings.Contains(string(resp.Data), s.sender.code("9876543210")) {
		t.Fatalf("response must not contain the otp")
	}
}

func TestRouter_VerifyWrongCode(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPost, "/v1/otp/send-otp", "", map[string]string{"mobileNumber": "9876543210"}); code != http.StatusOK {
		t.Fatalf("send-otp failed: %d", code)
	}
	wrong := "000000"
	if s.sender.code("9876543210") == wrong {
		wrong = "111111"
	}

	code, resp := s.do(t, http.MethodPost, "/v1/otp/verify-otp", "", map[string]string{"mobileNumber": "9876543210", "enteredOTP": wrong})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if !strings.Contains(string(resp.Meta), "attemptsRemaining") {
		t.Fatalf("expected attempts in meta, got %s", resp.Meta)
	}
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodGet, "/v1/users/me", "", nil)
	if code != http.StatusUnauthorized || resp.Success {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRouter_ProfileFlow(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "9876543210")

	code, resp := s.do(t, http.MethodPut, "/v1/users/me", token, map[string]any{"name": "Asha", "email": "asha@example.com"})
	if code != http.StatusOK {
		t.Fatalf("update profile: %d %+v", code, resp)
	}
	var user domain.User
	if err := json.Unmarshal(resp.Data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Name != "Asha" || user.MobileNumber != "9876543210" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if code, _ := s.do(t, http.MethodPost, "/v1/users/me/device-tokens", token, map[string]string{"token": "fcm-1"}); code != http.StatusOK {
		t.Fatalf("add device token: %d", code)
	}
	if code, _ := s.do(t, http.MethodDelete, "/v1/users/me", token, nil); code != http.StatusOK {
		t.Fatalf("delete account: %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/users/me", token, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestRouter_CartCouponCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	userID, token := s.login(t, "9876543210")
	item := map[string]any{"productId": "milk", "variantLabel": "1l", "quantity": 2}

	for i := 0; i < 2; i++ {
		if code, resp := s.do(t, http.MethodPost, "/v1/cart/add", token, item); code != http.StatusOK {
			t.Fatalf("add: %d %+v", code, resp)
		}
	}

	code, resp := s.do(t, http.MethodGet, "/v1/cart/"+userID, token, nil)
	if code != http.StatusOK {
		t.Fatalf("get cart: %d", code)
	}
	var view struct {
		Cart   domain.Cart       `json:"cart"`
		Totals domain.CartTotals `json:"totals"`
	}
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].Quantity != 4 || !view.Totals.Subtotal.Equal(decimal.RequireFromString("160")) {
		t.Fatalf("unexpected cart: %+v", view)
	}

	if code, _ := s.do(t, http.MethodGet, "/v1/cart/someone-else", token, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's cart, got %d", code)
	}

	if code, resp := s.do(t, http.MethodPost, "/v1/coupons/apply", token, map[string]string{"couponCode": "save10"}); code != http.StatusOK {
		t.Fatalf("apply coupon: %d %+v", code, resp)
	}
	if code, resp := s.do(t, http.MethodPost, "/v1/coupons/validate", token, map[string]string{"couponCode": "NOPE"}); code != http.StatusNotFound || resp.Success {
		t.Fatalf("expected 404 for unknown coupon, got %d", code)
	}

	code, resp = s.do(t, http.MethodPost, "/v1/cart/checkout", token, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 without payment method, got %d %+v", code, resp)
	}

	card := map[string]any{"gatewayToken": "tok_1", "brand": "visa", "lastFour": "4242", "expMonth": 12, "expYear": 2099}
	code, resp = s.do(t, http.MethodPost, "/v1/payment-methods", token, card)
	if code != http.StatusCreated {
		t.Fatalf("add payment method: %d %+v", code, resp)
	}
	if strings.Contains(string(resp.Data), "tok_1") {
		t.Fatalf("gateway token must not be serialized")
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/payment-methods", token, card); code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate card, got %d", code)
	}

	code, resp = s.do(t, http.MethodPost, "/v1/cart/checkout", token, nil)
	if code != http.StatusCreated {
		t.Fatalf("checkout: %d %+v", code, resp)
	}
	var summary domain.CheckoutSummary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.OrderRef == "" || summary.CouponCode != "SAVE10" || !summary.Total.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if code, _ := s.do(t, http.MethodPost, "/v1/cart/checkout", token, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", code)
	}
}

func TestRouter_PaymentMethodValidationListsFields(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "9876543210")

	code, resp := s.do(t, http.MethodPost, "/v1/payment-methods", token, map[string]any{"lastFour": "42", "expMonth": 13})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	fields := map[string]bool{}
	for _, e := range resp.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"gatewayToken", "brand", "lastFour", "expMonth", "expYear"} {
		if !fields[f] {
			t.Fatalf("expected error for %s, got %+v", f, resp.Errors)
		}
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	if code, resp := s.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK || !resp.Success {
		t.Fatalf("healthz: %d", code)
	}
	s.do(t, http.MethodPost, "/v1/otp/send-otp", "", map[string]string{"mobileNumber": "9876543210"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "grocery_test_otp_issued_total") || !strings.Contains(body, "grocery_test_http_requests_total") {
		t.Fatalf("expected otp and http metrics, got:\n%s", body)
	}
}

func TestRouter_UpdateNonPositiveQuantityRemovesLine(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "9876543210")
	milk := map[string]any{"productId": "milk", "variantLabel": "1l", "quantity": 2}
	if code, resp := s.do(t, http.MethodPost, "/v1/cart/add", token, milk); code != http.StatusOK {
		t.Fatalf("add: %d %+v", code, resp)
	}

	milk["quantity"] = -1
	code, resp := s.do(t, http.MethodPost, "/v1/cart/update", token, milk)
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("expected 200 for negative quantity, got %d %+v", code, resp)
	}
	var view struct {
		Cart domain.Cart `json:"cart"`
	}
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Cart.Items) != 0 {
		t.Fatalf("expected line removed, got %+v", view.Cart.Items)
	}

	milk["quantity"] = 101
	if code, _ := s.do(t, http.MethodPost, "/v1/cart/update", token, milk); code != http.StatusBadRequest {
		t.Fatalf("expected 400 above the maximum, got %d", code)
	}
}

func TestRouter_PaymentMethodMalformedID(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t, "9876543210")

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/v1/payment-methods/abc"},
		{http.MethodPut, "/v1/payment-methods/abc/default"},
		{http.MethodDelete, "/v1/payment-methods/abc"},
	} {
		code, resp := s.do(t, req.method, req.path, token, nil)
		if code != http.StatusNotFound || resp.Message != "payment method not found" {
			t.Fatalf("%s %s: expected 404, got %d %+v", req.method, req.path, code, resp)
		}
	}
}
