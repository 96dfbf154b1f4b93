package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesCopiesWithDetails(t *testing.T) {
	sentinel := New(KindRateLimited, "otp resend cooldown")
	withDetails := sentinel.WithDetails(map[string]int{"retryAfter": 12})

	if !errors.Is(withDetails, sentinel) {
		t.Fatalf("expected copy with details to match sentinel")
	}
	if sentinel.Details != nil {
		t.Fatalf("expected sentinel to stay untouched")
	}
	if errors.Is(withDetails, New(KindRateLimited, "other")) {
		t.Fatalf("expected different message not to match")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(KindNotFound, "cart not found"))
	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", got)
	}
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected INTERNAL for unknown errors, got %s", got)
	}
}

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindExpired, http.StatusGone},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUpstream, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.kind, tt.want, got)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("gateway timeout")
	err := Wrap(KindUpstream, "sms delivery failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if err.Error() != "sms delivery failed: gateway timeout" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
