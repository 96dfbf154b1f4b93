package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersRecordValues(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObserveHTTP("/v1/cart/add", "POST", 200, 20*time.Millisecond)
	m.ObserveHTTP("/v1/cart/add", "POST", 200, 30*time.Millisecond)
	m.OTPIssue("sent")
	m.OTPVerify("expired")
	m.ObserveSMS("error", time.Second)
	m.Checkout("success")
	m.Error("sms")

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/cart/add", "POST", "200")); got != 2 {
		t.Fatalf("expected 2 http requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.OTPIssued.WithLabelValues("sent")); got != 1 {
		t.Fatalf("expected 1 otp issued, got %v", got)
	}
	if got := testutil.ToFloat64(m.OTPVerified.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expected 1 expired verification, got %v", got)
	}
	if got := testutil.ToFloat64(m.SMSRequests.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 sms error, got %v", got)
	}
	if got := testutil.ToFloat64(m.Checkouts.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 checkout, got %v", got)
	}
	if got := testutil.CollectAndCount(m.HTTPLatency); got != 1 {
		t.Fatalf("expected one latency series, got %d", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("/", "GET", 200, time.Millisecond)
	m.OTPIssue("sent")
	m.OTPVerify("success")
	m.ObserveSMS("ok", time.Millisecond)
	m.Checkout("success")
	m.Error("db")
}

func TestRegistryIsSingleton(t *testing.T) {
	a := Registry("grocery_test")
	b := Registry("other")
	if a != b {
		t.Fatalf("expected the same metrics instance")
	}
}
