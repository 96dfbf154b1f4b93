package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa los collectors de Prometheus usados por el servicio.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	OTPIssued    *prometheus.CounterVec
	OTPVerified  *prometheus.CounterVec
	SMSRequests  *prometheus.CounterVec
	SMSLatency   *prometheus.HistogramVec
	Checkouts    *prometheus.CounterVec
	Errors       *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry construye y registra el singleton en el registry global de Prometheus.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = New(namespace, prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// New registra un juego nuevo de collectors en reg; los tests usan un registry propio.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		OTPIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "OTP send and resend attempts by outcome.",
		}, []string{"outcome"}),
		OTPVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		SMSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_requests_total",
			Help:      "SMS gateway requests by status.",
		}, []string{"status"}),
		SMSLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sms_request_duration_seconds",
			Help:      "Latency distribution for SMS gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests,
			m.HTTPLatency,
			m.OTPIssued,
			m.OTPVerified,
			m.SMSRequests,
			m.SMSLatency,
			m.Checkouts,
			m.Errors,
		)
	}
	return m
}

// Los helpers aceptan receptor nil para que los componentes funcionen sin metricas.

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) OTPIssue(outcome string) {
	if m == nil {
		return
	}
	m.OTPIssued.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OTPVerify(outcome string) {
	if m == nil {
		return
	}
	m.OTPVerified.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSMS(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SMSRequests.WithLabelValues(status).Inc()
	m.SMSLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}
