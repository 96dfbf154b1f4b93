package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grocery-api/internal/metrics"
)

const defaultTemplate = "{code} is your verification code. It is valid for {minutes} minutes."

// GatewayConfig describe la cuenta del proveedor de SMS.
type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	SenderID   string
	TemplateID string
	Template   string
	Timeout    time.Duration
}

// GatewaySender envia el OTP con un GET templado contra la API del proveedor.
type GatewaySender struct {
	cfg     GatewayConfig
	client  *http.Client
	metrics *metrics.Metrics
}

func NewGatewaySender(cfg GatewayConfig, m *metrics.Metrics) (*GatewaySender, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("sms gateway url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sms api key is required")
	}
	if cfg.Template == "" {
		cfg.Template = defaultTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &GatewaySender{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}, nil
}

func (s *GatewaySender) SendOTP(ctx context.Context, mobile, code string, validFor time.Duration) error {
	if strings.TrimSpace(mobile) == "" {
		return fmt.Errorf("mobile number is required")
	}

	endpoint, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("parse gateway url: %w", err)
	}
	q := endpoint.Query()
	q.Set("apikey", s.cfg.APIKey)
	q.Set("senderid", s.cfg.SenderID)
	q.Set("templateid", s.cfg.TemplateID)
	q.Set("number", mobile)
	q.Set("message", RenderMessage(s.cfg.Template, code, validFor))
	endpoint.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.ObserveSMS("error", time.Since(start))
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		s.metrics.ObserveSMS("error", time.Since(start))
		return fmt.Errorf("sms gateway error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.metrics.ObserveSMS("ok", time.Since(start))
	return nil
}
