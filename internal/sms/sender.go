package sms

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sender entrega el codigo OTP al numero movil.
type Sender interface {
	SendOTP(ctx context.Context, mobile, code string, validFor time.Duration) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTP(_ context.Context, _ string, _ string, _ time.Duration) error {
	if s.reason == "" {
		return errors.New("sms sender disabled")
	}
	return errors.New(s.reason)
}

// ConsoleSender muestra el codigo en el log del operador (modo no productivo)
// y luego delega en next si esta configurado.
type ConsoleSender struct {
	logger *zap.Logger
	next   Sender
}

func NewConsoleSender(logger *zap.Logger, next Sender) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger, next: next}
}

func (s *ConsoleSender) SendOTP(ctx context.Context, mobile, code string, validFor time.Duration) error {
	s.logger.Info("otp issued (dev console)",
		zap.String("mobile", mobile),
		zap.String("code", code),
		zap.Duration("valid_for", validFor),
	)
	if s.next == nil {
		return nil
	}
	return s.next.SendOTP(ctx, mobile, code, validFor)
}

// RenderMessage reemplaza {code} y {minutes} en la plantilla.
func RenderMessage(template, code string, validFor time.Duration) string {
	minutes := int(validFor.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return strings.NewReplacer(
		"{code}", code,
		"{minutes}", strconv.Itoa(minutes),
	).Replace(template)
}
