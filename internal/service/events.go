package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"grocery-api/internal/events"
)

// emit publica un evento de dominio; los fallos solo se registran.
func emit(ctx context.Context, logger *zap.Logger, pub events.Publisher, now time.Time, eventType, key string, payload any) {
	evt, err := events.NewEvent(eventType, key, payload, now)
	if err != nil {
		logger.Warn("build event failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
