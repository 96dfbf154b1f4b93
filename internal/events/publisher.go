package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeUserRegistered = "user.registered"
	TypeCartCheckedOut = "cart.checked_out"
	TypeAccountDeleted = "user.deleted"
)

// Event es el sobre comun de todos los eventos de dominio.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent serializa payload y arma el sobre; key define la particion (el user id).
func NewEvent(eventType, key string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: now.UTC(),
		Payload:    raw,
	}, nil
}

// Publisher emite eventos de dominio. Un fallo de publicacion nunca revierte la operacion.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
