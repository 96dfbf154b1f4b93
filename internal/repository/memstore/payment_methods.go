package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

// PaymentMethodStore serializa WithUserLock con un mutex global, y rechaza
// un segundo default activo igual que el indice parcial de Postgres.
type PaymentMethodStore struct {
	lock    sync.Mutex
	mu      sync.Mutex
	methods map[string]domain.PaymentMethod
}

func NewPaymentMethodStore() *PaymentMethodStore {
	return &PaymentMethodStore{methods: make(map[string]domain.PaymentMethod)}
}

var _ repository.PaymentMethodRepository = (*PaymentMethodStore)(nil)

func (s *PaymentMethodStore) WithUserLock(_ context.Context, userID string, fn func(repository.PaymentMethodStore) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.mu.Lock()
	snapshot := make(map[string]domain.PaymentMethod, len(s.methods))
	for k, v := range s.methods {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.methods = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *PaymentMethodStore) ListActive(_ context.Context, userID string) ([]domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.PaymentMethod{}
	for _, pm := range s.methods {
		if pm.UserID == userID && pm.IsActive {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PaymentMethodStore) Get(_ context.Context, userID, id string) (domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok || pm.UserID != userID || !pm.IsActive {
		return domain.PaymentMethod{}, repository.ErrNotFound
	}
	return pm, nil
}

func (s *PaymentMethodStore) FindActiveByToken(_ context.Context, userID, token string) (domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pm := range s.methods {
		if pm.UserID == userID && pm.IsActive && pm.GatewayToken == token {
			return pm, nil
		}
	}
	return domain.PaymentMethod{}, repository.ErrNotFound
}

func (s *PaymentMethodStore) Insert(_ context.Context, pm domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.methods {
		if existing.UserID != pm.UserID || !existing.IsActive || !pm.IsActive {
			continue
		}
		if existing.GatewayToken == pm.GatewayToken {
			return fmt.Errorf("%w: payment_methods_active_token_idx", repository.ErrConflict)
		}
		if existing.IsDefault && pm.IsDefault {
			return fmt.Errorf("%w: payment_methods_one_default_idx", repository.ErrConflict)
		}
	}
	s.methods[pm.ID] = pm
	return nil
}

func (s *PaymentMethodStore) ClearDefaults(_ context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pm := range s.methods {
		if pm.UserID == userID && pm.IsDefault {
			pm.IsDefault = false
			pm.UpdatedAt = now
			s.methods[id] = pm
		}
	}
	return nil
}

func (s *PaymentMethodStore) SetDefault(_ context.Context, userID, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok || pm.UserID != userID || !pm.IsActive {
		return repository.ErrNotFound
	}
	for otherID, other := range s.methods {
		if otherID != id && other.UserID == userID && other.IsActive && other.IsDefault {
			return fmt.Errorf("%w: payment_methods_one_default_idx", repository.ErrConflict)
		}
	}
	pm.IsDefault = true
	pm.UpdatedAt = now
	s.methods[id] = pm
	return nil
}

func (s *PaymentMethodStore) Deactivate(_ context.Context, userID, id string, now time.Time) error {
	return s.update(userID, id, func(pm *domain.PaymentMethod) {
		pm.IsActive = false
		pm.IsDefault = false
		pm.UpdatedAt = now
	})
}

func (s *PaymentMethodStore) TouchLastUsed(_ context.Context, userID, id string, now time.Time) error {
	return s.update(userID, id, func(pm *domain.PaymentMethod) {
		used := now
		pm.LastUsedAt = &used
		pm.UpdatedAt = now
	})
}

// All devuelve todos los medios del usuario, incluidos los inactivos.
func (s *PaymentMethodStore) All(userID string) []domain.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentMethod
	for _, pm := range s.methods {
		if pm.UserID == userID {
			out = append(out, pm)
		}
	}
	return out
}

func (s *PaymentMethodStore) update(userID, id string, fn func(*domain.PaymentMethod)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok || pm.UserID != userID || !pm.IsActive {
		return repository.ErrNotFound
	}
	fn(&pm)
	s.methods[id] = pm
	return nil
}
