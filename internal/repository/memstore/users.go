// Package memstore implementa los repositorios en memoria para tests y ejecuciones locales.
package memstore

import (
	"context"
	"sync"
	"time"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

type UserStore struct {
	mu       sync.Mutex
	byID     map[string]domain.User
	byMobile map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:     make(map[string]domain.User),
		byMobile: make(map[string]string),
	}
}

var _ repository.UserRepository = (*UserStore)(nil)

func (s *UserStore) UpsertVerifiedByMobile(_ context.Context, user domain.User) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byMobile[user.MobileNumber]; ok {
		existing := s.byID[id]
		existing.IsVerified = true
		if existing.VerifiedAt == nil {
			existing.VerifiedAt = user.VerifiedAt
		}
		existing.UpdatedAt = user.CreatedAt
		s.byID[id] = existing
		return cloneUser(existing), false, nil
	}

	user.IsVerified = true
	user.UpdatedAt = user.CreatedAt
	if user.NotificationPreferences == nil {
		user.NotificationPreferences = map[string]bool{}
	}
	if user.DeviceTokens == nil {
		user.DeviceTokens = []string{}
	}
	s.byID[user.ID] = user
	s.byMobile[user.MobileNumber] = user.ID
	return cloneUser(user), true, nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) GetByMobile(_ context.Context, mobile string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMobile[mobile]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) UpdateProfile(_ context.Context, id string, upd domain.ProfileUpdate, now time.Time) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	if upd.PrimaryAddressID != nil {
		u.PrimaryAddressID = *upd.PrimaryAddressID
	}
	if upd.NotificationPreferences != nil {
		merged := make(map[string]bool, len(u.NotificationPreferences)+len(upd.NotificationPreferences))
		for k, v := range u.NotificationPreferences {
			merged[k] = v
		}
		for k, v := range upd.NotificationPreferences {
			merged[k] = v
		}
		u.NotificationPreferences = merged
	}
	u.UpdatedAt = now
	s.byID[id] = u
	return cloneUser(u), nil
}

func (s *UserStore) AddDeviceToken(_ context.Context, id, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, t := range u.DeviceTokens {
		if t == token {
			return nil
		}
	}
	u.DeviceTokens = append(append([]string{}, u.DeviceTokens...), token)
	u.UpdatedAt = now
	s.byID[id] = u
	return nil
}

func (s *UserStore) RemoveDeviceToken(_ context.Context, id, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	kept := make([]string, 0, len(u.DeviceTokens))
	for _, t := range u.DeviceTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	u.DeviceTokens = kept
	u.UpdatedAt = now
	s.byID[id] = u
	return nil
}

func (s *UserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byMobile, u.MobileNumber)
	return nil
}

func cloneUser(u domain.User) domain.User {
	if u.NotificationPreferences != nil {
		prefs := make(map[string]bool, len(u.NotificationPreferences))
		for k, v := range u.NotificationPreferences {
			prefs[k] = v
		}
		u.NotificationPreferences = prefs
	}
	u.DeviceTokens = append([]string(nil), u.DeviceTokens...)
	return u
}
