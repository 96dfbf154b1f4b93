package memstore

import (
	"context"
	"sync"
	"time"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

type OTPStore struct {
	mu      sync.Mutex
	records map[string]domain.OTPRecord
}

func NewOTPStore() *OTPStore {
	return &OTPStore{records: make(map[string]domain.OTPRecord)}
}

var _ repository.OTPRepository = (*OTPStore)(nil)

func (s *OTPStore) Issue(_ context.Context, rec domain.OTPRecord, resendCutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.MobileNumber]; ok {
		if !existing.Verified && existing.LastSentAt.After(resendCutoff) {
			return false, nil
		}
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = rec.LastSentAt
	}
	rec.Verified = false
	rec.Attempts = 0
	rec.UpdatedAt = rec.LastSentAt
	s.records[rec.MobileNumber] = rec
	return true, nil
}

func (s *OTPStore) Get(_ context.Context, mobile string) (domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[mobile]
	if !ok {
		return domain.OTPRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (s *OTPStore) MarkVerified(_ context.Context, mobile, codeHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[mobile]
	if !ok || rec.Verified || rec.CodeHash != codeHash {
		return false, nil
	}
	rec.Verified = true
	rec.UpdatedAt = now
	s.records[mobile] = rec
	return true, nil
}

func (s *OTPStore) IncrementAttempts(_ context.Context, mobile string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[mobile]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.Attempts++
	rec.UpdatedAt = now
	s.records[mobile] = rec
	return rec.Attempts, nil
}

func (s *OTPStore) Delete(_ context.Context, mobile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, mobile)
	return nil
}
