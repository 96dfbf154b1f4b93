package memstore

import (
	"context"
	"sync"

	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

// CatalogStore es un catalogo fijo; Put permite simular cambios de precio o stock.
type CatalogStore struct {
	mu       sync.RWMutex
	variants map[domain.CartKey]domain.ProductVariant
}

func NewCatalogStore(variants ...domain.ProductVariant) *CatalogStore {
	s := &CatalogStore{variants: make(map[domain.CartKey]domain.ProductVariant)}
	for _, v := range variants {
		s.variants[v.Key()] = v
	}
	return s
}

var _ repository.CatalogRepository = (*CatalogStore)(nil)

func (s *CatalogStore) Put(v domain.ProductVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.Key()] = v
}

func (s *CatalogStore) Remove(key domain.CartKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.variants, key)
}

func (s *CatalogStore) GetVariant(_ context.Context, productID, label string) (domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[domain.CartKey{ProductID: productID, VariantLabel: label}]
	if !ok {
		return domain.ProductVariant{}, repository.ErrNotFound
	}
	return v, nil
}

func (s *CatalogStore) GetVariants(_ context.Context, keys []domain.CartKey) (map[domain.CartKey]domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.CartKey]domain.ProductVariant, len(keys))
	for _, k := range keys {
		if v, ok := s.variants[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
