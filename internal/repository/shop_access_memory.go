package repository

import (
	"context"
	"sync"
	"time"

	"shopsync/internal/model"
)

// memoryShopAccessRepository keeps grants in process memory. It backs the
// access endpoints when no database is configured; grants do not survive a
// restart.
type memoryShopAccessRepository struct {
	mu     sync.RWMutex
	nextID uint64
	rows   map[string]model.ShopAccess
}

// NewMemoryShopAccessRepository creates an in-memory shop access repository
func NewMemoryShopAccessRepository() ShopAccessRepository {
	return &memoryShopAccessRepository{rows: make(map[string]model.ShopAccess)}
}

func (r *memoryShopAccessRepository) Upsert(_ context.Context, access *model.ShopAccess) error {
	access.ShopDomain = model.NormalizeShopDomain(access.ShopDomain)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[access.ShopDomain]; ok {
		access.ID = existing.ID
		access.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		access.ID = r.nextID
		access.CreatedAt = now
	}
	access.UpdatedAt = now
	r.rows[access.ShopDomain] = *access
	return nil
}

func (r *memoryShopAccessRepository) FindByDomain(_ context.Context, shopDomain string) (*model.ShopAccess, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[model.NormalizeShopDomain(shopDomain)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *memoryShopAccessRepository) TouchLastAccess(_ context.Context, shopDomain string, at time.Time) error {
	domain := model.NormalizeShopDomain(shopDomain)
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[domain]
	if !ok {
		return nil
	}
	row.LastAccessAt = &at
	row.UpdatedAt = time.Now()
	r.rows[domain] = row
	return nil
}
