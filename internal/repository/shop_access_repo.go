package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shopsync/internal/model"
)

// ShopAccessRepository shop access repository interface
type ShopAccessRepository interface {
	// Upsert inserts the row or updates the existing row for the same shop domain
	Upsert(ctx context.Context, access *model.ShopAccess) error

	// FindByDomain returns nil without error when the shop is unknown
	FindByDomain(ctx context.Context, shopDomain string) (*model.ShopAccess, error)

	// TouchLastAccess sets last_access_at for a shop
	TouchLastAccess(ctx context.Context, shopDomain string, at time.Time) error
}

// shopAccessRepository shop access repository implementation
type shopAccessRepository struct {
	db *gorm.DB
}

// NewShopAccessRepository creates a shop access repository
func NewShopAccessRepository(db *gorm.DB) ShopAccessRepository {
	return &shopAccessRepository{
		db: db,
	}
}

func (r *shopAccessRepository) Upsert(ctx context.Context, access *model.ShopAccess) error {
	access.ShopDomain = model.NormalizeShopDomain(access.ShopDomain)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_domain"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_token_validated", "token_hash", "validated_at", "last_access_at", "updated_at",
			}),
		}).
		Create(access).Error
}

func (r *shopAccessRepository) FindByDomain(ctx context.Context, shopDomain string) (*model.ShopAccess, error) {
	var access model.ShopAccess
	err := r.db.WithContext(ctx).
		Where("shop_domain = ?", model.NormalizeShopDomain(shopDomain)).
		First(&access).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &access, nil
}

func (r *shopAccessRepository) TouchLastAccess(ctx context.Context, shopDomain string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ShopAccess{}).
		Where("shop_domain = ?", model.NormalizeShopDomain(shopDomain)).
		Update("last_access_at", at).Error
}
