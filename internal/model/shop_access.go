package model

import (
	"strings"
	"time"
)

// ShopAccess records whether a shop has presented a valid access token.
type ShopAccess struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ShopDomain       string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"shopDomain"`
	IsTokenValidated bool       `gorm:"not null;default:false" json:"isTokenValidated"`
	TokenHash        string     `gorm:"type:varchar(100)" json:"-"`
	ValidatedAt      *time.Time `json:"validatedAt"`
	LastAccessAt     *time.Time `json:"lastAccessAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName specifies table name
func (ShopAccess) TableName() string {
	return "shop_access"
}

// NormalizeShopDomain lowercases and trims a shop domain so lookups are
// case-insensitive.
func NormalizeShopDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
