package models

import "time"

// ProductStatus represents the listing state of an API product.
type ProductStatus string

// ProductStatus constants define the listing lifecycle.
const (
	// ProductStatusDraft is visible only to its creator.
	ProductStatusDraft ProductStatus = "draft"
	// ProductStatusActive can be browsed and purchased.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusDisabled is hidden and cannot be purchased.
	ProductStatusDisabled ProductStatus = "disabled"
)

// Valid reports whether the status is a known listing state.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusDraft, ProductStatusActive, ProductStatusDisabled:
		return true
	default:
		return false
	}
}

// APIProduct is an API listed on the marketplace by a developer.
type APIProduct struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CreatorID uint64 `gorm:"not null;index"`       // Seller user ID.
	Creator   User   `gorm:"foreignKey:CreatorID"` // Seller user record.

	Name        string `gorm:"type:varchar(255);not null"` // Product name.
	Type        string `gorm:"type:varchar(64)"`           // API style, e.g. REST or GraphQL.
	Protocol    string `gorm:"type:varchar(64)"`           // Transport protocol.
	Version     string `gorm:"type:varchar(64)"`           // Published version label.
	Description string `gorm:"type:text"`                  // Long description.

	Status ProductStatus `gorm:"type:varchar(16);not null;default:'draft';index"` // Listing state.

	Plans []MonetizationPlan `gorm:"foreignKey:APIProductID"` // Plans offered for the product.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name for APIProduct.
func (APIProduct) TableName() string { return "api_products" }
