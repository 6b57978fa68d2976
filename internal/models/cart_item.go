package models

import "time"

// MaxCartQuantity caps the units of one cart line.
const MaxCartQuantity = 10_000

// CartItem is a pending purchase line owned by a user.
type CartItem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_cart_items_user_plan,priority:1"` // Owning user ID.
	PlanID uint64 `gorm:"not null;uniqueIndex:idx_cart_items_user_plan,priority:2"` // Selected plan ID.

	Plan *MonetizationPlan `gorm:"foreignKey:PlanID"` // Selected plan record.

	Quantity int `gorm:"not null;default:1"` // Units of the plan, 1..MaxCartQuantity.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
