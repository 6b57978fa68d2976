package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReceiptStatus represents the lifecycle state of a sales receipt.
type ReceiptStatus string

// ReceiptStatus constants define the receipt state machine.
const (
	// ReceiptStatusActive grants access.
	ReceiptStatusActive ReceiptStatus = "active"
	// ReceiptStatusExpired is terminal; the window passed or the quota ran out.
	ReceiptStatusExpired ReceiptStatus = "expired"
	// ReceiptStatusCanceled is terminal; set by an operator.
	ReceiptStatusCanceled ReceiptStatus = "canceled"
)

// Valid reports whether the status is a known receipt state.
func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptStatusActive, ReceiptStatusExpired, ReceiptStatusCanceled:
		return true
	default:
		return false
	}
}

// SalesReceipt records one purchased cart line and the entitlement it grants.
type SalesReceipt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SellerID   uint64 `gorm:"not null;index"` // Product creator user ID.
	CustomerID uint64 `gorm:"not null;index"` // Buyer user ID.

	APIProductID uint64            `gorm:"not null;index"`    // Purchased product ID.
	PlanID       uint64            `gorm:"not null;index"`    // Purchased plan ID.
	Plan         *MonetizationPlan `gorm:"foreignKey:PlanID"` // Purchased plan record.

	UnitPriceCents  int64 `gorm:"not null;default:0"` // Plan price at purchase time.
	Quantity        int   `gorm:"not null;default:1"` // Purchased units.
	TotalPriceCents int64 `gorm:"not null;default:0"` // Unit price times quantity.

	PeriodBegin    *time.Time // Window start for subscriptions.
	PeriodEnd      *time.Time // Window end for subscriptions.
	CountOfRequest *int64     // Request quota for pay-per-use.

	Status ReceiptStatus `gorm:"type:varchar(16);not null;default:'active';index"` // Lifecycle state.

	PaymentMethod    string `gorm:"type:varchar(32);not null"` // Payment method used at checkout.
	PaymentReference string `gorm:"type:varchar(128)"`         // Gateway charge reference.
	Memo             string `gorm:"type:text"`                 // Free-form note.

	PlanSnapshot datatypes.JSON `gorm:"type:jsonb"` // Plan terms captured at purchase.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasWindow reports whether the receipt is time-bound.
func (r *SalesReceipt) HasWindow() bool {
	return r != nil && r.PeriodEnd != nil
}

// HasQuota reports whether the receipt is quota-bound.
func (r *SalesReceipt) HasQuota() bool {
	return r != nil && r.CountOfRequest != nil
}
