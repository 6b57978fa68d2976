package models

import "time"

// PlanCategory classifies how a plan grants access.
type PlanCategory string

// PlanCategory constants define the supported monetization categories.
const (
	// PlanCategorySubscription grants a calendar window.
	PlanCategorySubscription PlanCategory = "subscription"
	// PlanCategoryPayPerUse grants a request quota.
	PlanCategoryPayPerUse PlanCategory = "pay-per-use"
	// PlanCategoryOneTime grants unconditional access.
	PlanCategoryOneTime PlanCategory = "one-time"
)

// PlanCategories lists categories in display order.
var PlanCategories = []PlanCategory{PlanCategorySubscription, PlanCategoryPayPerUse, PlanCategoryOneTime}

// Valid reports whether the category is one of PlanCategories.
func (c PlanCategory) Valid() bool {
	switch c {
	case PlanCategorySubscription, PlanCategoryPayPerUse, PlanCategoryOneTime:
		return true
	default:
		return false
	}
}

// PaymentUnit is the unit a plan price is quoted in.
type PaymentUnit string

// PaymentUnit constants define the supported units of payment.
const (
	PaymentUnitDay              PaymentUnit = "day"
	PaymentUnitWeek             PaymentUnit = "week"
	PaymentUnitMonth            PaymentUnit = "month"
	PaymentUnitYear             PaymentUnit = "year"
	PaymentUnitRequest          PaymentUnit = "request"
	PaymentUnitThousandRequests PaymentUnit = "thousand-requests"
	PaymentUnitMB               PaymentUnit = "mb"
	PaymentUnitGB               PaymentUnit = "gb"
	PaymentUnitLicense          PaymentUnit = "license"
)

// PaymentUnits lists units in display order.
var PaymentUnits = []PaymentUnit{
	PaymentUnitDay,
	PaymentUnitWeek,
	PaymentUnitMonth,
	PaymentUnitYear,
	PaymentUnitRequest,
	PaymentUnitThousandRequests,
	PaymentUnitMB,
	PaymentUnitGB,
	PaymentUnitLicense,
}

// Valid reports whether the unit is a known payment unit.
func (u PaymentUnit) Valid() bool {
	for _, unit := range PaymentUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// MonetizationPlan is one way of paying for an API product.
type MonetizationPlan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	APIProductID uint64      `gorm:"not null;index"`          // Owning product ID.
	APIProduct   *APIProduct `gorm:"foreignKey:APIProductID"` // Owning product record.

	Category PlanCategory `gorm:"type:varchar(32);not null"` // Monetization category.
	Unit     PaymentUnit  `gorm:"type:varchar(32);not null"` // Unit of payment.

	PriceCents  int64  `gorm:"not null;default:0"` // Unit price in cents.
	Description string `gorm:"type:text"`          // Plan description.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
