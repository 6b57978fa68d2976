package models

import "time"

// UsageLogType classifies an audit log entry.
type UsageLogType string

// UsageLogType constants define the audit entry kinds.
const (
	// UsageLogTypePurchase marks a checkout activation.
	UsageLogTypePurchase UsageLogType = "purchase"
	// UsageLogTypeAPIUsage marks consumed requests against a receipt.
	UsageLogTypeAPIUsage UsageLogType = "api_usage"
	// UsageLogTypeOther marks anything else.
	UsageLogTypeOther UsageLogType = "other"
)

// UsageLog is an append-only audit entry. Rows are never updated.
type UsageLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Type UsageLogType `gorm:"type:varchar(16);not null;index"` // Entry kind.

	UserID         uint64  `gorm:"not null;index"` // Acting user ID.
	SalesReceiptID *uint64 `gorm:"index"`          // Related receipt ID.

	CountOfCurrentRequest *int64 // Requests consumed by this entry.
	ActivationEvent       *bool  // Set on purchase entries.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
