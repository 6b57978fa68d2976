package models

import "time"

// UserRole identifies what a marketplace account may do.
type UserRole string

// UserRole constants define the supported account roles.
const (
	// UserRoleCustomer buys API plans.
	UserRoleCustomer UserRole = "customer"
	// UserRoleDeveloper publishes API products and sells plans.
	UserRoleDeveloper UserRole = "developer"
	// UserRoleAdmin manages the marketplace.
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleCustomer, UserRoleDeveloper, UserRoleAdmin:
		return true
	default:
		return false
	}
}

// User represents a marketplace account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Name     string `gorm:"type:text"`                      // Display name.
	Email    string `gorm:"type:text;uniqueIndex"`          // Email address.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role UserRole `gorm:"type:varchar(16);not null;default:'customer';index"` // Account role.

	Active bool `gorm:"not null;default:true"` // Whether the user can sign in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
