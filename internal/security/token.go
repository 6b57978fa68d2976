// Package security issues user tokens and hashes passwords.
package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/router-for-me/APIMarketplace/internal/models"
)

var (
	// ErrInvalidToken indicates a token that failed parsing or validation.
	ErrInvalidToken = errors.New("security: invalid token")
	// ErrMissingSecret indicates signing without a configured secret.
	ErrMissingSecret = errors.New("security: jwt secret is empty")
)

// UserClaims identifies the caller of the marketplace API.
type UserClaims struct {
	UserID   uint64          `json:"uid"`
	Username string          `json:"username,omitempty"`
	Role     models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IssueUserToken signs an HS256 token for user valid for ttl.
func IssueUserToken(secret string, user models.User, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	now = now.UTC()
	expires := now.Add(ttl)
	claims := UserClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, expires, nil
}

// ParseUserToken validates a token and returns its claims.
func ParseUserToken(secret, tokenString string) (UserClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return UserClaims{}, ErrMissingSecret
	}
	token, errParse := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return UserClaims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return UserClaims{}, ErrInvalidToken
	}
	return *claims, nil
}
