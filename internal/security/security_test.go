package security

import (
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/models"
)

func TestUserToken_RoundTrip(t *testing.T) {
	user := models.User{ID: 12, Username: "ada", Role: models.UserRoleDeveloper}
	token, expires, err := IssueUserToken("secret", user, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", expires)
	}
	claims, err := ParseUserToken("secret", token)
	if err != nil {
		t.Fatalf("ParseUserToken: %v", err)
	}
	if claims.UserID != 12 || claims.Role != models.UserRoleDeveloper || claims.Username != "ada" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestUserToken_Rejects(t *testing.T) {
	user := models.User{ID: 12, Role: models.UserRoleCustomer}
	token, _, err := IssueUserToken("secret", user, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	if _, errParse := ParseUserToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", errParse)
	}
	expired, _, err := IssueUserToken("secret", user, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	if _, errParse := ParseUserToken("secret", expired); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", errParse)
	}
	if _, _, errIssue := IssueUserToken(" ", user, time.Hour, time.Now()); !errors.Is(errIssue, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", errIssue)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if errCheck := CheckPassword(hash, "correct horse"); errCheck != nil {
		t.Fatalf("expected match, got %v", errCheck)
	}
	if errCheck := CheckPassword(hash, "wrong"); !errors.Is(errCheck, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", errCheck)
	}
	random, err := GenerateRandomString(16)
	if err != nil || len(random) != 32 {
		t.Fatalf("expected 32 hex chars, got %q err=%v", random, err)
	}
}
