package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/models"
)

// Context keys set by the front auth middleware.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// getUserID returns the authenticated user id or zero.
func getUserID(c *gin.Context) uint64 {
	raw, ok := c.Get(ContextUserID)
	if !ok {
		return 0
	}
	id, _ := raw.(uint64)
	return id
}

// getUserRole returns the authenticated user role.
func getUserRole(c *gin.Context) models.UserRole {
	raw, ok := c.Get(ContextUserRole)
	if !ok {
		return ""
	}
	role, _ := raw.(models.UserRole)
	return role
}

// parseIDParam parses a positive uint64 path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return fallback
	}
	return v
}

// parseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates in UTC.
func parseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if ts, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
		return ts.UTC(), false, nil
	}
	day, errParse := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if errParse != nil {
		return time.Time{}, false, errParse
	}
	return day, true, nil
}
