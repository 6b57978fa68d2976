// Package admin registers the marketplace administration API.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/config"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/http/api/admin/handlers"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, evaluator *entitlement.Evaluator) {
	if r == nil || db == nil {
		return
	}

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	productHandler := handlers.NewProductHandler(db)
	authed.POST("/products", productHandler.Create)
	authed.GET("/products", productHandler.List)
	authed.GET("/products/:id", productHandler.Get)
	authed.POST("/products/:id/status", productHandler.SetStatus)

	planHandler := handlers.NewPlanHandler(db)
	authed.POST("/products/:id/plans", planHandler.Create)
	authed.GET("/products/:id/plans", planHandler.List)
	authed.PUT("/plans/:id", planHandler.Update)

	receiptHandler := handlers.NewReceiptHandler(db, evaluator)
	authed.GET("/receipts", receiptHandler.List)
	authed.POST("/receipts/:id/cancel", receiptHandler.Cancel)
}

// adminAuthMiddleware validates user JWTs and requires the admin role.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.User
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}
		if admin.Role != models.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}

		c.Set(handlers.ContextAdminID, admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
