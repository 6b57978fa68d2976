// Package front registers the customer and seller facing marketplace API.
package front

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/auditlog"
	"github.com/router-for-me/APIMarketplace/internal/cart"
	"github.com/router-for-me/APIMarketplace/internal/checkout"
	"github.com/router-for-me/APIMarketplace/internal/config"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/http/api/front/handlers"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/ratelimit"
	"github.com/router-for-me/APIMarketplace/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps holds the services the front routes depend on.
type Deps struct {
	DB        *gorm.DB
	JWT       config.JWTConfig
	Carts     *cart.Store
	Checkout  *checkout.Service
	Evaluator *entitlement.Evaluator
	Audit     *auditlog.Writer
	Limiter   *ratelimit.Manager
	NowFn     func() time.Time
}

// RegisterFrontRoutes registers front routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}
	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.NowFn)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.POST("/login", authHandler.Login)

	catalogHandler := handlers.NewCatalogHandler(deps.DB)
	frontGroup.GET("/apis", catalogHandler.List)
	frontGroup.GET("/apis/:id", catalogHandler.Get)
	frontGroup.GET("/money-types", catalogHandler.MoneyTypes)

	authed := frontGroup.Group("")
	authed.Use(UserAuthMiddleware(deps.DB, deps.JWT))

	cartHandler := handlers.NewCartHandler(deps.Carts)
	authed.GET("/cart", cartHandler.List)
	authed.POST("/cart", cartHandler.Add)
	authed.PUT("/cart/:id", cartHandler.Update)
	authed.DELETE("/cart/:id", cartHandler.Remove)
	authed.DELETE("/cart", cartHandler.Clear)

	checkoutHandler := handlers.NewCheckoutHandler(deps.Checkout)
	authed.GET("/checkout/preview", checkoutHandler.Preview)
	authed.POST("/checkout", checkoutRateLimitMiddleware(deps.Limiter), checkoutHandler.Checkout)

	purchaseHandler := handlers.NewPurchaseHandler(deps.DB, deps.Evaluator, deps.Audit)
	authed.GET("/purchases", purchaseHandler.List)

	usageHandler := handlers.NewUsageHandler(deps.DB, deps.Evaluator, deps.Audit)
	authed.POST("/usage", usageHandler.Report)
}

// UserAuthMiddleware validates user JWTs and loads the caller into the context.
func UserAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
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

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).Select("id", "username", "role", "active").
			Where("id = ?", claims.UserID).Take(&user).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set(handlers.ContextUserID, user.ID)
		c.Set(handlers.ContextUserRole, user.Role)
		c.Set("username", user.Username)
		c.Next()
	}
}

// checkoutRateLimitMiddleware throttles checkout attempts per user.
func checkoutRateLimitMiddleware(limiter *ratelimit.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy := limiter.Policy()
		if !policy.Enabled() {
			c.Next()
			return
		}
		rawID, _ := c.Get(handlers.ContextUserID)
		userID, _ := rawID.(uint64)
		key := ratelimit.CheckoutKey(userID)
		if key == "" {
			c.Next()
			return
		}
		result, errAllow := limiter.Allow(c.Request.Context(), key)
		if errAllow != nil {
			log.WithError(errAllow).Warn("front: checkout rate limit check failed")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(time.Until(result.Reset).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many checkout attempts"})
			return
		}
		c.Next()
	}
}
