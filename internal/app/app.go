package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/router-for-me/APIMarketplace/internal/auditlog"
	"github.com/router-for-me/APIMarketplace/internal/cart"
	"github.com/router-for-me/APIMarketplace/internal/checkout"
	"github.com/router-for-me/APIMarketplace/internal/config"
	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/http/api/admin"
	"github.com/router-for-me/APIMarketplace/internal/http/api/front"
	"github.com/router-for-me/APIMarketplace/internal/ratelimit"
	"github.com/router-for-me/APIMarketplace/internal/security"
	"github.com/router-for-me/APIMarketplace/internal/sweeper"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// requestIDHeader carries the caller supplied or generated request id.
const requestIDHeader = "X-Request-ID"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// ConfigureLogging applies the log level and text formatter used by the server.
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, errParse := log.ParseLevel(strings.TrimSpace(level))
	if errParse != nil {
		log.WithError(errParse).Warnf("unknown log level %q, using %s", level, config.DefaultLogLevel)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// Services bundles the long-lived components shared by routes and workers.
type Services struct {
	DB        *gorm.DB
	DSN       string
	Carts     *cart.Store
	Audit     *auditlog.Writer
	Evaluator *entitlement.Evaluator
	Checkout  *checkout.Service
	Limiter   *ratelimit.Manager
}

// NewServices wires storage, entitlement and checkout components onto conn.
func NewServices(conn *gorm.DB, serverCfg config.ServerConfig, nowFn func() time.Time) *Services {
	if nowFn == nil {
		nowFn = nowUTC
	}
	audit := auditlog.NewWriter(conn, nowFn)
	carts := cart.NewStore(conn)
	return &Services{
		DB:        conn,
		Carts:     carts,
		Audit:     audit,
		Evaluator: entitlement.NewEvaluator(conn, audit, nowFn),
		Checkout:  checkout.NewService(conn, carts, audit, nil, nowFn),
		Limiter:   ratelimit.NewManager(ratelimit.SettingsFromConfig(serverCfg.Checkout), nil, nil),
	}
}

// NewRouter builds the HTTP engine with health, init status, admin and front routes.
func NewRouter(services *Services, jwtCfg config.JWTConfig, initState *atomic.Bool) *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := services.DB.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		spec, errDescribe := DescribeDSN(services.DSN)
		if errDescribe != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			DatabaseSpec
		}{Locked: true, DatabaseSpec: spec})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(services.DB); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req AdminSetup
		if !bindAdminSetup(c, &req, &req) {
			return
		}
		if errAdmin := CreateAdminUserWithConn(services.DB, req.AdminUsername, req.AdminPassword); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})

	admin.RegisterAdminRoutes(engine, services.DB, jwtCfg, services.Evaluator)
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:        services.DB,
		JWT:       jwtCfg,
		Carts:     services.Carts,
		Checkout:  services.Checkout,
		Evaluator: services.Evaluator,
		Audit:     services.Audit,
		Limiter:   services.Limiter,
		NowFn:     nowUTC,
	})

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// RunServer boots the marketplace API server and the expiry sweeper.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	serverCfg, err := config.LoadServerConfig(configPath, defaultPort)
	if err != nil {
		return err
	}
	ConfigureLogging(serverCfg.LogLevel)
	if serverCfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		secret, errSecret := security.GenerateRandomString(32)
		if errSecret != nil {
			return fmt.Errorf("app: generate jwt secret: %w", errSecret)
		}
		log.Warn("jwt secret not configured, using an ephemeral secret; tokens will not survive a restart")
		jwtConfig.Secret = secret
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)
	if !initialized {
		log.Warn("no admin account yet, POST /v0/init/setup to create one")
	}

	services := NewServices(conn, serverCfg, nowUTC)
	services.DSN = dsn
	defer services.Limiter.Close()
	engine := NewRouter(services, jwtConfig, &initState)

	if expirySweeper := sweeper.New(conn, services.Evaluator, serverCfg.ExpirySweepInterval); expirySweeper != nil {
		expirySweeper.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting marketplace on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
