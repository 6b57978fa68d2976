package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/config"
	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// ErrInitCompleted signals that initialization finished and the main server should start.
var ErrInitCompleted = errors.New("init completed")

// AdminSetup is the first admin account submitted during setup.
type AdminSetup struct {
	AdminUsername string `json:"admin_username" binding:"required"`
	AdminPassword string `json:"admin_password" binding:"required,min=6"`
}

// InitRequest is the setup form when no config file exists yet.
type InitRequest struct {
	DatabaseSpec
	AdminSetup
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	_, errStat := os.Stat(configPath)
	return !errors.Is(errStat, os.ErrNotExist)
}

// TestDatabaseConnection opens the DSN and pings it once.
func TestDatabaseConnection(ctx context.Context, dsn string) error {
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return fmt.Errorf("failed to connect to database: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return fmt.Errorf("failed to get sql db: %w", errDB)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.PingContext(ctx)
}

// generatedConfig is the config file written by the setup flow.
type generatedConfig struct {
	Port                int    `yaml:"port"`
	DatabaseDSN         string `yaml:"database-dsn"`
	LogLevel            string `yaml:"log-level"`
	ExpirySweepInterval string `yaml:"expiry-sweep-interval"`
	JWT                 struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"`
	} `yaml:"jwt"`
	Checkout struct {
		RateLimit  int    `yaml:"rate-limit"`
		RateWindow string `yaml:"rate-window"`
	} `yaml:"checkout"`
}

// WriteConfigFile writes the initial config file with a fresh JWT secret.
func WriteConfigFile(configPath string, dsn string, port int) error {
	secret, errSecret := security.GenerateRandomString(32)
	if errSecret != nil {
		return fmt.Errorf("generate jwt secret: %w", errSecret)
	}
	var cfg generatedConfig
	cfg.Port = port
	cfg.DatabaseDSN = dsn
	cfg.LogLevel = config.DefaultLogLevel
	cfg.ExpirySweepInterval = "10m"
	cfg.JWT.Secret = secret
	cfg.JWT.Expiry = "720h"
	cfg.Checkout.RateLimit = 5
	cfg.Checkout.RateWindow = config.DefaultRateWindow.String()

	data, errMarshal := yaml.Marshal(cfg)
	if errMarshal != nil {
		return fmt.Errorf("marshal config: %w", errMarshal)
	}
	if errMkdir := os.MkdirAll(filepath.Dir(configPath), 0o755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0o600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// CreateAdminUser opens the database, migrates it and creates the first admin account.
func CreateAdminUser(dsn string, username, password string) error {
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return fmt.Errorf("open database: %w", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, username, password)
}

// CreateAdminUserWithConn creates a user with the admin role.
func CreateAdminUserWithConn(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("create admin: empty username")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.User{
		Username:  username,
		Name:      username,
		Email:     strings.ToLower(username) + "@users.local",
		Password:  hashedPassword,
		Role:      models.UserRoleAdmin,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}
	log.WithFields(log.Fields{"admin_id": admin.ID, "username": admin.Username}).Info("admin account created")
	return nil
}

// bindAdminSetup binds and trims an admin setup payload, writing a 400 on failure.
func bindAdminSetup(c *gin.Context, dst any, admin *AdminSetup) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Admin username and a password of at least 6 characters are required"})
		return false
	}
	admin.AdminUsername = strings.TrimSpace(admin.AdminUsername)
	if admin.AdminUsername == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Admin username is required"})
		return false
	}
	return true
}

// initSetup serves the setup API while no config file exists.
type initSetup struct {
	configPath string
	port       int
	done       chan struct{}
}

// status reports whether a config file has been written.
func (s *initSetup) status(c *gin.Context) {
	c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(s.configPath)})
}

// setup validates the database, writes the config file and creates the admin.
// The config file is removed again when the admin cannot be created.
func (s *initSetup) setup(c *gin.Context) {
	if ConfigExists(s.configPath) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
		return
	}
	var req InitRequest
	if !bindAdminSetup(c, &req, &req.AdminSetup) {
		return
	}
	dsn, errBuild := BuildDSN(req.DatabaseSpec)
	if errBuild != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
		return
	}
	if errTest := TestDatabaseConnection(c.Request.Context(), dsn); errTest != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Database connection failed: %v", errTest)})
		return
	}
	if errWrite := WriteConfigFile(s.configPath, dsn, s.port); errWrite != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write config: %v", errWrite)})
		return
	}
	if errAdmin := CreateAdminUser(dsn, req.AdminUsername, req.AdminPassword); errAdmin != nil {
		if errRemove := os.Remove(s.configPath); errRemove != nil {
			log.Errorf("remove config file error: %v", errRemove)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// newInitEngine builds the setup-only router.
func newInitEngine(setup *initSetup) *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())
	engine.GET("/v0/init/status", setup.status)
	engine.POST("/v0/init/setup", setup.setup)
	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(setup.configPath) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System initializing, please retry shortly"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System not initialized", "setup": "/v0/init/setup"})
	})
	return engine
}

// RunInitServer serves the setup API until setup succeeds or ctx is done.
// It returns ErrInitCompleted after a successful setup.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	setup := &initSetup{
		configPath: config.ResolveConfigPath(cfg.ConfigPath),
		port:       port,
		done:       make(chan struct{}),
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newInitEngine(setup),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-setup.done:
			// Let the setup response flush before the listener closes.
			time.Sleep(500 * time.Millisecond)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting init server on %s (config not found at %s)", srv.Addr, setup.configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	select {
	case <-setup.done:
		return ErrInitCompleted
	default:
		return nil
	}
}
