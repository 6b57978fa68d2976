package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/config"
	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/security"
)

func TestCreateAdminUserWithConn_SetsAdminRole(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "marketplace-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if errCreate := CreateAdminUserWithConn(conn, "admin", "password"); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}

	var admin models.User
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if admin.Role != models.UserRoleAdmin {
		t.Fatalf("expected role admin, got %q", admin.Role)
	}
	if !admin.Active {
		t.Fatalf("expected admin to be active")
	}
	if errCheck := security.CheckPassword(admin.Password, "password"); errCheck != nil {
		t.Fatalf("expected stored password to be a hash of the input, got %v", errCheck)
	}
}

func TestInitServer_SetupWritesConfigAndAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	setup := &initSetup{configPath: filepath.Join(dir, "config.yaml"), port: 8400, done: make(chan struct{})}
	engine := newInitEngine(setup)

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/v0/init/setup", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}
	dbPath := filepath.Join(dir, "marketplace.db")

	if code := post(`{"database_type":"sqlite","database_path":"` + dbPath + `","admin_username":"root","admin_password":"123"}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", code)
	}
	if ConfigExists(setup.configPath) {
		t.Fatalf("expected no config after rejected setup")
	}
	if code := post(`{"database_type":"sqlite","database_path":"` + dbPath + `","admin_username":"root","admin_password":"secret1"}`); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	select {
	case <-setup.done:
	default:
		t.Fatalf("expected setup to signal completion")
	}

	dsn, err := config.LoadDatabaseDSN(setup.configPath)
	if err != nil {
		t.Fatalf("LoadDatabaseDSN: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if initialized, errInit := HasAdminInitialized(conn); errInit != nil || !initialized {
		t.Fatalf("expected admin to exist, got %v err=%v", initialized, errInit)
	}
	if jwtCfg, _ := config.LoadJWTConfig(setup.configPath); jwtCfg.Secret == "" {
		t.Fatalf("expected generated jwt secret")
	}

	if code := post(`{"database_type":"sqlite","admin_username":"root2","admin_password":"secret1"}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 once initialized, got %d", code)
	}
}
