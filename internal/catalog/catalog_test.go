package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "catalog-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedProduct(t *testing.T, conn *gorm.DB, name string, status models.ProductStatus, prices ...int64) models.APIProduct {
	t.Helper()
	product := models.APIProduct{CreatorID: 7, Name: name, Type: "REST", Status: status}
	if errCreate := conn.Create(&product).Error; errCreate != nil {
		t.Fatalf("create product: %v", errCreate)
	}
	for _, price := range prices {
		plan := models.MonetizationPlan{
			APIProductID: product.ID,
			Category:     models.PlanCategorySubscription,
			Unit:         models.PaymentUnitMonth,
			PriceCents:   price,
		}
		if errCreate := conn.Create(&plan).Error; errCreate != nil {
			t.Fatalf("create plan: %v", errCreate)
		}
	}
	return product
}

func TestGetProductAndPlan(t *testing.T) {
	conn := openTestDB(t)
	reader := NewReader(conn)
	product := seedProduct(t, conn, "Weather", models.ProductStatusActive, 900, 500)

	got, err := reader.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != "Weather" || got.Status != models.ProductStatusActive {
		t.Fatalf("unexpected product: %+v", got)
	}

	cheapest, err := reader.CheapestPlan(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("CheapestPlan: %v", err)
	}
	if cheapest.PriceCents != 500 {
		t.Fatalf("expected cheapest plan price 500, got %d", cheapest.PriceCents)
	}

	plan, err := reader.GetPlan(context.Background(), cheapest.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if plan.APIProductID != product.ID {
		t.Fatalf("expected plan product %d, got %d", product.ID, plan.APIProductID)
	}
}

func TestGetMissing(t *testing.T) {
	conn := openTestDB(t)
	reader := NewReader(conn)

	if _, err := reader.GetProduct(context.Background(), 404); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := reader.GetPlan(context.Background(), 404); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if _, err := reader.CheapestPlan(context.Background(), 404); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestListProducts_FiltersActiveAndSearch(t *testing.T) {
	conn := openTestDB(t)
	reader := NewReader(conn)
	seedProduct(t, conn, "Weather Forecast", models.ProductStatusActive, 100)
	seedProduct(t, conn, "Geo Coder", models.ProductStatusActive, 200, 300)
	seedProduct(t, conn, "Weather Draft", models.ProductStatusDraft, 100)

	products, total, err := reader.ListProducts(context.Background(), ProductFilter{
		Status: models.ProductStatusActive,
		Query:  "weather",
	})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if total != 1 || len(products) != 1 {
		t.Fatalf("expected 1 product, got total=%d len=%d", total, len(products))
	}
	if products[0].Name != "Weather Forecast" {
		t.Fatalf("unexpected product %q", products[0].Name)
	}

	all, total, err := reader.ListProducts(context.Background(), ProductFilter{Status: models.ProductStatusActive})
	if err != nil {
		t.Fatalf("ListProducts all: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 active products, got total=%d len=%d", total, len(all))
	}
	for _, product := range all {
		if product.Name == "Geo Coder" && len(product.Plans) != 2 {
			t.Fatalf("expected 2 preloaded plans, got %d", len(product.Plans))
		}
	}
}

func TestNormalizePage(t *testing.T) {
	if page, perPage := NormalizePage(0, 0); page != 1 || perPage != DefaultPerPage {
		t.Fatalf("unexpected defaults page=%d perPage=%d", page, perPage)
	}
	if _, perPage := NormalizePage(2, 1000); perPage != MaxPerPage {
		t.Fatalf("expected perPage clamp to %d, got %d", MaxPerPage, perPage)
	}
}
