// Package catalog reads API products and their monetization plans.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dbutil "github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrProductNotFound indicates no product exists for the id.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrPlanNotFound indicates no plan exists for the id.
	ErrPlanNotFound = errors.New("catalog: plan not found")
)

// Reader resolves products and plans by id.
type Reader interface {
	GetProduct(ctx context.Context, id uint64) (models.APIProduct, error)
	GetPlan(ctx context.Context, id uint64) (models.MonetizationPlan, error)
}

// GormReader reads catalog rows through GORM.
type GormReader struct {
	db *gorm.DB
}

// NewReader constructs a GormReader. Pass a transaction handle to read inside it.
func NewReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

// GetProduct loads a product by id.
func (r *GormReader) GetProduct(ctx context.Context, id uint64) (models.APIProduct, error) {
	var product models.APIProduct
	if errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.APIProduct{}, ErrProductNotFound
		}
		return models.APIProduct{}, fmt.Errorf("catalog: get product %d: %w", id, errFind)
	}
	return product, nil
}

// GetPlan loads a plan by id.
func (r *GormReader) GetPlan(ctx context.Context, id uint64) (models.MonetizationPlan, error) {
	var plan models.MonetizationPlan
	if errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&plan).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.MonetizationPlan{}, ErrPlanNotFound
		}
		return models.MonetizationPlan{}, fmt.Errorf("catalog: get plan %d: %w", id, errFind)
	}
	return plan, nil
}

// PlansForProduct lists a product's plans, cheapest first.
func (r *GormReader) PlansForProduct(ctx context.Context, productID uint64) ([]models.MonetizationPlan, error) {
	var plans []models.MonetizationPlan
	if errFind := r.db.WithContext(ctx).
		Where("api_product_id = ?", productID).
		Order("price_cents ASC, id ASC").
		Find(&plans).Error; errFind != nil {
		return nil, fmt.Errorf("catalog: list plans: %w", errFind)
	}
	return plans, nil
}

// CheapestPlan returns the lowest priced plan of a product.
func (r *GormReader) CheapestPlan(ctx context.Context, productID uint64) (models.MonetizationPlan, error) {
	var plan models.MonetizationPlan
	if errFind := r.db.WithContext(ctx).
		Where("api_product_id = ?", productID).
		Order("price_cents ASC, id ASC").
		Take(&plan).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.MonetizationPlan{}, ErrPlanNotFound
		}
		return models.MonetizationPlan{}, fmt.Errorf("catalog: cheapest plan: %w", errFind)
	}
	return plan, nil
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Query     string
	Type      string
	CreatorID uint64
	Status    models.ProductStatus // Empty means any status.
	Page      int
	PerPage   int
}

// ListProducts returns a page of products with their plans and the total match count.
func (r *GormReader) ListProducts(ctx context.Context, filter ProductFilter) ([]models.APIProduct, int64, error) {
	page, perPage := NormalizePage(filter.Page, filter.PerPage)

	q := r.db.WithContext(ctx).Model(&models.APIProduct{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CreatorID != 0 {
		q = q.Where("creator_id = ?", filter.CreatorID)
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		clause, args := dbutil.SearchClause(r.db, term, "name", "description")
		q = q.Where(clause, args...)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", errCount)
	}

	var products []models.APIProduct
	if errFind := q.
		Preload("Plans", func(tx *gorm.DB) *gorm.DB { return tx.Order("price_cents ASC, id ASC") }).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&products).Error; errFind != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", errFind)
	}
	return products, total, nil
}

// Pagination defaults shared by listing endpoints.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// NormalizePage clamps pagination inputs to the listing defaults.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
