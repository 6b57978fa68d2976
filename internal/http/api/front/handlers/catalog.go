package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/catalog"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	"gorm.io/gorm"
)

// CatalogHandler serves the public product listing.
type CatalogHandler struct {
	db *gorm.DB
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

// List returns active products with their plans.
func (h *CatalogHandler) List(c *gin.Context) {
	page, perPage := catalog.NormalizePage(queryInt(c, "page", 1), queryInt(c, "per_page", catalog.DefaultPerPage))
	products, total, errList := catalog.NewReader(h.db).ListProducts(c.Request.Context(), catalog.ProductFilter{
		Query:   strings.TrimSpace(c.Query("q")),
		Type:    strings.TrimSpace(c.Query("type")),
		Status:  models.ProductStatusActive,
		Page:    page,
		PerPage: perPage,
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list apis failed"})
		return
	}
	out := make([]gin.H, 0, len(products))
	for _, product := range products {
		out = append(out, FormatProduct(product))
	}
	c.JSON(http.StatusOK, gin.H{"apis": out, "total": total, "page": page, "per_page": perPage})
}

// Get returns one active product with its plans.
func (h *CatalogHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	reader := catalog.NewReader(h.db)
	product, errFind := reader.GetProduct(c.Request.Context(), id)
	if errors.Is(errFind, catalog.ErrProductNotFound) || (errFind == nil && product.Status != models.ProductStatusActive) {
		c.JSON(http.StatusNotFound, gin.H{"error": "api not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query api failed"})
		return
	}
	plans, errPlans := reader.PlansForProduct(c.Request.Context(), product.ID)
	if errPlans != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	product.Plans = plans
	c.JSON(http.StatusOK, FormatProduct(product))
}

// MoneyTypes lists plan categories and payment units.
func (h *CatalogHandler) MoneyTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories":    models.PlanCategories,
		"payment_units": models.PaymentUnits,
	})
}

// FormatProduct converts a product and its loaded plans to a response payload.
func FormatProduct(product models.APIProduct) gin.H {
	plans := make([]gin.H, 0, len(product.Plans))
	for _, plan := range product.Plans {
		plans = append(plans, FormatPlan(plan))
	}
	return gin.H{
		"id":          product.ID,
		"creator_id":  product.CreatorID,
		"name":        product.Name,
		"type":        product.Type,
		"protocol":    product.Protocol,
		"version":     product.Version,
		"description": product.Description,
		"status":      product.Status,
		"plans":       plans,
		"created_at":  product.CreatedAt,
		"updated_at":  product.UpdatedAt,
	}
}

// FormatPlan converts a plan to a response payload.
func FormatPlan(plan models.MonetizationPlan) gin.H {
	return gin.H{
		"id":          plan.ID,
		"api_id":      plan.APIProductID,
		"category":    plan.Category,
		"unit":        plan.Unit,
		"price":       money.FromCents(plan.PriceCents),
		"description": plan.Description,
	}
}
