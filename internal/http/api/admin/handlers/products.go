package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/catalog"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	"gorm.io/gorm"
)

// ContextAdminID is the context key holding the authenticated admin id.
const ContextAdminID = "adminID"

// ProductHandler manages admin endpoints for API products.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// createProductRequest defines the request body for product creation.
type createProductRequest struct {
	CreatorID   uint64 `json:"creator_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Protocol    string `json:"protocol"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Create creates a product owned by creator_id, or by the caller when omitted.
func (h *ProductHandler) Create(c *gin.Context) {
	var body createProductRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	status := models.ProductStatus(strings.TrimSpace(body.Status))
	if status == "" {
		status = models.ProductStatusDraft
	}
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	creatorID := body.CreatorID
	if creatorID == 0 {
		creatorID = getAdminID(c)
	}
	var creator models.User
	if errFind := h.db.WithContext(c.Request.Context()).Select("id").Where("id = ?", creatorID).Take(&creator).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "creator not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query creator failed"})
		return
	}

	product := models.APIProduct{
		CreatorID:   creatorID,
		Name:        name,
		Type:        strings.TrimSpace(body.Type),
		Protocol:    strings.TrimSpace(body.Protocol),
		Version:     strings.TrimSpace(body.Version),
		Description: body.Description,
		Status:      status,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Omit("Creator").Create(&product).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create product failed"})
		return
	}
	c.JSON(http.StatusCreated, formatProduct(product))
}

// List returns products of any status with optional filters.
func (h *ProductHandler) List(c *gin.Context) {
	filter := catalog.ProductFilter{
		Query:  strings.TrimSpace(c.Query("q")),
		Type:   strings.TrimSpace(c.Query("type")),
		Status: models.ProductStatus(strings.TrimSpace(c.Query("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if raw := strings.TrimSpace(c.Query("creator_id")); raw != "" {
		if id, errParse := strconv.ParseUint(raw, 10, 64); errParse == nil {
			filter.CreatorID = id
		}
	}
	filter.Page, filter.PerPage = catalog.NormalizePage(queryInt(c, "page", 1), queryInt(c, "per_page", catalog.DefaultPerPage))

	products, total, errList := catalog.NewReader(h.db).ListProducts(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list products failed"})
		return
	}
	out := make([]gin.H, 0, len(products))
	for _, product := range products {
		out = append(out, formatProduct(product))
	}
	c.JSON(http.StatusOK, gin.H{"products": out, "total": total, "page": filter.Page, "per_page": filter.PerPage})
}

// Get returns a product with its plans.
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	reader := catalog.NewReader(h.db)
	product, errFind := reader.GetProduct(c.Request.Context(), id)
	if errFind != nil {
		if errors.Is(errFind, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	plans, errPlans := reader.PlansForProduct(c.Request.Context(), id)
	if errPlans != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	product.Plans = plans
	c.JSON(http.StatusOK, formatProduct(product))
}

// setStatusRequest defines the request body for status changes.
type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus moves a product between draft, active and disabled.
func (h *ProductHandler) SetStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body setStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := models.ProductStatus(strings.TrimSpace(body.Status))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Model(&models.APIProduct{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update status failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// parseIDParam parses the :id path parameter.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(c *gin.Context, name string, fallback int) int {
	v, errParse := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if errParse != nil {
		return fallback
	}
	return v
}

// getAdminID returns the authenticated admin id.
func getAdminID(c *gin.Context) uint64 {
	raw, _ := c.Get(ContextAdminID)
	id, _ := raw.(uint64)
	return id
}

// formatProduct converts a product to a response payload.
func formatProduct(product models.APIProduct) gin.H {
	plans := make([]gin.H, 0, len(product.Plans))
	for _, plan := range product.Plans {
		plans = append(plans, formatPlan(plan))
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

// formatPlan converts a plan to a response payload.
func formatPlan(plan models.MonetizationPlan) gin.H {
	return gin.H{
		"id":          plan.ID,
		"api_id":      plan.APIProductID,
		"category":    plan.Category,
		"unit":        plan.Unit,
		"price":       money.FromCents(plan.PriceCents),
		"description": plan.Description,
		"created_at":  plan.CreatedAt,
		"updated_at":  plan.UpdatedAt,
	}
}
