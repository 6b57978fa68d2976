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

// PlanHandler manages admin endpoints for monetization plans.
type PlanHandler struct {
	db *gorm.DB
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// createPlanRequest defines the request body for plan creation.
type createPlanRequest struct {
	Category    string `json:"category"`
	Unit        string `json:"unit"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// Create adds a plan to a product.
func (h *PlanHandler) Create(c *gin.Context) {
	productID, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	category := models.PlanCategory(strings.TrimSpace(body.Category))
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}
	unit := models.PaymentUnit(strings.TrimSpace(body.Unit))
	if !unit.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit"})
		return
	}
	price, errPrice := money.Parse(body.Price)
	if errPrice != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	if _, errProduct := catalog.NewReader(h.db).GetProduct(c.Request.Context(), productID); errProduct != nil {
		if errors.Is(errProduct, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query product failed"})
		return
	}

	plan := models.MonetizationPlan{
		APIProductID: productID,
		Category:     category,
		Unit:         unit,
		PriceCents:   price.Cents(),
		Description:  body.Description,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Omit("APIProduct").Create(&plan).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create plan failed"})
		return
	}
	c.JSON(http.StatusCreated, formatPlan(plan))
}

// List returns a product's plans, cheapest first.
func (h *PlanHandler) List(c *gin.Context) {
	productID, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	plans, errList := catalog.NewReader(h.db).PlansForProduct(c.Request.Context(), productID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, formatPlan(plan))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// updatePlanRequest defines the request body for plan updates.
type updatePlanRequest struct {
	Category    *string `json:"category"`
	Unit        *string `json:"unit"`
	Price       *string `json:"price"`
	Description *string `json:"description"`
}

// Update changes a plan. Pricing terms are locked once any receipt references the plan.
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Category != nil {
		category := models.PlanCategory(strings.TrimSpace(*body.Category))
		if !category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
			return
		}
		updates["category"] = category
	}
	if body.Unit != nil {
		unit := models.PaymentUnit(strings.TrimSpace(*body.Unit))
		if !unit.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit"})
			return
		}
		updates["unit"] = unit
	}
	if body.Price != nil {
		price, errPrice := money.Parse(*body.Price)
		if errPrice != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return
		}
		updates["price_cents"] = price.Cents()
	}
	termsChanged := len(updates) > 0
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	errLocked := errors.New("plan terms are locked")
	var updated models.MonetizationPlan
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", id).Take(&updated).Error; errFind != nil {
			return errFind
		}
		if termsChanged {
			var referenced int64
			if errCount := tx.Model(&models.SalesReceipt{}).Where("plan_id = ?", id).Count(&referenced).Error; errCount != nil {
				return errCount
			}
			if referenced > 0 {
				return errLocked
			}
		}
		if errUpdate := tx.Model(&models.MonetizationPlan{}).Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Where("id = ?", id).Take(&updated).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errTx, errLocked):
			c.JSON(http.StatusConflict, gin.H{"error": "plan is referenced by sales receipts; create a new plan instead"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update plan failed"})
		}
		return
	}
	c.JSON(http.StatusOK, formatPlan(updated))
}
