package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/cart"
	"github.com/router-for-me/APIMarketplace/internal/catalog"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
)

// CartHandler manages the caller's cart.
type CartHandler struct {
	store *cart.Store
}

// NewCartHandler constructs a CartHandler.
func NewCartHandler(store *cart.Store) *CartHandler {
	return &CartHandler{store: store}
}

// List returns cart lines with subtotals and the cart total.
func (h *CartHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	lines, errLines := h.store.Lines(c.Request.Context(), userID)
	if errLines != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cart failed"})
		return
	}
	total, errTotal := cart.Total(lines)
	if errTotal != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "cart total is too large"})
		return
	}
	out := make([]gin.H, 0, len(lines))
	for _, line := range lines {
		subtotal, _ := line.Subtotal()
		out = append(out, gin.H{
			"id":         line.Item.ID,
			"api_id":     line.Product.ID,
			"api_name":   line.Product.Name,
			"api_status": line.Product.Status,
			"plan":       FormatPlan(line.Plan),
			"quantity":   line.Item.Quantity,
			"subtotal":   subtotal,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": total})
}

// addCartRequest defines the body for adding a line.
type addCartRequest struct {
	ProductID uint64 `json:"api_id"`
	PlanID    uint64 `json:"plan_id"`
	Quantity  int    `json:"quantity"`
}

// Add inserts a line or increments an existing one.
func (h *CartHandler) Add(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body addCartRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.ProductID == 0 && body.PlanID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_id or plan_id is required"})
		return
	}
	item, created, errAdd := h.store.Add(c.Request.Context(), userID, cart.AddInput{
		ProductID: body.ProductID,
		PlanID:    body.PlanID,
		Quantity:  body.Quantity,
	})
	if errAdd != nil {
		writeCartError(c, errAdd)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"id": item.ID, "plan_id": item.PlanID, "quantity": item.Quantity})
}

// updateCartRequest defines the body for changing a line quantity.
type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

// Update sets the quantity of a line.
func (h *CartHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateCartRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	item, errUpdate := h.store.UpdateQuantity(c.Request.Context(), userID, id, body.Quantity)
	if errUpdate != nil {
		writeCartError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "plan_id": item.PlanID, "quantity": item.Quantity})
}

// Remove deletes a line.
func (h *CartHandler) Remove(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errRemove := h.store.Remove(c.Request.Context(), userID, id); errRemove != nil {
		writeCartError(c, errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// Clear deletes every line.
func (h *CartHandler) Clear(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if errClear := h.store.Clear(c.Request.Context(), nil, userID); errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear cart failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cleared", "total": money.Amount(0)})
}

// writeCartError maps cart store errors to responses.
func writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "api not found"})
	case errors.Is(err, catalog.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("quantity must be between 1 and %d", models.MaxCartQuantity)})
	case errors.Is(err, cart.ErrProductNotPurchasable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "api is not available for purchase"})
	case errors.Is(err, cart.ErrPlanMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan does not belong to api"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update cart failed"})
	}
}
