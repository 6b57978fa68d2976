package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/checkout"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/payment"
	log "github.com/sirupsen/logrus"
)

// CheckoutHandler turns the caller's cart into receipts.
type CheckoutHandler struct {
	service *checkout.Service
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(service *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

// Checkout pays for the cart and returns the created receipts.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body payment.Request
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, errCheckout := h.service.Checkout(c.Request.Context(), userID, body)
	if errCheckout != nil {
		writeCheckoutError(c, userID, errCheckout)
		return
	}

	now := h.service.Now()
	receipts := make([]gin.H, 0, len(result.Receipts))
	for _, receipt := range result.Receipts {
		receipts = append(receipts, formatReceipt(receipt, 0, "", now))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":        "Checkout completed",
		"order_id":       result.OrderID,
		"total":          result.Total,
		"sales_receipts": receipts,
	})
}

// Preview shows what checking out would grant without writing anything.
func (h *CheckoutHandler) Preview(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	preview, errPreview := h.service.Preview(c.Request.Context(), userID)
	if errPreview != nil {
		writeCheckoutError(c, userID, errPreview)
		return
	}
	lines := make([]gin.H, 0, len(preview.Lines))
	for _, line := range preview.Lines {
		lines = append(lines, gin.H{
			"line_id":          line.Item.ID,
			"api_id":           line.Product.ID,
			"api_name":         line.Product.Name,
			"plan_id":          line.Plan.ID,
			"category":         line.Params.Category,
			"kind":             line.Params.Kind.String(),
			"quantity":         line.Item.Quantity,
			"unit_price":       line.Params.UnitPrice,
			"total_price":      line.Params.Total,
			"period_begin":     line.Params.PeriodBegin,
			"period_end":       line.Params.PeriodEnd,
			"count_of_request": line.Params.CountOfRequest,
		})
	}
	unavailable := preview.Unavailable
	if unavailable == nil {
		unavailable = []checkout.UnavailableItem{}
	}
	c.JSON(http.StatusOK, gin.H{
		"lines":             lines,
		"total":             preview.Total,
		"unavailable_items": unavailable,
	})
}

// writeCheckoutError maps checkout failures to responses.
func writeCheckoutError(c *gin.Context, userID uint64, err error) {
	var validationErr *payment.ValidationError
	var unavailableErr *checkout.ProductUnavailableError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid payment details", "fields": validationErr.Fields})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.As(err, &unavailableErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "some apis are no longer available", "unavailable_items": unavailableErr.Items})
	case errors.Is(err, checkout.ErrInvalidTotal), errors.Is(err, entitlement.ErrAmountOverflow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "order total is too large"})
	case errors.Is(err, payment.ErrDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment declined"})
	case errors.Is(err, entitlement.ErrInvalidPlanCategory):
		log.WithError(err).WithField("user_id", userID).Error("checkout: invalid plan category")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "plan is misconfigured"})
	case errors.Is(err, checkout.ErrPersistence):
		log.WithError(err).WithField("user_id", userID).Error("checkout: persistence failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout failed, please retry", "retryable": true})
	default:
		log.WithError(err).WithField("user_id", userID).Error("checkout: failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout failed"})
	}
}
