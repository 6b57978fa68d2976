package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/auditlog"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UsageHandler lets sellers report consumed requests against receipts.
type UsageHandler struct {
	db        *gorm.DB
	evaluator *entitlement.Evaluator
	audit     *auditlog.Writer
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB, evaluator *entitlement.Evaluator, audit *auditlog.Writer) *UsageHandler {
	return &UsageHandler{db: db, evaluator: evaluator, audit: audit}
}

// reportUsageRequest defines the usage report body.
type reportUsageRequest struct {
	SalesReceiptID uint64 `json:"sales_receipt_id"`
	Count          int64  `json:"count"`
}

// Report appends an api_usage entry and returns the receipt's updated state.
func (h *UsageHandler) Report(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body reportUsageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.SalesReceiptID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sales_receipt_id is required"})
		return
	}
	if body.Count <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "count must be positive"})
		return
	}
	ctx := c.Request.Context()

	var receipt models.SalesReceipt
	if errFind := h.db.WithContext(ctx).Where("id = ?", body.SalesReceiptID).Take(&receipt).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sales receipt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query sales receipt failed"})
		return
	}
	if receipt.SellerID != userID && getUserRole(c) != models.UserRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the seller can report usage"})
		return
	}

	current, _, errReconcile := h.evaluator.Reconcile(ctx, receipt)
	if errReconcile != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile sales receipt failed"})
		return
	}
	if current.Status != models.ReceiptStatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "sales receipt is not active", "status": current.Status})
		return
	}

	entry, errRecord := h.audit.RecordUsage(ctx, nil, current, body.Count)
	if errRecord != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record usage failed"})
		return
	}
	updated, usageSum, errAfter := h.evaluator.Reconcile(ctx, current)
	if errAfter != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile sales receipt failed"})
		return
	}
	log.WithFields(log.Fields{
		"receipt_id": updated.ID,
		"count":      body.Count,
		"status":     updated.Status,
	}).Debug("front: usage reported")

	c.JSON(http.StatusCreated, gin.H{
		"usage_log_id":       entry.ID,
		"sales_receipt_id":   updated.ID,
		"status":             updated.Status,
		"is_active":          entitlement.IsActive(updated, usageSum, h.evaluator.Now()),
		"used_requests":      usageSum,
		"remaining_requests": entitlement.Remaining(updated, usageSum),
	})
}
