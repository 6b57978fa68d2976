package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/catalog"
	dbutil "github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReceiptHandler lists and cancels sales receipts.
type ReceiptHandler struct {
	db        *gorm.DB
	evaluator *entitlement.Evaluator
}

// NewReceiptHandler constructs a ReceiptHandler.
func NewReceiptHandler(db *gorm.DB, evaluator *entitlement.Evaluator) *ReceiptHandler {
	return &ReceiptHandler{db: db, evaluator: evaluator}
}

// List returns receipts across all users with optional filters.
func (h *ReceiptHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.SalesReceipt{})
	for _, filter := range []struct{ param, column string }{
		{"customer_id", "customer_id"},
		{"seller_id", "seller_id"},
		{"api_id", "api_product_id"},
		{"plan_id", "plan_id"},
	} {
		raw := strings.TrimSpace(c.Query(filter.param))
		if raw == "" {
			continue
		}
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + filter.param})
			return
		}
		q = q.Where(filter.column+" = ?", id)
	}
	if status := models.ReceiptStatus(strings.TrimSpace(c.Query("status"))); status != "" && status != "all" {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		q = q.Where("status = ?", status)
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		q = q.Where(dbutil.JSONTextExpr(h.db, "plan_snapshot", "category")+" = ?", category)
	}
	page, perPage := catalog.NormalizePage(queryInt(c, "page", 1), queryInt(c, "per_page", catalog.DefaultPerPage))

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count receipts failed"})
		return
	}
	var rows []models.SalesReceipt
	if errFind := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list receipts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatReceipt(row))
	}
	c.JSON(http.StatusOK, gin.H{"sales_receipts": out, "total": total, "page": page, "per_page": perPage})
}

// Cancel moves an active receipt to canceled. Lapsed receipts are expired first and cannot be canceled.
func (h *ReceiptHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ctx := c.Request.Context()

	var receipt models.SalesReceipt
	if errFind := h.db.WithContext(ctx).Where("id = ?", id).Take(&receipt).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	current, _, errReconcile := h.evaluator.Reconcile(ctx, receipt)
	if errReconcile != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile receipt failed"})
		return
	}
	if current.Status != models.ReceiptStatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "receipt is not active", "status": current.Status})
		return
	}

	res := h.db.WithContext(ctx).
		Model(&models.SalesReceipt{}).
		Where("id = ? AND status = ?", id, models.ReceiptStatusActive).
		Update("status", models.ReceiptStatusCanceled)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel receipt failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "receipt is not active"})
		return
	}
	log.WithFields(log.Fields{"receipt_id": id, "admin_id": getAdminID(c)}).Info("admin: receipt canceled")
	current.Status = models.ReceiptStatusCanceled
	c.JSON(http.StatusOK, formatReceipt(current))
}

// formatReceipt converts a receipt to a response payload.
func formatReceipt(receipt models.SalesReceipt) gin.H {
	return gin.H{
		"id":                receipt.ID,
		"seller_id":         receipt.SellerID,
		"customer_id":       receipt.CustomerID,
		"api_id":            receipt.APIProductID,
		"plan_id":           receipt.PlanID,
		"kind":              entitlement.KindOf(receipt).String(),
		"unit_price":        money.FromCents(receipt.UnitPriceCents),
		"quantity":          receipt.Quantity,
		"total_price":       money.FromCents(receipt.TotalPriceCents),
		"period_begin":      receipt.PeriodBegin,
		"period_end":        receipt.PeriodEnd,
		"count_of_request":  receipt.CountOfRequest,
		"status":            receipt.Status,
		"payment_method":    receipt.PaymentMethod,
		"payment_reference": receipt.PaymentReference,
		"memo":              receipt.Memo,
		"plan_snapshot":     receipt.PlanSnapshot,
		"created_at":        receipt.CreatedAt,
		"updated_at":        receipt.UpdatedAt,
	}
}
