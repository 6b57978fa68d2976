package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIMarketplace/internal/catalog"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// reconcileBatchSize bounds how many active receipts are reconciled per query.
const reconcileBatchSize = 200

// PurchaseHandler lists the caller's receipts with live entitlement state.
type PurchaseHandler struct {
	db        *gorm.DB
	evaluator *entitlement.Evaluator
	usage     entitlement.UsageSource
}

// NewPurchaseHandler constructs a PurchaseHandler.
func NewPurchaseHandler(db *gorm.DB, evaluator *entitlement.Evaluator, usage entitlement.UsageSource) *PurchaseHandler {
	return &PurchaseHandler{db: db, evaluator: evaluator, usage: usage}
}

// List returns a page of the caller's receipts, newest first.
// Active receipts matching the non-status filters are reconciled first so status filters see current state.
func (h *PurchaseHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()

	statusQ := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if statusQ != "" && statusQ != "all" && !models.ReceiptStatus(statusQ).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	var apiID uint64
	if raw := strings.TrimSpace(c.Query("api_id")); raw != "" {
		parsed, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api_id"})
			return
		}
		apiID = parsed
	}
	dateFrom, _, errFrom := parseDate(c.Query("date_from"))
	if errFrom != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
		return
	}
	dateTo, dayOnly, errTo := parseDate(c.Query("date_to"))
	if errTo != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
		return
	}
	if dayOnly {
		dateTo = dateTo.AddDate(0, 0, 1)
	}
	page, perPage := catalog.NormalizePage(queryInt(c, "page", 1), queryInt(c, "per_page", catalog.DefaultPerPage))

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("customer_id = ?", userID)
		if apiID != 0 {
			q = q.Where("api_product_id = ?", apiID)
		}
		if !dateFrom.IsZero() {
			q = q.Where("created_at >= ?", dateFrom)
		}
		if !dateTo.IsZero() {
			if dayOnly {
				q = q.Where("created_at < ?", dateTo)
			} else {
				q = q.Where("created_at <= ?", dateTo)
			}
		}
		return q
	}

	if errReconcile := h.reconcileActive(ctx, scope); errReconcile != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile purchases failed"})
		return
	}

	q := scope(h.db.WithContext(ctx).Model(&models.SalesReceipt{}))
	if statusQ != "" && statusQ != "all" {
		q = q.Where("status = ?", statusQ)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count purchases failed"})
		return
	}
	var rows []models.SalesReceipt
	if errFind := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list purchases failed"})
		return
	}

	quotaIDs := make([]uint64, 0, len(rows))
	productIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		if row.HasQuota() {
			quotaIDs = append(quotaIDs, row.ID)
		}
		productIDs = append(productIDs, row.APIProductID)
	}
	sums, errSums := h.usage.UsageSums(ctx, quotaIDs)
	if errSums != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load usage failed"})
		return
	}
	names, errNames := productNames(h.db.WithContext(ctx), productIDs)
	if errNames != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load apis failed"})
		return
	}

	now := h.evaluator.Now()
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatReceipt(row, sums[row.ID], names[row.APIProductID], now))
	}
	c.JSON(http.StatusOK, gin.H{
		"sales_receipts": out,
		"total":          total,
		"page":           page,
		"per_page":       perPage,
	})
}

// reconcileActive settles the active receipts matching scope in id-ordered batches.
func (h *PurchaseHandler) reconcileActive(ctx context.Context, scope func(*gorm.DB) *gorm.DB) error {
	var lastID uint64
	for {
		var batch []models.SalesReceipt
		if errFind := scope(h.db.WithContext(ctx)).
			Where("status = ? AND id > ?", models.ReceiptStatusActive, lastID).
			Order("id ASC").
			Limit(reconcileBatchSize).
			Find(&batch).Error; errFind != nil {
			return errFind
		}
		if len(batch) == 0 {
			return nil
		}
		if _, _, errReconcile := h.evaluator.ReconcileAll(ctx, batch); errReconcile != nil {
			return errReconcile
		}
		if len(batch) < reconcileBatchSize {
			return nil
		}
		lastID = batch[len(batch)-1].ID
	}
}

// productNames maps product ids to names, falling back to nothing for deleted products.
func productNames(conn *gorm.DB, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.APIProduct
	if errFind := conn.Select("id", "name").Where("id IN ?", ids).Find(&products).Error; errFind != nil {
		return nil, errFind
	}
	for _, product := range products {
		out[product.ID] = product.Name
	}
	return out, nil
}

// receiptSnapshot is the subset of the stored plan snapshot shown to callers.
type receiptSnapshot struct {
	ProductName string              `json:"api_name"`
	Category    models.PlanCategory `json:"category"`
	Unit        models.PaymentUnit  `json:"unit"`
}

// formatReceipt converts a receipt to a response payload with its live state at now.
func formatReceipt(receipt models.SalesReceipt, usageSum int64, productName string, now time.Time) gin.H {
	var snapshot receiptSnapshot
	if len(receipt.PlanSnapshot) > 0 {
		if errUnmarshal := json.Unmarshal(receipt.PlanSnapshot, &snapshot); errUnmarshal != nil {
			log.WithError(errUnmarshal).WithField("sales_receipt_id", receipt.ID).Warn("purchases: unreadable plan snapshot")
		}
	}
	if productName == "" {
		productName = snapshot.ProductName
	}
	out := gin.H{
		"id":                receipt.ID,
		"seller_id":         receipt.SellerID,
		"customer_id":       receipt.CustomerID,
		"api_id":            receipt.APIProductID,
		"api_name":          productName,
		"plan_id":           receipt.PlanID,
		"category":          snapshot.Category,
		"unit":              snapshot.Unit,
		"kind":              entitlement.KindOf(receipt).String(),
		"unit_price":        money.FromCents(receipt.UnitPriceCents),
		"quantity":          receipt.Quantity,
		"total_price":       money.FromCents(receipt.TotalPriceCents),
		"period_begin":      receipt.PeriodBegin,
		"period_end":        receipt.PeriodEnd,
		"count_of_request":  receipt.CountOfRequest,
		"status":            receipt.Status,
		"is_active":         entitlement.IsActive(receipt, usageSum, now),
		"payment_method":    receipt.PaymentMethod,
		"payment_reference": receipt.PaymentReference,
		"memo":              receipt.Memo,
		"created_at":        receipt.CreatedAt,
	}
	if receipt.HasQuota() {
		out["used_requests"] = usageSum
		out["remaining_requests"] = entitlement.Remaining(receipt, usageSum)
	}
	return out
}
