package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Evaluate returns the status a receipt should have given its consumed requests at now.
// Terminal statuses are returned unchanged.
func Evaluate(receipt models.SalesReceipt, usageSum int64, now time.Time) models.ReceiptStatus {
	if receipt.Status != models.ReceiptStatusActive {
		return receipt.Status
	}
	switch KindOf(receipt) {
	case KindWindow:
		if now.After(*receipt.PeriodEnd) {
			return models.ReceiptStatusExpired
		}
	case KindQuota:
		if usageSum >= *receipt.CountOfRequest {
			return models.ReceiptStatusExpired
		}
	case KindUnconditional:
	}
	return models.ReceiptStatusActive
}

// IsActive reports whether a receipt still grants access at now.
func IsActive(receipt models.SalesReceipt, usageSum int64, now time.Time) bool {
	return Evaluate(receipt, usageSum, now) == models.ReceiptStatusActive
}

// Remaining returns the unused quota of a quota-bound receipt, or nil.
func Remaining(receipt models.SalesReceipt, usageSum int64) *int64 {
	if !receipt.HasQuota() {
		return nil
	}
	left := *receipt.CountOfRequest - usageSum
	if left < 0 {
		left = 0
	}
	return &left
}

// UsageSource sums consumed requests per receipt.
type UsageSource interface {
	UsageSum(ctx context.Context, receiptID uint64) (int64, error)
	UsageSums(ctx context.Context, receiptIDs []uint64) (map[uint64]int64, error)
}

// Evaluator applies Evaluate to stored receipts and persists active to expired transitions.
type Evaluator struct {
	db    *gorm.DB
	usage UsageSource
	nowFn func() time.Time
}

// NewEvaluator constructs an Evaluator. A nil nowFn uses time.Now.
func NewEvaluator(db *gorm.DB, usage UsageSource, nowFn func() time.Time) *Evaluator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Evaluator{db: db, usage: usage, nowFn: nowFn}
}

// Now returns the evaluator clock reading in UTC.
func (e *Evaluator) Now() time.Time { return e.nowFn().UTC() }

// Reconcile evaluates one receipt and stores the expired status when it lapsed.
// It returns the receipt with its current status and the consumed request sum.
func (e *Evaluator) Reconcile(ctx context.Context, receipt models.SalesReceipt) (models.SalesReceipt, int64, error) {
	var usageSum int64
	if receipt.HasQuota() {
		sum, errSum := e.usage.UsageSum(ctx, receipt.ID)
		if errSum != nil {
			return receipt, 0, fmt.Errorf("entitlement: usage sum: %w", errSum)
		}
		usageSum = sum
	}
	updated, errApply := e.apply(ctx, receipt, usageSum)
	return updated, usageSum, errApply
}

// ReconcileAll evaluates receipts with a single grouped usage query.
// The returned sums are keyed by receipt id.
func (e *Evaluator) ReconcileAll(ctx context.Context, receipts []models.SalesReceipt) ([]models.SalesReceipt, map[uint64]int64, error) {
	ids := make([]uint64, 0, len(receipts))
	for _, receipt := range receipts {
		if receipt.HasQuota() {
			ids = append(ids, receipt.ID)
		}
	}
	sums := map[uint64]int64{}
	if len(ids) > 0 {
		loaded, errSums := e.usage.UsageSums(ctx, ids)
		if errSums != nil {
			return receipts, nil, fmt.Errorf("entitlement: usage sums: %w", errSums)
		}
		sums = loaded
	}

	out := make([]models.SalesReceipt, 0, len(receipts))
	for _, receipt := range receipts {
		updated, errApply := e.apply(ctx, receipt, sums[receipt.ID])
		if errApply != nil {
			return receipts, sums, errApply
		}
		out = append(out, updated)
	}
	return out, sums, nil
}

// apply persists an active to expired transition. The write is conditional so
// concurrent cancels and repeated evaluations never regress a terminal status.
func (e *Evaluator) apply(ctx context.Context, receipt models.SalesReceipt, usageSum int64) (models.SalesReceipt, error) {
	verdict := Evaluate(receipt, usageSum, e.Now())
	if receipt.Status != models.ReceiptStatusActive || verdict == models.ReceiptStatusActive {
		return receipt, nil
	}

	res := e.db.WithContext(ctx).
		Model(&models.SalesReceipt{}).
		Where("id = ? AND status = ?", receipt.ID, models.ReceiptStatusActive).
		UpdateColumn("status", models.ReceiptStatusExpired)
	if res.Error != nil {
		return receipt, fmt.Errorf("entitlement: expire receipt %d: %w", receipt.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.WithFields(log.Fields{"receipt_id": receipt.ID, "customer_id": receipt.CustomerID}).Debug("entitlement: receipt expired")
		receipt.Status = models.ReceiptStatusExpired
		return receipt, nil
	}

	var current models.SalesReceipt
	if errFind := e.db.WithContext(ctx).Select("status").Where("id = ?", receipt.ID).Take(&current).Error; errFind != nil {
		return receipt, fmt.Errorf("entitlement: reload receipt %d: %w", receipt.ID, errFind)
	}
	receipt.Status = current.Status
	return receipt, nil
}
