// Package auditlog appends purchase and usage entries to the usage log.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCount indicates a usage report with a non-positive count.
	ErrInvalidCount = errors.New("auditlog: count must be positive")
	// ErrMissingReceipt indicates an entry without a persisted receipt.
	ErrMissingReceipt = errors.New("auditlog: receipt id is required")
)

// Writer appends usage log entries. Entries are never updated or deleted.
type Writer struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewWriter constructs a Writer. A nil nowFn uses time.Now.
func NewWriter(db *gorm.DB, nowFn func() time.Time) *Writer {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Writer{db: db, nowFn: nowFn}
}

// AppendPurchase writes the activation entry for a new receipt inside tx.
func (w *Writer) AppendPurchase(ctx context.Context, tx *gorm.DB, receipt *models.SalesReceipt) (models.UsageLog, error) {
	if receipt == nil || receipt.ID == 0 {
		return models.UsageLog{}, ErrMissingReceipt
	}
	receiptID := receipt.ID
	activation := true
	entry := models.UsageLog{
		Type:            models.UsageLogTypePurchase,
		UserID:          receipt.CustomerID,
		SalesReceiptID:  &receiptID,
		ActivationEvent: &activation,
		CreatedAt:       w.nowFn().UTC(),
	}
	if errCreate := w.conn(tx).WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return models.UsageLog{}, fmt.Errorf("auditlog: append purchase: %w", errCreate)
	}
	return entry, nil
}

// RecordUsage writes an api_usage entry for count consumed requests.
func (w *Writer) RecordUsage(ctx context.Context, tx *gorm.DB, receipt models.SalesReceipt, count int64) (models.UsageLog, error) {
	if receipt.ID == 0 {
		return models.UsageLog{}, ErrMissingReceipt
	}
	if count <= 0 {
		return models.UsageLog{}, ErrInvalidCount
	}
	receiptID := receipt.ID
	entry := models.UsageLog{
		Type:                  models.UsageLogTypeAPIUsage,
		UserID:                receipt.CustomerID,
		SalesReceiptID:        &receiptID,
		CountOfCurrentRequest: &count,
		CreatedAt:             w.nowFn().UTC(),
	}
	if errCreate := w.conn(tx).WithContext(ctx).Create(&entry).Error; errCreate != nil {
		return models.UsageLog{}, fmt.Errorf("auditlog: record usage: %w", errCreate)
	}
	return entry, nil
}

// UsageSum returns the requests consumed against a receipt.
func (w *Writer) UsageSum(ctx context.Context, receiptID uint64) (int64, error) {
	var total int64
	if errSum := w.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Select("COALESCE(SUM(count_of_current_request), 0)").
		Where("sales_receipt_id = ? AND type = ?", receiptID, models.UsageLogTypeAPIUsage).
		Scan(&total).Error; errSum != nil {
		return 0, fmt.Errorf("auditlog: usage sum: %w", errSum)
	}
	return total, nil
}

// UsageSums returns consumed requests for several receipts in one query.
// Receipts without usage are absent from the map.
func (w *Writer) UsageSums(ctx context.Context, receiptIDs []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(receiptIDs))
	if len(receiptIDs) == 0 {
		return out, nil
	}
	// sumRow is the grouped aggregate for one receipt.
	type sumRow struct {
		SalesReceiptID uint64
		Total          int64
	}
	var rows []sumRow
	if errSum := w.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Select("sales_receipt_id, COALESCE(SUM(count_of_current_request), 0) AS total").
		Where("sales_receipt_id IN ? AND type = ?", receiptIDs, models.UsageLogTypeAPIUsage).
		Group("sales_receipt_id").
		Scan(&rows).Error; errSum != nil {
		return nil, fmt.Errorf("auditlog: usage sums: %w", errSum)
	}
	for _, row := range rows {
		out[row.SalesReceiptID] = row.Total
	}
	return out, nil
}

// Entries lists log entries for a receipt, oldest first.
func (w *Writer) Entries(ctx context.Context, receiptID uint64) ([]models.UsageLog, error) {
	var entries []models.UsageLog
	if errFind := w.db.WithContext(ctx).
		Where("sales_receipt_id = ?", receiptID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; errFind != nil {
		return nil, fmt.Errorf("auditlog: list entries: %w", errFind)
	}
	return entries, nil
}

// conn picks the transaction handle when present.
func (w *Writer) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return w.db
}
