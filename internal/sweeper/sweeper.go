// Package sweeper periodically expires lapsed receipts in the background.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultBatchSize = 200

// Sweeper reconciles every active receipt on an interval.
type Sweeper struct {
	db        *gorm.DB
	evaluator *entitlement.Evaluator
	interval  time.Duration
	batchSize int
}

// New constructs a Sweeper. It returns nil when interval is not positive.
func New(db *gorm.DB, evaluator *entitlement.Evaluator, interval time.Duration) *Sweeper {
	if db == nil || evaluator == nil || interval <= 0 {
		return nil
	}
	return &Sweeper{db: db, evaluator: evaluator, interval: interval, batchSize: defaultBatchSize}
}

// Start runs the sweep loop in the background.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("receipt sweeper started (interval=%s)", s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil {
		log.WithError(err).Warn("receipt sweeper: initial sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.WithError(err).Warn("receipt sweeper: sweep failed")
			}
		}
	}
}

// SweepOnce reconciles active receipts in id order and returns how many expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("receipt sweeper: nil db")
	}
	expired := 0
	var lastID uint64
	for {
		if errCtx := ctx.Err(); errCtx != nil {
			return expired, errCtx
		}
		var batch []models.SalesReceipt
		if errFind := s.db.WithContext(ctx).
			Where("status = ? AND id > ?", models.ReceiptStatusActive, lastID).
			Order("id ASC").
			Limit(s.batchSize).
			Find(&batch).Error; errFind != nil {
			return expired, fmt.Errorf("receipt sweeper: load batch: %w", errFind)
		}
		if len(batch) == 0 {
			break
		}
		updated, _, errReconcile := s.evaluator.ReconcileAll(ctx, batch)
		if errReconcile != nil {
			return expired, fmt.Errorf("receipt sweeper: reconcile: %w", errReconcile)
		}
		for _, receipt := range updated {
			if receipt.Status == models.ReceiptStatusExpired {
				expired++
			}
		}
		lastID = batch[len(batch)-1].ID
		if len(batch) < s.batchSize {
			break
		}
	}
	if expired > 0 {
		log.WithField("expired", expired).Info("receipt sweeper: receipts expired")
	}
	return expired, nil
}
