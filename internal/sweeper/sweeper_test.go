package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/auditlog"
	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
)

func TestSweepOnce_ExpiresLapsedReceipts(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "sweeper-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	audit := auditlog.NewWriter(conn, nowFn)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	begin := now.AddDate(0, -1, 0)
	quota := int64(5)
	receipts := []models.SalesReceipt{
		{CustomerID: 1, Status: models.ReceiptStatusActive, PeriodBegin: &begin, PeriodEnd: &past},
		{CustomerID: 1, Status: models.ReceiptStatusActive, PeriodBegin: &begin, PeriodEnd: &future},
		{CustomerID: 1, Status: models.ReceiptStatusActive, CountOfRequest: &quota},
		{CustomerID: 1, Status: models.ReceiptStatusActive},
		{CustomerID: 1, Status: models.ReceiptStatusCanceled, PeriodBegin: &begin, PeriodEnd: &past},
	}
	for i := range receipts {
		if errCreate := conn.Create(&receipts[i]).Error; errCreate != nil {
			t.Fatalf("create receipt: %v", errCreate)
		}
	}
	if _, errUsage := audit.RecordUsage(context.Background(), nil, receipts[2], 5); errUsage != nil {
		t.Fatalf("record usage: %v", errUsage)
	}

	s := New(conn, entitlement.NewEvaluator(conn, audit, nowFn), time.Minute)
	s.batchSize = 2
	expired, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired receipts, got %d", expired)
	}

	want := []models.ReceiptStatus{
		models.ReceiptStatusExpired,
		models.ReceiptStatusActive,
		models.ReceiptStatusExpired,
		models.ReceiptStatusActive,
		models.ReceiptStatusCanceled,
	}
	for i, receipt := range receipts {
		var stored models.SalesReceipt
		if errFind := conn.Where("id = ?", receipt.ID).Take(&stored).Error; errFind != nil {
			t.Fatalf("reload: %v", errFind)
		}
		if stored.Status != want[i] {
			t.Fatalf("receipt %d: expected %s, got %s", i, want[i], stored.Status)
		}
	}

	again, err := s.SweepOnce(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %d err=%v", again, err)
	}
}

func TestNew_DisabledInterval(t *testing.T) {
	if New(nil, nil, 0) != nil {
		t.Fatalf("expected nil sweeper for zero interval")
	}
}
