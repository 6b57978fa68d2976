package auditlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "auditlog-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createReceipt(t *testing.T, conn *gorm.DB) models.SalesReceipt {
	t.Helper()
	quota := int64(100)
	receipt := models.SalesReceipt{
		SellerID:       1,
		CustomerID:     42,
		PlanID:         3,
		PaymentMethod:  "card",
		Status:         models.ReceiptStatusActive,
		CountOfRequest: &quota,
	}
	if errCreate := conn.Create(&receipt).Error; errCreate != nil {
		t.Fatalf("create receipt: %v", errCreate)
	}
	return receipt
}

func TestAppendPurchase(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writer := NewWriter(conn, func() time.Time { return now })
	receipt := createReceipt(t, conn)

	entry, err := writer.AppendPurchase(context.Background(), nil, &receipt)
	if err != nil {
		t.Fatalf("AppendPurchase: %v", err)
	}
	if entry.Type != models.UsageLogTypePurchase {
		t.Fatalf("expected purchase type, got %s", entry.Type)
	}
	if entry.UserID != 42 {
		t.Fatalf("expected user 42, got %d", entry.UserID)
	}
	if entry.ActivationEvent == nil || !*entry.ActivationEvent {
		t.Fatalf("expected activation_event=true")
	}
	if entry.SalesReceiptID == nil || *entry.SalesReceiptID != receipt.ID {
		t.Fatalf("expected entry to reference receipt %d", receipt.ID)
	}

	if _, errMissing := writer.AppendPurchase(context.Background(), nil, &models.SalesReceipt{}); !errors.Is(errMissing, ErrMissingReceipt) {
		t.Fatalf("expected ErrMissingReceipt, got %v", errMissing)
	}
}

func TestRecordUsageAndSums(t *testing.T) {
	conn := openTestDB(t)
	writer := NewWriter(conn, nil)
	first := createReceipt(t, conn)
	second := createReceipt(t, conn)
	untouched := createReceipt(t, conn)

	if _, err := writer.AppendPurchase(context.Background(), nil, &first); err != nil {
		t.Fatalf("AppendPurchase: %v", err)
	}
	for _, count := range []int64{10, 25} {
		if _, err := writer.RecordUsage(context.Background(), nil, first, count); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
	if _, err := writer.RecordUsage(context.Background(), nil, second, 7); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	sum, err := writer.UsageSum(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("UsageSum: %v", err)
	}
	if sum != 35 {
		t.Fatalf("expected sum 35, got %d", sum)
	}

	sums, err := writer.UsageSums(context.Background(), []uint64{first.ID, second.ID, untouched.ID})
	if err != nil {
		t.Fatalf("UsageSums: %v", err)
	}
	if sums[first.ID] != 35 || sums[second.ID] != 7 {
		t.Fatalf("unexpected sums: %v", sums)
	}
	if _, ok := sums[untouched.ID]; ok {
		t.Fatalf("expected no entry for receipt without usage")
	}

	entries, err := writer.Entries(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestRecordUsage_RejectsNonPositive(t *testing.T) {
	conn := openTestDB(t)
	writer := NewWriter(conn, nil)
	receipt := createReceipt(t, conn)

	if _, err := writer.RecordUsage(context.Background(), nil, receipt, 0); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
	if _, err := writer.RecordUsage(context.Background(), nil, models.SalesReceipt{}, 3); !errors.Is(err, ErrMissingReceipt) {
		t.Fatalf("expected ErrMissingReceipt, got %v", err)
	}
}
