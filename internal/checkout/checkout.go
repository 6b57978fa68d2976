// Package checkout converts a user's cart into receipts and audit entries in one transaction.
package checkout

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/catalog"
	"github.com/router-for-me/APIMarketplace/internal/entitlement"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	"github.com/router-for-me/APIMarketplace/internal/payment"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// receiptMemo is stored on receipts when the caller leaves the memo empty.
const receiptMemo = "Purchased via checkout"

// voidTimeout bounds the compensating void after a failed checkout.
const voidTimeout = 10 * time.Second

// CartStore reads and clears cart lines inside a transaction.
type CartStore interface {
	Items(ctx context.Context, tx *gorm.DB, userID uint64) ([]models.CartItem, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uint64) error
}

// ReceiptWriter persists receipts inside a transaction.
type ReceiptWriter interface {
	CreateReceipt(ctx context.Context, tx *gorm.DB, receipt *models.SalesReceipt) error
}

// AuditWriter appends purchase entries inside a transaction.
type AuditWriter interface {
	AppendPurchase(ctx context.Context, tx *gorm.DB, receipt *models.SalesReceipt) (models.UsageLog, error)
}

// gormReceipts is the default ReceiptWriter.
type gormReceipts struct{}

// CreateReceipt inserts the receipt row.
func (gormReceipts) CreateReceipt(ctx context.Context, tx *gorm.DB, receipt *models.SalesReceipt) error {
	return tx.WithContext(ctx).Create(receipt).Error
}

// Service coordinates checkout.
type Service struct {
	db         *gorm.DB
	carts      CartStore
	receipts   ReceiptWriter
	audit      AuditWriter
	gateway    payment.Gateway
	newCatalog func(conn *gorm.DB) catalog.Reader
	nowFn      func() time.Time
	locks      *userLocks
}

// NewService constructs a Service. A nil gateway uses MockGateway and a nil nowFn uses time.Now.
func NewService(db *gorm.DB, carts CartStore, audit AuditWriter, gateway payment.Gateway, nowFn func() time.Time) *Service {
	if gateway == nil {
		gateway = payment.NewMockGateway()
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		db:       db,
		carts:    carts,
		receipts: gormReceipts{},
		audit:    audit,
		gateway:  gateway,
		newCatalog: func(conn *gorm.DB) catalog.Reader {
			return catalog.NewReader(conn)
		},
		nowFn: nowFn,
		locks: newUserLocks(),
	}
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time { return s.nowFn().UTC() }

// Result is a committed checkout.
type Result struct {
	OrderID  string
	Receipts []models.SalesReceipt
	Total    money.Amount
}

// Line is a cart item with the entitlement it would grant.
type Line struct {
	Item    models.CartItem
	Plan    models.MonetizationPlan
	Product models.APIProduct
	Params  entitlement.Params
}

// Preview is a dry run of checkout.
type Preview struct {
	Lines       []Line
	Unavailable []UnavailableItem
	Total       money.Amount
}

// Checkout validates payment, then atomically creates a receipt and a purchase entry per cart line and clears the cart.
// Nothing is written when any step fails, and a charge taken before the failure is voided.
func (s *Service) Checkout(ctx context.Context, userID uint64, req payment.Request) (Result, error) {
	if errValidate := payment.Validate(req); errValidate != nil {
		return Result{}, errValidate
	}
	memo := strings.TrimSpace(req.Memo)
	if memo == "" {
		memo = receiptMemo
	}

	release := s.locks.lock(userID)
	defer release()

	now := s.nowFn().UTC()
	var result Result
	var chargeRef string
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, errItems := s.carts.Items(ctx, tx, userID)
		if errItems != nil {
			return &PersistenceError{Op: "load cart", Err: errItems}
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		lines, unavailable, errLines := s.resolveLines(ctx, tx, items, now)
		if errLines != nil {
			return errLines
		}
		if len(unavailable) > 0 {
			return &ProductUnavailableError{Items: unavailable}
		}

		total, errTotal := orderTotal(lines)
		if errTotal != nil {
			return errTotal
		}

		if total > 0 {
			ref, errCharge := s.gateway.Charge(ctx, payment.Charge{
				CustomerID: userID,
				Amount:     total,
				Method:     req.Method,
				Details:    *req.Details,
			})
			if errCharge != nil {
				return errCharge
			}
			chargeRef = ref
		}

		receipts := make([]models.SalesReceipt, 0, len(lines))
		for _, line := range lines {
			receipt, errBuild := buildReceipt(userID, line, req.Method, chargeRef, memo)
			if errBuild != nil {
				return &PersistenceError{Op: fmt.Sprintf("encode plan snapshot for line %d", line.Item.ID), Err: errBuild}
			}
			if errCreate := s.receipts.CreateReceipt(ctx, tx, &receipt); errCreate != nil {
				return &PersistenceError{Op: fmt.Sprintf("create receipt for line %d", line.Item.ID), Err: errCreate}
			}
			if _, errAppend := s.audit.AppendPurchase(ctx, tx, &receipt); errAppend != nil {
				return &PersistenceError{Op: fmt.Sprintf("append purchase log for receipt %d", receipt.ID), Err: errAppend}
			}
			receipts = append(receipts, receipt)
		}

		if errClear := s.carts.Clear(ctx, tx, userID); errClear != nil {
			return &PersistenceError{Op: "clear cart", Err: errClear}
		}

		ids := make([]uint64, 0, len(receipts))
		for _, receipt := range receipts {
			ids = append(ids, receipt.ID)
		}
		result = Result{OrderID: OrderID(ids), Receipts: receipts, Total: total}
		return nil
	})
	if errTx != nil {
		if chargeRef != "" {
			s.voidCharge(ctx, userID, chargeRef, errTx)
		}
		return Result{}, classify(errTx)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"order_id": result.OrderID,
		"receipts": len(result.Receipts),
		"total":    result.Total.String(),
	}).Info("checkout completed")
	return result, nil
}

// Preview derives what checking out now would grant without writing anything.
func (s *Service) Preview(ctx context.Context, userID uint64) (Preview, error) {
	items, errItems := s.carts.Items(ctx, nil, userID)
	if errItems != nil {
		return Preview{}, &PersistenceError{Op: "load cart", Err: errItems}
	}
	if len(items) == 0 {
		return Preview{}, ErrEmptyCart
	}
	lines, unavailable, errLines := s.resolveLines(ctx, s.db, items, s.nowFn().UTC())
	if errLines != nil {
		return Preview{}, classify(errLines)
	}
	total, errTotal := orderTotal(lines)
	if errTotal != nil {
		return Preview{}, errTotal
	}
	return Preview{Lines: lines, Unavailable: unavailable, Total: total}, nil
}

// voidCharge reverses an approved charge whose checkout was rolled back.
// It runs detached from ctx so a canceled request still releases the money.
func (s *Service) voidCharge(ctx context.Context, userID uint64, reference string, cause error) {
	voidCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), voidTimeout)
	defer cancel()
	fields := log.Fields{"user_id": userID, "payment_reference": reference, "cause": cause.Error()}
	if errVoid := s.gateway.Void(voidCtx, reference); errVoid != nil {
		log.WithError(errVoid).WithFields(fields).Error("checkout: void failed, charge needs manual refund")
		return
	}
	log.WithFields(fields).Warn("checkout: charge voided after rollback")
}

// orderTotal sums line totals, rejecting overflow and negative results.
func orderTotal(lines []Line) (money.Amount, error) {
	total := money.Amount(0)
	for _, line := range lines {
		next, errAdd := total.Add(line.Params.Total)
		if errAdd != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidTotal, errAdd)
		}
		total = next
	}
	if total.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTotal, total)
	}
	return total, nil
}

// resolveLines loads plan and product for every item and derives its entitlement.
// Lines whose product is not active are reported separately.
func (s *Service) resolveLines(ctx context.Context, conn *gorm.DB, items []models.CartItem, now time.Time) ([]Line, []UnavailableItem, error) {
	reader := s.newCatalog(conn)
	lines := make([]Line, 0, len(items))
	var unavailable []UnavailableItem
	for _, item := range items {
		plan, errPlan := reader.GetPlan(ctx, item.PlanID)
		if errors.Is(errPlan, catalog.ErrPlanNotFound) {
			unavailable = append(unavailable, UnavailableItem{LineID: item.ID, Reason: "plan no longer exists"})
			continue
		}
		if errPlan != nil {
			return nil, nil, &PersistenceError{Op: "load plan", Err: errPlan}
		}

		product, errProduct := reader.GetProduct(ctx, plan.APIProductID)
		if errors.Is(errProduct, catalog.ErrProductNotFound) {
			unavailable = append(unavailable, UnavailableItem{LineID: item.ID, ProductID: plan.APIProductID, Reason: "product no longer exists"})
			continue
		}
		if errProduct != nil {
			return nil, nil, &PersistenceError{Op: "load product", Err: errProduct}
		}
		if product.Status != models.ProductStatusActive {
			unavailable = append(unavailable, UnavailableItem{
				LineID:      item.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Reason:      "product is " + string(product.Status),
			})
			continue
		}

		params, errDerive := entitlement.Derive(plan, item.Quantity, now)
		if errDerive != nil {
			return nil, nil, fmt.Errorf("checkout: cart line %d: %w", item.ID, errDerive)
		}
		lines = append(lines, Line{Item: item, Plan: plan, Product: product, Params: params})
	}
	return lines, unavailable, nil
}

// planSnapshot is the plan terms stored on a receipt.
type planSnapshot struct {
	PlanID      uint64              `json:"plan_id"`
	ProductID   uint64              `json:"api_id"`
	ProductName string              `json:"api_name"`
	Version     string              `json:"version,omitempty"`
	Category    models.PlanCategory `json:"category"`
	Unit        models.PaymentUnit  `json:"unit"`
	PriceCents  int64               `json:"price_cents"`
	Description string              `json:"description,omitempty"`
}

// buildReceipt maps a resolved line onto a new active receipt.
func buildReceipt(userID uint64, line Line, method payment.Method, reference, memo string) (models.SalesReceipt, error) {
	snapshot, errMarshal := json.Marshal(planSnapshot{
		PlanID:      line.Plan.ID,
		ProductID:   line.Product.ID,
		ProductName: line.Product.Name,
		Version:     line.Product.Version,
		Category:    line.Params.Category,
		Unit:        line.Plan.Unit,
		PriceCents:  line.Plan.PriceCents,
		Description: line.Plan.Description,
	})
	if errMarshal != nil {
		return models.SalesReceipt{}, errMarshal
	}
	return models.SalesReceipt{
		SellerID:         line.Product.CreatorID,
		CustomerID:       userID,
		APIProductID:     line.Product.ID,
		PlanID:           line.Plan.ID,
		UnitPriceCents:   line.Params.UnitPrice.Cents(),
		Quantity:         line.Item.Quantity,
		TotalPriceCents:  line.Params.Total.Cents(),
		PeriodBegin:      line.Params.PeriodBegin,
		PeriodEnd:        line.Params.PeriodEnd,
		CountOfRequest:   line.Params.CountOfRequest,
		Status:           models.ReceiptStatusActive,
		PaymentMethod:    string(method),
		PaymentReference: reference,
		Memo:             memo,
		PlanSnapshot:     datatypes.JSON(snapshot),
	}, nil
}

// classify keeps domain errors intact and wraps anything else as a persistence failure.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrProductUnavailable),
		errors.Is(err, ErrPersistence),
		errors.Is(err, ErrInvalidTotal),
		errors.Is(err, entitlement.ErrAmountOverflow),
		errors.Is(err, entitlement.ErrInvalidPlanCategory),
		errors.Is(err, entitlement.ErrInvalidQuantity),
		errors.Is(err, entitlement.ErrNegativePrice),
		errors.Is(err, payment.ErrDeclined),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &PersistenceError{Op: "commit", Err: err}
	}
}

// OrderID digests receipt ids into a deterministic order reference.
// It is an identifier, not a security token.
func OrderID(receiptIDs []uint64) string {
	parts := make([]string, 0, len(receiptIDs))
	for _, id := range receiptIDs {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
