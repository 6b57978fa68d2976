// Package cart stores pending purchase lines per user.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/APIMarketplace/internal/catalog"
	dbutil "github.com/router-for-me/APIMarketplace/internal/db"
	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrItemNotFound indicates the cart line does not exist for the user.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrInvalidQuantity indicates a quantity outside 1..models.MaxCartQuantity.
	ErrInvalidQuantity = fmt.Errorf("cart: quantity must be between 1 and %d", models.MaxCartQuantity)
	// ErrProductNotPurchasable indicates the product is not active.
	ErrProductNotPurchasable = errors.New("cart: product is not available for purchase")
	// ErrPlanMismatch indicates a plan that belongs to a different product.
	ErrPlanMismatch = errors.New("cart: plan does not belong to product")
)

// Line is a cart item joined with its plan and product.
type Line struct {
	Item    models.CartItem
	Plan    models.MonetizationPlan
	Product models.APIProduct
}

// Subtotal returns the line price.
func (l Line) Subtotal() (money.Amount, error) {
	return money.FromCents(l.Plan.PriceCents).Mul(int64(l.Item.Quantity))
}

// AddInput describes a line to add. A zero PlanID selects the product's cheapest plan.
type AddInput struct {
	ProductID uint64
	PlanID    uint64
	Quantity  int
}

// Store persists cart items through GORM.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Add inserts a line or increments the quantity of the existing line for the same plan.
// The returned flag is true when a new line was created.
func (s *Store) Add(ctx context.Context, userID uint64, in AddInput) (models.CartItem, bool, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if !validQuantity(in.Quantity) {
		return models.CartItem{}, false, ErrInvalidQuantity
	}

	reader := catalog.NewReader(s.db)
	plan, errPlan := s.resolvePlan(ctx, reader, in)
	if errPlan != nil {
		return models.CartItem{}, false, errPlan
	}
	product, errProduct := reader.GetProduct(ctx, plan.APIProductID)
	if errProduct != nil {
		return models.CartItem{}, false, errProduct
	}
	if product.Status != models.ProductStatusActive {
		return models.CartItem{}, false, ErrProductNotPurchasable
	}

	item, created, errUpsert := s.upsert(ctx, userID, plan.ID, in.Quantity)
	if errUpsert != nil && dbutil.IsUniqueViolation(errUpsert) {
		// A concurrent add inserted the line first; retry as an increment.
		item, created, errUpsert = s.upsert(ctx, userID, plan.ID, in.Quantity)
	}
	if errUpsert != nil {
		return models.CartItem{}, false, errUpsert
	}
	return item, created, nil
}

// resolvePlan loads the requested plan or falls back to the cheapest one.
func (s *Store) resolvePlan(ctx context.Context, reader *catalog.GormReader, in AddInput) (models.MonetizationPlan, error) {
	if in.PlanID == 0 {
		if in.ProductID == 0 {
			return models.MonetizationPlan{}, catalog.ErrProductNotFound
		}
		return reader.CheapestPlan(ctx, in.ProductID)
	}
	plan, errPlan := reader.GetPlan(ctx, in.PlanID)
	if errPlan != nil {
		return models.MonetizationPlan{}, errPlan
	}
	if in.ProductID != 0 && plan.APIProductID != in.ProductID {
		return models.MonetizationPlan{}, ErrPlanMismatch
	}
	return plan, nil
}

// upsert increments an existing line or creates a new one in a transaction.
func (s *Store) upsert(ctx context.Context, userID, planID uint64, quantity int) (models.CartItem, bool, error) {
	var item models.CartItem
	created := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND plan_id = ?", userID, planID).
			Take(&item).Error
		switch {
		case errFind == nil:
			if item.Quantity+quantity > models.MaxCartQuantity {
				return ErrInvalidQuantity
			}
			if errUpdate := tx.Model(&models.CartItem{}).
				Where("id = ?", item.ID).
				Update("quantity", gorm.Expr("quantity + ?", quantity)).Error; errUpdate != nil {
				return errUpdate
			}
			return tx.Where("id = ?", item.ID).Take(&item).Error
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			item = models.CartItem{UserID: userID, PlanID: planID, Quantity: quantity}
			created = true
			return tx.Create(&item).Error
		default:
			return errFind
		}
	})
	if errTx != nil {
		return models.CartItem{}, false, fmt.Errorf("cart: add: %w", errTx)
	}
	return item, created, nil
}

// UpdateQuantity sets the quantity of one of the user's lines.
func (s *Store) UpdateQuantity(ctx context.Context, userID, itemID uint64, quantity int) (models.CartItem, error) {
	if !validQuantity(quantity) {
		return models.CartItem{}, ErrInvalidQuantity
	}
	res := s.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ? AND user_id = ?", itemID, userID).
		Update("quantity", quantity)
	if res.Error != nil {
		return models.CartItem{}, fmt.Errorf("cart: update quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.CartItem{}, ErrItemNotFound
	}
	var item models.CartItem
	if errFind := s.db.WithContext(ctx).Where("id = ?", itemID).Take(&item).Error; errFind != nil {
		return models.CartItem{}, fmt.Errorf("cart: reload item: %w", errFind)
	}
	return item, nil
}

// Remove deletes one of the user's lines.
func (s *Store) Remove(ctx context.Context, userID, itemID uint64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return fmt.Errorf("cart: remove: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Clear deletes every line of the user. Pass tx to clear inside a checkout.
func (s *Store) Clear(ctx context.Context, tx *gorm.DB, userID uint64) error {
	if errDelete := s.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error; errDelete != nil {
		return fmt.Errorf("cart: clear: %w", errDelete)
	}
	return nil
}

// Items returns the user's lines in insertion order. Inside tx the rows are locked for update.
func (s *Store) Items(ctx context.Context, tx *gorm.DB, userID uint64) ([]models.CartItem, error) {
	q := s.conn(tx).WithContext(ctx)
	if tx != nil {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var items []models.CartItem
	if errFind := q.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; errFind != nil {
		return nil, fmt.Errorf("cart: list items: %w", errFind)
	}
	return items, nil
}

// Lines returns the user's lines joined with plan and product for display.
func (s *Store) Lines(ctx context.Context, userID uint64) ([]Line, error) {
	var items []models.CartItem
	if errFind := s.db.WithContext(ctx).
		Preload("Plan.APIProduct").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error; errFind != nil {
		return nil, fmt.Errorf("cart: list lines: %w", errFind)
	}
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		line := Line{Item: item}
		if item.Plan != nil {
			line.Plan = *item.Plan
			if item.Plan.APIProduct != nil {
				line.Product = *item.Plan.APIProduct
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Total sums line subtotals.
func Total(lines []Line) (money.Amount, error) {
	var total money.Amount
	for _, line := range lines {
		subtotal, errSub := line.Subtotal()
		if errSub != nil {
			return 0, fmt.Errorf("cart: line %d: %w", line.Item.ID, errSub)
		}
		next, errAdd := total.Add(subtotal)
		if errAdd != nil {
			return 0, fmt.Errorf("cart: total: %w", errAdd)
		}
		total = next
	}
	return total, nil
}

// validQuantity reports whether n units fit on one line.
func validQuantity(n int) bool {
	return n >= 1 && n <= models.MaxCartQuantity
}

// conn picks the transaction handle when present.
func (s *Store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
