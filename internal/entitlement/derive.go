// Package entitlement derives what a purchase grants and decides whether a receipt is still active.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/models"
	"github.com/router-for-me/APIMarketplace/internal/money"
)

var (
	// ErrInvalidPlanCategory indicates a plan without a category.
	ErrInvalidPlanCategory = errors.New("entitlement: plan has no category")
	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = errors.New("entitlement: quantity must be at least 1")
	// ErrNegativePrice indicates a plan priced below zero.
	ErrNegativePrice = errors.New("entitlement: plan price is negative")
	// ErrAmountOverflow indicates a line total that cannot be represented in cents.
	ErrAmountOverflow = errors.New("entitlement: line total overflows")
)

// Kind is the shape of access a receipt grants.
type Kind int

const (
	// KindUnconditional never expires by rule.
	KindUnconditional Kind = iota
	// KindWindow is bound by a calendar window.
	KindWindow
	// KindQuota is bound by a request count.
	KindQuota
)

// String returns the kind label used in API payloads.
func (k Kind) String() string {
	switch k {
	case KindWindow:
		return "window"
	case KindQuota:
		return "quota"
	default:
		return "unconditional"
	}
}

// Params holds the receipt fields derived from a plan and quantity.
type Params struct {
	Category       models.PlanCategory
	Kind           Kind
	PeriodBegin    *time.Time
	PeriodEnd      *time.Time
	CountOfRequest *int64
	UnitPrice      money.Amount
	Total          money.Amount
}

// ResolveCategory maps a stored category onto the closed set.
// Missing categories are rejected; unknown ones grant unconditional access.
func ResolveCategory(raw models.PlanCategory) (models.PlanCategory, error) {
	switch raw {
	case "":
		return "", ErrInvalidPlanCategory
	case models.PlanCategorySubscription, models.PlanCategoryPayPerUse, models.PlanCategoryOneTime:
		return raw, nil
	default:
		return models.PlanCategoryOneTime, nil
	}
}

// Derive computes the entitlement for quantity units of plan purchased at now.
func Derive(plan models.MonetizationPlan, quantity int, now time.Time) (Params, error) {
	if quantity < 1 {
		return Params{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if plan.PriceCents < 0 {
		return Params{}, ErrNegativePrice
	}
	category, errCategory := ResolveCategory(plan.Category)
	if errCategory != nil {
		return Params{}, fmt.Errorf("plan %d: %w", plan.ID, errCategory)
	}

	unitPrice := money.FromCents(plan.PriceCents)
	total, errMul := unitPrice.Mul(int64(quantity))
	if errMul != nil {
		return Params{}, fmt.Errorf("plan %d x %d: %w: %w", plan.ID, quantity, ErrAmountOverflow, errMul)
	}
	params := Params{
		Category:  category,
		Kind:      KindUnconditional,
		UnitPrice: unitPrice,
		Total:     total,
	}

	switch category {
	case models.PlanCategorySubscription:
		begin := now
		end := PeriodEnd(plan.Unit, begin)
		params.Kind = KindWindow
		params.PeriodBegin = &begin
		params.PeriodEnd = &end
	case models.PlanCategoryPayPerUse:
		count := int64(quantity)
		params.Kind = KindQuota
		params.CountOfRequest = &count
	case models.PlanCategoryOneTime:
	}
	return params, nil
}

// PeriodEnd returns the end of a subscription window that starts at begin.
// Only year extends by a year; every other unit, including day and week, extends by one calendar month.
func PeriodEnd(unit models.PaymentUnit, begin time.Time) time.Time {
	switch unit {
	case models.PaymentUnitYear:
		return begin.AddDate(1, 0, 0)
	default:
		return begin.AddDate(0, 1, 0)
	}
}

// KindOf reports the access shape stored on a receipt.
func KindOf(receipt models.SalesReceipt) Kind {
	switch {
	case receipt.HasWindow():
		return KindWindow
	case receipt.HasQuota():
		return KindQuota
	default:
		return KindUnconditional
	}
}
