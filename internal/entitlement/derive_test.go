package entitlement

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/models"
)

func TestDerive_SubscriptionMonth(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	plan := models.MonetizationPlan{ID: 1, Category: models.PlanCategorySubscription, Unit: models.PaymentUnitMonth, PriceCents: 5000}

	params, err := Derive(plan, 2, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if params.Kind != KindWindow {
		t.Fatalf("expected window kind, got %s", params.Kind)
	}
	if params.PeriodBegin == nil || !params.PeriodBegin.Equal(now) {
		t.Fatalf("expected begin=%s, got %v", now, params.PeriodBegin)
	}
	want := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	if params.PeriodEnd == nil || !params.PeriodEnd.Equal(want) {
		t.Fatalf("expected end=%s, got %v", want, params.PeriodEnd)
	}
	if params.CountOfRequest != nil {
		t.Fatalf("expected no quota, got %d", *params.CountOfRequest)
	}
	if params.Total.Cents() != 10000 {
		t.Fatalf("expected total 10000, got %d", params.Total.Cents())
	}
}

func TestDerive_SubscriptionYear(t *testing.T) {
	now := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	plan := models.MonetizationPlan{Category: models.PlanCategorySubscription, Unit: models.PaymentUnitYear, PriceCents: 100}

	params, err := Derive(plan, 1, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !params.PeriodEnd.Equal(want) {
		t.Fatalf("expected end=%s, got %s", want, params.PeriodEnd)
	}
}

func TestDerive_SubscriptionOtherUnitsExtendOneMonth(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	for _, unit := range []models.PaymentUnit{models.PaymentUnitDay, models.PaymentUnitWeek, models.PaymentUnitGB, "fortnight"} {
		plan := models.MonetizationPlan{Category: models.PlanCategorySubscription, Unit: unit}
		params, err := Derive(plan, 1, now)
		if err != nil {
			t.Fatalf("Derive(%s): %v", unit, err)
		}
		if !params.PeriodEnd.Equal(want) {
			t.Fatalf("unit %s: expected end=%s, got %s", unit, want, params.PeriodEnd)
		}
	}
}

func TestDerive_MonthEndNormalizes(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	plan := models.MonetizationPlan{Category: models.PlanCategorySubscription, Unit: models.PaymentUnitMonth}
	params, err := Derive(plan, 1, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if !params.PeriodEnd.Equal(want) {
		t.Fatalf("expected end=%s, got %s", want, params.PeriodEnd)
	}
}

func TestDerive_PayPerUse(t *testing.T) {
	plan := models.MonetizationPlan{Category: models.PlanCategoryPayPerUse, Unit: models.PaymentUnitRequest, PriceCents: 50}
	params, err := Derive(plan, 1000, time.Now())
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if params.Kind != KindQuota {
		t.Fatalf("expected quota kind, got %s", params.Kind)
	}
	if params.CountOfRequest == nil || *params.CountOfRequest != 1000 {
		t.Fatalf("expected quota 1000, got %v", params.CountOfRequest)
	}
	if params.PeriodBegin != nil || params.PeriodEnd != nil {
		t.Fatalf("expected no window")
	}
	if params.Total.String() != "500.00" {
		t.Fatalf("expected total 500.00, got %s", params.Total)
	}
}

func TestDerive_OneTimeAndUnknownCategory(t *testing.T) {
	for _, category := range []models.PlanCategory{models.PlanCategoryOneTime, "lifetime"} {
		plan := models.MonetizationPlan{Category: category, Unit: models.PaymentUnitLicense, PriceCents: 999}
		params, err := Derive(plan, 3, time.Now())
		if err != nil {
			t.Fatalf("Derive(%s): %v", category, err)
		}
		if params.Kind != KindUnconditional {
			t.Fatalf("category %s: expected unconditional, got %s", category, params.Kind)
		}
		if params.PeriodEnd != nil || params.CountOfRequest != nil {
			t.Fatalf("category %s: expected nothing populated", category)
		}
		if params.Category != models.PlanCategoryOneTime {
			t.Fatalf("category %s: expected one-time, got %s", category, params.Category)
		}
		if params.Total.Cents() != 2997 {
			t.Fatalf("category %s: expected total 2997, got %d", category, params.Total.Cents())
		}
	}
}

func TestDerive_Rejects(t *testing.T) {
	if _, err := Derive(models.MonetizationPlan{}, 1, time.Now()); !errors.Is(err, ErrInvalidPlanCategory) {
		t.Fatalf("expected ErrInvalidPlanCategory, got %v", err)
	}
	plan := models.MonetizationPlan{Category: models.PlanCategoryOneTime}
	if _, err := Derive(plan, 0, time.Now()); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	plan.PriceCents = -1
	if _, err := Derive(plan, 1, time.Now()); !errors.Is(err, ErrNegativePrice) {
		t.Fatalf("expected ErrNegativePrice, got %v", err)
	}
}

func TestDerive_TotalOverflow(t *testing.T) {
	plan := models.MonetizationPlan{ID: 7, Category: models.PlanCategoryPayPerUse, PriceCents: 100_000_000}
	quantity := int(math.MaxInt64/100_000_000 + 1)
	if _, err := Derive(plan, quantity, time.Now()); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	params, err := Derive(plan, quantity-1, time.Now())
	if err != nil {
		t.Fatalf("Derive at the limit: %v", err)
	}
	if params.Total.IsNegative() {
		t.Fatalf("expected non-negative total, got %s", params.Total)
	}
}
