// Package payment validates checkout payment input and charges a gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/router-for-me/APIMarketplace/internal/money"
)

// Method identifies how a checkout is paid.
type Method string

// Method constants define the accepted payment methods.
const (
	MethodCard         Method = "card"
	MethodPayPal       Method = "paypal"
	MethodBankTransfer Method = "bank_transfer"
)

// Details carries method-specific payment fields.
type Details struct {
	CardNumber string `json:"card_number"`
	CardHolder string `json:"card_holder"`
	ExpiryDate string `json:"expiry_date"`
	CVV        string `json:"cvv"`
	Email      string `json:"email" validate:"omitempty,email"`
	Account    string `json:"account"`
}

// Request is the payment part of a checkout call.
type Request struct {
	Method  Method   `json:"payment_method" validate:"required,oneof=card paypal bank_transfer"`
	Details *Details `json:"payment_details" validate:"required"`
	Memo    string   `json:"memo" validate:"max=1000"`
}

// ValidationError lists invalid fields keyed by their JSON path.
type ValidationError struct {
	Fields map[string]string
}

// Error summarizes the invalid fields.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return "payment: invalid fields: " + strings.Join(keys, ", ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance builds the shared validator with JSON field names.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterStructValidation(requestStructLevel, Request{})
		validate = v
	})
	return validate
}

// requestStructLevel enforces card fields when paying by card.
func requestStructLevel(sl validator.StructLevel) {
	req := sl.Current().Interface().(Request)
	if req.Method != MethodCard || req.Details == nil {
		return
	}
	cardFields := []struct {
		value, json, name string
	}{
		{req.Details.CardNumber, "card_number", "CardNumber"},
		{req.Details.CardHolder, "card_holder", "CardHolder"},
		{req.Details.ExpiryDate, "expiry_date", "ExpiryDate"},
		{req.Details.CVV, "cvv", "CVV"},
	}
	for _, field := range cardFields {
		if strings.TrimSpace(field.value) == "" {
			sl.ReportError(field.value, "payment_details."+field.json, field.name, "required_for_card", "")
		}
	}
}

// Validate checks a payment request and returns a *ValidationError on failure.
func Validate(req Request) error {
	errValidate := validatorInstance().Struct(req)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(errValidate, &fieldErrs) {
		return fmt.Errorf("payment: validate: %w", errValidate)
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fieldErr := range fieldErrs {
		out.Fields[fieldPath(fieldErr)] = fieldMessage(fieldErr)
	}
	return out
}

// fieldPath converts a validator namespace into a JSON path without the root type.
func fieldPath(fieldErr validator.FieldError) string {
	ns := fieldErr.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return ns
}

// fieldMessage renders a human readable message for a failed rule.
func fieldMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required", "required_for_card":
		return "is required"
	case "oneof":
		return "must be one of: " + fieldErr.Param()
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fieldErr.Param() + " characters"
	default:
		return "is invalid"
	}
}

var (
	// ErrDeclined indicates the gateway refused the charge.
	ErrDeclined = errors.New("payment: charge declined")
	// ErrUnknownCharge indicates a void for a reference the gateway never issued.
	ErrUnknownCharge = errors.New("payment: unknown charge reference")
)

// Charge is a request to move money for a checkout.
type Charge struct {
	CustomerID uint64
	Amount     money.Amount
	Method     Method
	Details    Details
}

// Gateway moves money for a checkout and returns a charge reference.
// Void reverses a charge whose checkout could not be committed.
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (string, error)
	Void(ctx context.Context, reference string) error
}

// DeclinedCardNumber is rejected by MockGateway.
const DeclinedCardNumber = "4000000000000002"

// mockCharge is an accepted charge and whether it was voided.
type mockCharge struct {
	reference string
	charge    Charge
	voided    bool
}

// MockGateway approves every charge except the declined test card.
type MockGateway struct {
	mu      sync.Mutex
	charges []mockCharge
}

// NewMockGateway constructs a MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Charge records the charge and returns a random reference.
func (g *MockGateway) Charge(ctx context.Context, charge Charge) (string, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return "", errCtx
	}
	if charge.Method == MethodCard && strings.ReplaceAll(charge.Details.CardNumber, " ", "") == DeclinedCardNumber {
		return "", ErrDeclined
	}
	reference := "mock_" + uuid.NewString()
	g.mu.Lock()
	g.charges = append(g.charges, mockCharge{reference: reference, charge: charge})
	g.mu.Unlock()
	return reference, nil
}

// Void marks the charge as reversed. Voiding twice is a no-op.
func (g *MockGateway) Void(ctx context.Context, reference string) error {
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.charges {
		if g.charges[i].reference == reference {
			g.charges[i].voided = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownCharge, reference)
}

// Charges returns a copy of every accepted charge, voided or not.
func (g *MockGateway) Charges() []Charge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Charge, 0, len(g.charges))
	for _, recorded := range g.charges {
		out = append(out, recorded.charge)
	}
	return out
}

// Settled returns the accepted charges that were not voided.
func (g *MockGateway) Settled() []Charge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Charge
	for _, recorded := range g.charges {
		if !recorded.voided {
			out = append(out, recorded.charge)
		}
	}
	return out
}

// Voided returns the references that were voided.
func (g *MockGateway) Voided() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, recorded := range g.charges {
		if recorded.voided {
			out = append(out, recorded.reference)
		}
	}
	return out
}
