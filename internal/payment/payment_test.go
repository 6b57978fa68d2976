package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/router-for-me/APIMarketplace/internal/money"
)

func validCard() *Details {
	return &Details{CardNumber: "4242424242424242", CardHolder: "Ada Lovelace", ExpiryDate: "12/30", CVV: "123"}
}

func TestValidate_AcceptsEachMethod(t *testing.T) {
	cases := []Request{
		{Method: MethodCard, Details: validCard()},
		{Method: MethodPayPal, Details: &Details{Email: "buyer@example.com"}},
		{Method: MethodBankTransfer, Details: &Details{Account: "DE89370400440532013000"}},
	}
	for _, req := range cases {
		if err := Validate(req); err != nil {
			t.Fatalf("method %s: expected valid, got %v", req.Method, err)
		}
	}
}

func TestValidate_CardRequiresFields(t *testing.T) {
	err := Validate(Request{Method: MethodCard, Details: &Details{CardNumber: "4242424242424242"}})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"payment_details.card_holder", "payment_details.expiry_date", "payment_details.cvv"} {
		if validationErr.Fields[field] != "is required" {
			t.Fatalf("expected %s to be required, got %v", field, validationErr.Fields)
		}
	}
	if _, ok := validationErr.Fields["payment_details.card_number"]; ok {
		t.Fatalf("card_number was provided and must not be reported")
	}
}

func TestValidate_RejectsUnknownMethodAndMissingDetails(t *testing.T) {
	err := Validate(Request{Method: "bitcoin"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.HasPrefix(validationErr.Fields["payment_method"], "must be one of") {
		t.Fatalf("expected payment_method oneof error, got %v", validationErr.Fields)
	}
	if validationErr.Fields["payment_details"] != "is required" {
		t.Fatalf("expected payment_details required, got %v", validationErr.Fields)
	}
}

func TestValidate_PayPalEmailFormat(t *testing.T) {
	err := Validate(Request{Method: MethodPayPal, Details: &Details{Email: "not-an-email"}})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Fields["payment_details.email"] != "must be a valid email" {
		t.Fatalf("expected email error, got %v", validationErr.Fields)
	}
}

func TestMockGateway(t *testing.T) {
	gateway := NewMockGateway()
	ref, err := gateway.Charge(context.Background(), Charge{CustomerID: 1, Amount: money.FromCents(500), Method: MethodCard, Details: *validCard()})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !strings.HasPrefix(ref, "mock_") {
		t.Fatalf("expected mock reference, got %q", ref)
	}

	declined := *validCard()
	declined.CardNumber = "4000 0000 0000 0002"
	if _, err := gateway.Charge(context.Background(), Charge{Method: MethodCard, Details: declined}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if got := len(gateway.Charges()); got != 1 {
		t.Fatalf("expected 1 recorded charge, got %d", got)
	}
}

func TestMockGateway_Void(t *testing.T) {
	gateway := NewMockGateway()
	ctx := context.Background()
	ref, err := gateway.Charge(ctx, Charge{CustomerID: 1, Amount: money.FromCents(500), Method: MethodBankTransfer})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if errVoid := gateway.Void(ctx, ref); errVoid != nil {
		t.Fatalf("Void: %v", errVoid)
	}
	if errVoid := gateway.Void(ctx, ref); errVoid != nil {
		t.Fatalf("second Void: %v", errVoid)
	}
	if got := gateway.Voided(); len(got) != 1 || got[0] != ref {
		t.Fatalf("expected %s voided, got %v", ref, got)
	}
	if got := len(gateway.Settled()); got != 0 {
		t.Fatalf("expected no settled charges, got %d", got)
	}
	if got := len(gateway.Charges()); got != 1 {
		t.Fatalf("expected 1 recorded charge, got %d", got)
	}
	if errVoid := gateway.Void(ctx, "mock_missing"); !errors.Is(errVoid, ErrUnknownCharge) {
		t.Fatalf("expected ErrUnknownCharge, got %v", errVoid)
	}
}
