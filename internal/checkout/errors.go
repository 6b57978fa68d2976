package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCart indicates a checkout of a cart without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrProductUnavailable indicates at least one line references a product that is not active.
	ErrProductUnavailable = errors.New("checkout: product unavailable")
	// ErrInvalidTotal indicates an order total that overflows or is negative.
	ErrInvalidTotal = errors.New("checkout: invalid order total")
	// ErrPersistence indicates a storage failure; the checkout was rolled back and may be retried.
	ErrPersistence = errors.New("checkout: persistence failure")
)

// UnavailableItem describes a cart line that cannot be purchased.
type UnavailableItem struct {
	LineID      uint64 `json:"line_id"`
	ProductID   uint64 `json:"api_id"`
	ProductName string `json:"api_name"`
	Reason      string `json:"reason"`
}

// ProductUnavailableError lists the cart lines blocking a checkout.
type ProductUnavailableError struct {
	Items []UnavailableItem
}

// Error names the blocking lines.
func (e *ProductUnavailableError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, fmt.Sprintf("%d", item.LineID))
	}
	return "checkout: product unavailable for cart lines " + strings.Join(ids, ",")
}

// Is matches ErrProductUnavailable.
func (e *ProductUnavailableError) Is(target error) bool {
	return target == ErrProductUnavailable
}

// PersistenceError wraps a storage failure with the step that failed.
type PersistenceError struct {
	Op  string
	Err error
}

// Error describes the failed step.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkout: %s: %v", e.Op, e.Err)
}

// Unwrap returns the storage error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsRetryable reports whether a failed checkout may be retried unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
