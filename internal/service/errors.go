package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation errors: rejected before any state is written.
var (
	ErrEmptyCart          = errors.New("cart has no items")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrMenuItemNotFound   = errors.New("menu item not found in hotel")
	ErrInvalidMenuItemID  = errors.New("invalid menu_item_id")
	ErrZeroPayment        = errors.New("payment contributions must sum to more than zero")
	ErrNegativeAmount     = errors.New("contribution amount must not be negative")
	ErrExceedsBalance     = errors.New("payment exceeds outstanding balance")
	ErrInvalidMethod      = errors.New("unknown payment method")
	ErrMissingDebtor      = errors.New("debtor name is required for a debt contribution")
	ErrOrderNotServed     = errors.New("order is not in served status")
	ErrNothingDue         = errors.New("order has no outstanding balance")
	ErrOrderNotPending    = errors.New("order is not in pending status")
	ErrOrderNotPreparing  = errors.New("order is not in preparing status")
	ErrOrderNotPaid       = errors.New("order is not in paid status")
	ErrOrderCleared       = errors.New("order has been cleared and is immutable")
	ErrNoPaymentHistory   = errors.New("order has no recorded payment history")
	ErrAllocationMismatch = errors.New("allocation does not sum to the order total")
)

// Conflict errors: a race was lost; the caller must re-fetch and re-decide.
var (
	ErrOrderTaken      = errors.New("order already claimed by another chef")
	ErrGroupInProgress = errors.New("a linked order has already progressed; group cannot be removed")
)

// PartialCascadeError reports a cascade delete that failed after some rows in
// the link-group were already removed. The surrounding transaction is rolled
// back where the store supports it, but the condition is surfaced distinctly
// from validation failures because it demands operator attention.
type PartialCascadeError struct {
	GroupIDs []uuid.UUID
	Stage    string
	Err      error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("partial cascade failure at %s for group %v: %v", e.Stage, e.GroupIDs, e.Err)
}

func (e *PartialCascadeError) Unwrap() error { return e.Err }
