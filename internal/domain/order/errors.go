package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order transitions. Each rejects a single attempted
// transition; none are retried automatically and none mutate state.
var (
	// ErrNotFound is returned when the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyItems rejects creation of an order without items.
	ErrEmptyItems = errors.New("items required")
	// ErrZeroTotal rejects creation of an order whose total is not positive.
	ErrZeroTotal = errors.New("order total must be greater than 0")
	// ErrAlreadyProcessed guards the payment axis: the order's payment has
	// already been confirmed or rejected.
	ErrAlreadyProcessed = errors.New("payment already processed")
	// ErrNotCashOrder rejects cashier resolution of a prepaid order.
	ErrNotCashOrder = errors.New("not a cash order")
	// ErrNotPrepaidOrder rejects an online payment result for a cash order.
	ErrNotPrepaidOrder = errors.New("not a prepaid order")
	// ErrPaymentNotVerified rejects redemption or serving before payment
	// succeeded.
	ErrPaymentNotVerified = errors.New("payment not verified")
	// ErrAlreadyUsed is terminal: the token was consumed by an earlier
	// redemption.
	ErrAlreadyUsed = errors.New("token already used")
	// ErrNotActive rejects redemption when the order is not awaiting a scan.
	ErrNotActive = errors.New("redemption not active")
	// ErrNotRedeemed rejects serving before the token was presented.
	ErrNotRedeemed = errors.New("order not redeemed")
	// ErrAlreadyCompleted rejects operations on a fully served order.
	ErrAlreadyCompleted = errors.New("order already completed")
	// ErrFullyServed rejects serving an item with zero remaining quantity.
	ErrFullyServed = errors.New("item fully served")
)

// UnknownMethodError indicates an unrecognized payment method.
type UnknownMethodError struct {
	Method PaymentMethod
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown payment method %q", e.Method)
}

// UnknownItemError indicates a requested item is not in the catalog.
type UnknownItemError struct {
	ItemID string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("item %s not found", e.ItemID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %s", e.ItemID)
}

// ItemNotInOrderError indicates a serve attempt against an item the order
// does not contain.
type ItemNotInOrderError struct {
	OrderID string
	ItemID  string
}

func (e *ItemNotInOrderError) Error() string {
	return fmt.Sprintf("item %s not in order %s", e.ItemID, e.OrderID)
}
