// Package order owns the order entity, its three-axis state machine
// (payment, lifecycle, redemption) and the transactional store contract
// everything else coordinates through.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	MethodUPI  PaymentMethod = "UPI"
	MethodCard PaymentMethod = "CARD"
	MethodNet  PaymentMethod = "NET"
	MethodCash PaymentMethod = "CASH"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodUPI, MethodCard, MethodNet, MethodCash:
		return true
	}
	return false
}

// Prepaid reports whether the method settles through an online payment
// collaborator rather than a cashier.
func (m PaymentMethod) Prepaid() bool {
	return m != MethodCash
}

// PaymentStatus tracks the payment axis. It transitions PENDING→SUCCESS or
// PENDING→REJECTED exactly once.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Lifecycle tracks the fulfilment axis. COMPLETED and CANCELLED are terminal
// and retained for audit.
type Lifecycle string

const (
	LifecyclePending   Lifecycle = "PENDING"
	LifecycleActive    Lifecycle = "ACTIVE"
	LifecycleCompleted Lifecycle = "COMPLETED"
	LifecycleCancelled Lifecycle = "CANCELLED"
)

// Redemption tracks whether the token may be presented. USED is monotonic:
// once set no transaction reverts it.
type Redemption string

const (
	RedemptionPendingPayment Redemption = "PENDING_PAYMENT"
	RedemptionActive         Redemption = "ACTIVE"
	RedemptionUsed           Redemption = "USED"
	RedemptionExpired        Redemption = "EXPIRED"
	RedemptionRejected       Redemption = "REJECTED"
)

// Token is the signed credential persisted on the order once payment
// succeeds. Its consumption state lives on the order's Redemption axis.
type Token struct {
	Value    string
	IssuedAt time.Time
}

// Item is one line of an order. OrderedQty is immutable after creation;
// ServedQty only ever increases. The remaining quantity is always derived,
// never stored, so it cannot drift.
type Item struct {
	ItemID     string          `json:"item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	OrderedQty int             `json:"ordered_qty"`
	ServedQty  int             `json:"served_qty"`
}

// Remaining is the quantity still owed to the customer.
func (i Item) Remaining() int {
	return i.OrderedQty - i.ServedQty
}

// Order is the unit of a customer's purchase.
type Order struct {
	ID         string
	HolderID   string
	SiteID     string
	Method     PaymentMethod
	Payment    PaymentStatus
	Lifecycle  Lifecycle
	Redemption Redemption
	PaymentRef string
	Token      *Token
	Items      []Item
	Total      decimal.Decimal

	ApprovedBy  string
	RejectedBy  string
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	RedeemedAt  *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Item returns a pointer into Items for the given item id, or nil.
func (o *Order) Item(itemID string) *Item {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// FullyServed reports whether every item has zero remaining quantity.
func (o *Order) FullyServed() bool {
	for i := range o.Items {
		if o.Items[i].Remaining() > 0 {
			return false
		}
	}
	return true
}

// ServeEvent is an immutable record of one dispensed unit.
type ServeEvent struct {
	ID       string
	OrderID  string
	ItemID   string
	Quantity int
	ServerID string
	ServedAt time.Time
}

// Mutation describes side writes that must commit in the same transaction as
// the order update that produced them.
type Mutation struct {
	// ServeEvent, when non-nil, is appended to the serve ledger.
	ServeEvent *ServeEvent
	// ConsumeItem, when non-empty, increments the named item's inventory
	// consumption counter by exactly one.
	ConsumeItem string
}

// UpdateFunc mutates an order inside a store transaction. Returning an error
// aborts the transaction with no observable effect. The *Order passed in is
// private to the transaction; implementations must not leak it.
type UpdateFunc func(o *Order) (*Mutation, error)

// Repository is the order store contract. Implementations must provide
// all-or-nothing semantics for Update: the read, the callback's decision, and
// every resulting write happen under isolation such that two concurrent
// Updates of the same order serialize and neither observes a partial state.
// Operations on different orders are independent.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*Order, error)
	ListByRedemption(ctx context.Context, status Redemption) ([]Order, error)
}
