// Package serving executes the unit-granular dispense transaction: one item,
// one unit, one atomic store update. Granular transactions let two counters
// serve different items of the same order concurrently without lost updates,
// and make partial fulfilment a first-class state.
package serving

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canteenhq/mealpass/internal/domain/order"
)

// Coordinator serves single units of order items and detects completion.
type Coordinator struct {
	orders order.Repository
	lg     *zap.Logger
	now    func() time.Time
}

// NewCoordinator creates a Coordinator over the given order store.
func NewCoordinator(orders order.Repository, lg *zap.Logger) *Coordinator {
	return &Coordinator{
		orders: orders,
		lg:     lg,
		now:    time.Now,
	}
}

// Result describes the state of the item and order after a successful serve.
type Result struct {
	Order     *order.Order
	ItemID    string
	ServedQty int
	Remaining int
	Completed bool
}

// ServeUnit dispenses exactly one unit of one item against one order. The
// precondition checks, the quantity update, the completion detection, the
// serve-event append, and the inventory consumption all commit in one store
// transaction; any rejection aborts before touching inventory or the ledger.
//
// ServeUnit is deliberately not idempotent: each successful call consumes one
// physical unit. A caller whose call outcome is unknown must check the
// current served quantity before retrying.
func (c *Coordinator) ServeUnit(ctx context.Context, orderID, itemID, serverID string) (*Result, error) {
	now := c.now()
	var res Result

	o, err := c.orders.Update(ctx, orderID, func(o *order.Order) (*order.Mutation, error) {
		// Completed is checked before the per-item quantity: a finished order
		// reports the same rejection no matter which line is targeted.
		if o.Lifecycle == order.LifecycleCompleted {
			return nil, order.ErrAlreadyCompleted
		}
		if o.Payment != order.PaymentSuccess {
			return nil, order.ErrPaymentNotVerified
		}
		if o.Redemption != order.RedemptionUsed {
			return nil, order.ErrNotRedeemed
		}

		it := o.Item(itemID)
		if it == nil {
			return nil, &order.ItemNotInOrderError{OrderID: orderID, ItemID: itemID}
		}
		if it.Remaining() <= 0 {
			return nil, order.ErrFullyServed
		}

		it.ServedQty++
		if o.FullyServed() {
			o.Lifecycle = order.LifecycleCompleted
			o.CompletedAt = &now
		}

		res = Result{
			ItemID:    itemID,
			ServedQty: it.ServedQty,
			Remaining: it.Remaining(),
			Completed: o.Lifecycle == order.LifecycleCompleted,
		}

		return &order.Mutation{
			ServeEvent: &order.ServeEvent{
				ID:       uuid.New().String(),
				OrderID:  orderID,
				ItemID:   itemID,
				Quantity: 1,
				ServerID: serverID,
				ServedAt: now,
			},
			ConsumeItem: itemID,
		}, nil
	})
	if err != nil {
		c.lg.Warn("serve rejected",
			zap.String("order_id", orderID),
			zap.String("item_id", itemID),
			zap.Error(err),
		)
		return nil, err
	}

	res.Order = o
	c.lg.Info("unit served",
		zap.String("order_id", orderID),
		zap.String("item_id", itemID),
		zap.String("server_id", serverID),
		zap.Int("remaining", res.Remaining),
		zap.Bool("completed", res.Completed),
	)
	return &res, nil
}
