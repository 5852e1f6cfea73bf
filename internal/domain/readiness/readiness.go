// Package readiness derives the two live serving-floor views from committed
// order state. It holds no state of its own: every call recomputes from the
// store, so a unit served a moment ago can never reappear as owed.
package readiness

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/canteenhq/mealpass/internal/domain/order"
)

// OwedItem is one (order, item) pair still owed to a redeemed customer.
type OwedItem struct {
	OrderID   string
	HolderID  string
	SiteID    string
	ItemID    string
	Name      string
	Remaining int
}

// Projector computes read-only views over the order store. These views are
// for display and dispatch only; they are never consulted for authorization.
type Projector struct {
	orders order.Repository
}

// NewProjector creates a Projector over the given order store.
func NewProjector(orders order.Repository) *Projector {
	return &Projector{orders: orders}
}

// Redeemable lists orders awaiting a scan: payment succeeded and the token
// has not been presented.
func (p *Projector) Redeemable(ctx context.Context) ([]order.Order, error) {
	active, err := p.orders.ListByRedemption(ctx, order.RedemptionActive)
	if err != nil {
		return nil, errors.Wrap(err, "list active")
	}

	out := make([]order.Order, 0, len(active))
	for _, o := range active {
		if o.Payment == order.PaymentSuccess {
			out = append(out, o)
		}
	}
	return out, nil
}

// Owed flattens every redeemed-but-incomplete order into one row per
// (order, item) with remaining quantity above zero. Serving stations iterate
// this to decide what to dispense next.
func (p *Projector) Owed(ctx context.Context) ([]OwedItem, error) {
	used, err := p.orders.ListByRedemption(ctx, order.RedemptionUsed)
	if err != nil {
		return nil, errors.Wrap(err, "list redeemed")
	}

	var out []OwedItem
	for _, o := range used {
		if o.Lifecycle == order.LifecycleCompleted {
			continue
		}
		for _, it := range o.Items {
			if it.Remaining() <= 0 {
				continue
			}
			out = append(out, OwedItem{
				OrderID:   o.ID,
				HolderID:  o.HolderID,
				SiteID:    o.SiteID,
				ItemID:    it.ItemID,
				Name:      it.Name,
				Remaining: it.Remaining(),
			})
		}
	}
	return out, nil
}
