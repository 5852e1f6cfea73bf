package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canteenhq/mealpass/internal/domain/order"
	"github.com/canteenhq/mealpass/internal/storage/memory"
)

func seedOrder(t *testing.T, store *memory.Store, o *order.Order) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), o))
}

func baseOrder(id string, payment order.PaymentStatus, lifecycle order.Lifecycle, redemption order.Redemption, items ...order.Item) *order.Order {
	return &order.Order{
		ID:         id,
		HolderID:   "holder-" + id,
		SiteID:     "site-1",
		Method:     order.MethodCash,
		Payment:    payment,
		Lifecycle:  lifecycle,
		Redemption: redemption,
		Items:      items,
		Total:      decimal.RequireFromString("15.00"),
		CreatedAt:  time.Now(),
	}
}

func item(id string, ordered, served int) order.Item {
	return order.Item{
		ItemID:     id,
		Name:       id,
		UnitPrice:  decimal.RequireFromString("15.00"),
		OrderedQty: ordered,
		ServedQty:  served,
	}
}

func TestRedeemable(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, baseOrder("paid", order.PaymentSuccess, order.LifecyclePending, order.RedemptionActive, item("idli", 1, 0)))
	seedOrder(t, store, baseOrder("unpaid-prepaid", order.PaymentPending, order.LifecyclePending, order.RedemptionActive, item("idli", 1, 0)))
	seedOrder(t, store, baseOrder("cash-waiting", order.PaymentPending, order.LifecyclePending, order.RedemptionPendingPayment, item("idli", 1, 0)))
	seedOrder(t, store, baseOrder("redeemed", order.PaymentSuccess, order.LifecycleActive, order.RedemptionUsed, item("idli", 1, 0)))

	p := NewProjector(store)
	got, err := p.Redeemable(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "paid", got[0].ID)
}

func TestOwed(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, baseOrder("serving", order.PaymentSuccess, order.LifecycleActive, order.RedemptionUsed,
		item("idli", 2, 1),
		item("vada", 1, 1),
		item("chai", 3, 0),
	))
	seedOrder(t, store, baseOrder("done", order.PaymentSuccess, order.LifecycleCompleted, order.RedemptionUsed, item("idli", 1, 1)))
	seedOrder(t, store, baseOrder("unredeemed", order.PaymentSuccess, order.LifecyclePending, order.RedemptionActive, item("idli", 5, 0)))

	p := NewProjector(store)
	got, err := p.Owed(context.Background())
	require.NoError(t, err)

	// One row per (order, item) with remaining > 0; fully served lines and
	// completed orders never appear.
	require.Len(t, got, 2)
	byItem := map[string]OwedItem{}
	for _, row := range got {
		byItem[row.ItemID] = row
	}
	assert.Equal(t, 1, byItem["idli"].Remaining)
	assert.Equal(t, 3, byItem["chai"].Remaining)
	assert.NotContains(t, byItem, "vada")
	assert.Equal(t, "serving", byItem["idli"].OrderID)
}

func TestOwed_Empty(t *testing.T) {
	p := NewProjector(memory.NewStore())

	got, err := p.Owed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
