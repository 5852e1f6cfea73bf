package memory

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canteenhq/mealpass/internal/domain/catalog"
	"github.com/canteenhq/mealpass/internal/domain/order"
	"github.com/canteenhq/mealpass/internal/domain/serving"
	"github.com/canteenhq/mealpass/internal/domain/token"
)

func testCatalog() *Catalog {
	return NewCatalog(
		catalog.Item{ID: "idli", Name: "Idli", UnitPrice: decimal.RequireFromString("15.00"), UnitCost: decimal.RequireFromString("5.00"), Stock: 100},
		catalog.Item{ID: "vada", Name: "Vada", UnitPrice: decimal.RequireFromString("12.00"), UnitCost: decimal.RequireFromString("4.00"), Stock: 100},
	)
}

func newFixture(t *testing.T) (*Store, *order.Engine, *serving.Coordinator) {
	t.Helper()

	store := NewStore()
	codec := token.NewCodec([]byte("memory-test-secret"))
	engine := order.NewEngine(store, testCatalog(), codec, zap.NewNop())
	coordinator := serving.NewCoordinator(store, zap.NewNop())
	return store, engine, coordinator
}

func createAndConfirm(t *testing.T, e *order.Engine, items ...order.ItemRequest) *order.Order {
	t.Helper()

	ctx := context.Background()
	o, err := e.CreateOrder(ctx, order.CreateRequest{
		HolderID: "holder-1",
		SiteID:   "site-1",
		Method:   order.MethodCash,
		Items:    items,
	})
	require.NoError(t, err)

	confirmed, err := e.ConfirmCashPayment(ctx, o.ID, "cashier-1")
	require.NoError(t, err)
	return confirmed
}

// Scenario: cash order for 2 Idli, confirmed, redeemed, served to completion.
func TestCashOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	store, engine, coordinator := newFixture(t)

	confirmed := createAndConfirm(t, engine, order.ItemRequest{ItemID: "idli", Quantity: 2})
	assert.Equal(t, order.PaymentSuccess, confirmed.Payment)
	assert.Equal(t, order.RedemptionActive, confirmed.Redemption)
	require.NotNil(t, confirmed.Token)

	redeemed, err := engine.RedeemToken(ctx, confirmed.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, order.RedemptionUsed, redeemed.Redemption)
	assert.Equal(t, order.LifecycleActive, redeemed.Lifecycle)

	res, err := coordinator.ServeUnit(ctx, redeemed.ID, "idli", "station-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)
	assert.False(t, res.Completed)

	res, err = coordinator.ServeUnit(ctx, redeemed.ID, "idli", "station-1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, res.Completed)

	_, err = coordinator.ServeUnit(ctx, redeemed.ID, "idli", "station-1")
	require.ErrorIs(t, err, order.ErrAlreadyCompleted)

	final, err := store.Get(ctx, redeemed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.LifecycleCompleted, final.Lifecycle)
	assert.Equal(t, 2, final.Items[0].ServedQty)
	require.NotNil(t, final.CompletedAt)
	assert.Len(t, store.Events(), 2)
	assert.Equal(t, 2, store.Consumed("idli"))
}

// A cart repeating the same item on two lines collapses into one line, so
// serving resolves one counter and the order can still reach COMPLETED.
func TestDuplicateLineOrder_ServesToCompletion(t *testing.T) {
	ctx := context.Background()
	store, engine, coordinator := newFixture(t)

	confirmed := createAndConfirm(t, engine,
		order.ItemRequest{ItemID: "idli", Quantity: 1},
		order.ItemRequest{ItemID: "idli", Quantity: 1},
	)
	require.Len(t, confirmed.Items, 1)
	assert.Equal(t, 2, confirmed.Items[0].OrderedQty)

	_, err := engine.RedeemToken(ctx, confirmed.Token.Value)
	require.NoError(t, err)

	res, err := coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)
	assert.False(t, res.Completed)

	res, err = coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-1")
	require.NoError(t, err)
	assert.True(t, res.Completed)

	final, err := store.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.LifecycleCompleted, final.Lifecycle)
	assert.Equal(t, 2, store.Consumed("idli"))
}

// A third serve against a still-active order with a fully served line reports
// FullyServed rather than AlreadyCompleted.
func TestServe_FullyServedLine(t *testing.T) {
	ctx := context.Background()
	_, engine, coordinator := newFixture(t)

	confirmed := createAndConfirm(t, engine,
		order.ItemRequest{ItemID: "idli", Quantity: 1},
		order.ItemRequest{ItemID: "vada", Quantity: 1},
	)
	_, err := engine.RedeemToken(ctx, confirmed.Token.Value)
	require.NoError(t, err)

	_, err = coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-1")
	require.NoError(t, err)

	_, err = coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-1")
	require.ErrorIs(t, err, order.ErrFullyServed)
}

// N concurrent redemption attempts with the same token: exactly one wins.
func TestConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	_, engine, _ := newFixture(t)

	confirmed := createAndConfirm(t, engine, order.ItemRequest{ItemID: "idli", Quantity: 1})

	const attempts = 32
	var (
		mu        sync.Mutex
		successes int
		used      int
	)

	g := new(errgroup.Group)
	for range attempts {
		g.Go(func() error {
			_, err := engine.RedeemToken(ctx, confirmed.Token.Value)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, order.ErrAlreadyUsed):
				used++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, used)
}

// Two stations serve the last remaining unit simultaneously: one succeeds,
// the other observes a terminal rejection, and the count never goes negative.
func TestConcurrentServe_LastUnit(t *testing.T) {
	ctx := context.Background()
	store, engine, coordinator := newFixture(t)

	confirmed := createAndConfirm(t, engine, order.ItemRequest{ItemID: "idli", Quantity: 1})
	_, err := engine.RedeemToken(ctx, confirmed.Token.Value)
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		successes int
		rejected  int
	)

	g := new(errgroup.Group)
	for i := range 2 {
		station := i
		g.Go(func() error {
			_, err := coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-"+strconv.Itoa(station+1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, order.ErrFullyServed), errors.Is(err, order.ErrAlreadyCompleted):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejected)

	final, err := store.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Items[0].ServedQty)
	assert.Equal(t, 0, final.Items[0].Remaining())
	assert.Equal(t, 1, store.Consumed("idli"))
	assert.Len(t, store.Events(), 1)
}

// Hammering serveUnit from many goroutines must never push served past
// ordered, and consumption must equal exactly the successful serves.
func TestConcurrentServe_NeverOverserves(t *testing.T) {
	ctx := context.Background()
	store, engine, coordinator := newFixture(t)

	const ordered = 5
	confirmed := createAndConfirm(t, engine, order.ItemRequest{ItemID: "idli", Quantity: ordered})
	_, err := engine.RedeemToken(ctx, confirmed.Token.Value)
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		successes int
	)

	g := new(errgroup.Group)
	for range 20 {
		g.Go(func() error {
			_, err := coordinator.ServeUnit(ctx, confirmed.ID, "idli", "station-1")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return nil
			}
			if errors.Is(err, order.ErrFullyServed) || errors.Is(err, order.ErrAlreadyCompleted) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, ordered, successes)

	final, err := store.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, ordered, final.Items[0].ServedQty)
	assert.LessOrEqual(t, final.Items[0].ServedQty, final.Items[0].OrderedQty)
	assert.Equal(t, order.LifecycleCompleted, final.Lifecycle)
	assert.Equal(t, ordered, store.Consumed("idli"))
	assert.Len(t, store.Events(), ordered)
}

// Concurrent confirm and reject of the same PENDING cash order: exactly one
// resolution wins, and the loser's stamp never lands.
func TestConcurrentConfirmReject(t *testing.T) {
	ctx := context.Background()
	store, engine, _ := newFixture(t)

	o, err := engine.CreateOrder(ctx, order.CreateRequest{
		HolderID: "holder-1",
		SiteID:   "site-1",
		Method:   order.MethodCash,
		Items:    []order.ItemRequest{{ItemID: "idli", Quantity: 1}},
	})
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		resolved  int
		conflicts int
	)
	record := func(err error) error {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, order.ErrAlreadyProcessed):
			conflicts++
		default:
			return err
		}
		return nil
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := engine.ConfirmCashPayment(ctx, o.ID, "cashier-1")
		return record(err)
	})
	g.Go(func() error {
		_, err := engine.RejectCashPayment(ctx, o.ID, "cashier-2")
		return record(err)
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, conflicts)

	final, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	switch final.Payment {
	case order.PaymentSuccess:
		assert.NotNil(t, final.Token)
		assert.Empty(t, final.RejectedBy)
		assert.Nil(t, final.RejectedAt)
	case order.PaymentRejected:
		assert.Nil(t, final.Token)
		assert.Empty(t, final.ApprovedBy)
		assert.Equal(t, order.LifecycleCancelled, final.Lifecycle)
	default:
		t.Fatalf("order left unresolved: %s", final.Payment)
	}
}

// A failed Update callback must leave the stored order untouched.
func TestUpdate_AbortsCleanly(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Create(ctx, &order.Order{
		ID:         "o1",
		Payment:    order.PaymentPending,
		Lifecycle:  order.LifecyclePending,
		Redemption: order.RedemptionPendingPayment,
		Items: []order.Item{{
			ItemID:     "idli",
			OrderedQty: 2,
		}},
	}))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "o1", func(o *order.Order) (*order.Mutation, error) {
		o.Payment = order.PaymentSuccess
		o.Items[0].ServedQty = 2
		return &order.Mutation{ConsumeItem: "idli"}, boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, got.Payment)
	assert.Equal(t, 0, got.Items[0].ServedQty)
	assert.Zero(t, store.Consumed("idli"))
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestListByRedemption(t *testing.T) {
	ctx := context.Background()
	store, engine, _ := newFixture(t)

	a := createAndConfirm(t, engine, order.ItemRequest{ItemID: "idli", Quantity: 1})
	_, err := engine.CreateOrder(ctx, order.CreateRequest{
		HolderID: "holder-2",
		SiteID:   "site-1",
		Method:   order.MethodCash,
		Items:    []order.ItemRequest{{ItemID: "vada", Quantity: 1}},
	})
	require.NoError(t, err)

	active, err := store.ListByRedemption(ctx, order.RedemptionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	waiting, err := store.ListByRedemption(ctx, order.RedemptionPendingPayment)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}
