package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/canteenhq/mealpass/internal/domain/catalog"
	"github.com/canteenhq/mealpass/internal/domain/token"
)

// Engine owns the order state machine: creation, payment resolution, token
// issuance, and redemption. Every transition is a single atomic store update;
// failed transitions leave the order untouched.
type Engine struct {
	orders  Repository
	catalog catalog.Repository
	codec   *token.Codec
	lg      *zap.Logger
	now     func() time.Time
}

// NewEngine creates an Engine with the required dependencies.
func NewEngine(orders Repository, cat catalog.Repository, codec *token.Codec, lg *zap.Logger) *Engine {
	return &Engine{
		orders:  orders,
		catalog: cat,
		codec:   codec,
		lg:      lg,
		now:     time.Now,
	}
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	HolderID string
	SiteID   string
	Method   PaymentMethod
	Items    []ItemRequest
}

// ItemRequest is one requested line item.
type ItemRequest struct {
	ItemID   string
	Quantity int
}

// CreateOrder validates the cart, prices it from the catalog, and persists a
// new PENDING order. Cash orders start with redemption PENDING_PAYMENT;
// prepaid orders start ACTIVE. No token is issued here: a token exists only
// once payment has succeeded.
func (e *Engine) CreateOrder(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !req.Method.Valid() {
		return nil, &UnknownMethodError{Method: req.Method}
	}

	// Repeated item ids collapse into one line. Order.Item resolves lines by
	// id, so each item must appear exactly once.
	merged := make([]ItemRequest, 0, len(req.Items))
	lineFor := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ItemID: item.ItemID}
		}
		if i, ok := lineFor[item.ItemID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		lineFor[item.ItemID] = len(merged)
		merged = append(merged, item)
	}

	ids := make([]string, len(merged))
	for i, item := range merged {
		ids[i] = item.ItemID
	}

	fetched, err := e.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get items")
	}
	byID := make(map[string]catalog.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	items := make([]Item, len(merged))
	total := decimal.Zero
	for i, item := range merged {
		ci, ok := byID[item.ItemID]
		if !ok {
			return nil, &UnknownItemError{ItemID: item.ItemID}
		}
		items[i] = Item{
			ItemID:     ci.ID,
			Name:       ci.Name,
			UnitPrice:  ci.UnitPrice,
			UnitCost:   ci.UnitCost,
			OrderedQty: item.Quantity,
		}
		total = total.Add(ci.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if !total.IsPositive() {
		return nil, ErrZeroTotal
	}

	redemption := RedemptionPendingPayment
	if req.Method.Prepaid() {
		redemption = RedemptionActive
	}

	o := &Order{
		ID:         uuid.New().String(),
		HolderID:   req.HolderID,
		SiteID:     req.SiteID,
		Method:     req.Method,
		Payment:    PaymentPending,
		Lifecycle:  LifecyclePending,
		Redemption: redemption,
		Items:      items,
		Total:      total.Round(2),
		CreatedAt:  e.now(),
	}
	if err := e.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	e.lg.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("method", string(o.Method)),
		zap.String("total", o.Total.String()),
	)
	return o, nil
}

// ConfirmCashPayment marks a cash order as paid. The payment flip, the token
// issuance, and the approver stamp commit in one update, so a reader can
// never observe SUCCESS without a token. A second call observes
// ErrAlreadyProcessed instead of a duplicate effect.
func (e *Engine) ConfirmCashPayment(ctx context.Context, orderID, approver string) (*Order, error) {
	now := e.now()
	o, err := e.orders.Update(ctx, orderID, func(o *Order) (*Mutation, error) {
		if o.Method != MethodCash {
			return nil, ErrNotCashOrder
		}
		if err := e.confirmPayment(o); err != nil {
			return nil, err
		}
		o.ApprovedBy = approver
		o.ApprovedAt = &now
		return nil, nil
	})
	if err != nil {
		e.logRejected("confirm cash payment", orderID, err)
		return nil, err
	}

	e.lg.Info("cash payment confirmed",
		zap.String("order_id", orderID),
		zap.String("approved_by", approver),
	)
	return o, nil
}

// RejectCashPayment is the symmetric terminal transition: the order is
// cancelled and no token is ever issued for it.
func (e *Engine) RejectCashPayment(ctx context.Context, orderID, approver string) (*Order, error) {
	now := e.now()
	o, err := e.orders.Update(ctx, orderID, func(o *Order) (*Mutation, error) {
		if o.Method != MethodCash {
			return nil, ErrNotCashOrder
		}
		if o.Payment != PaymentPending {
			return nil, ErrAlreadyProcessed
		}
		o.Payment = PaymentRejected
		o.Lifecycle = LifecycleCancelled
		o.Redemption = RedemptionRejected
		o.RejectedBy = approver
		o.RejectedAt = &now
		return nil, nil
	})
	if err != nil {
		e.logRejected("reject cash payment", orderID, err)
		return nil, err
	}

	e.lg.Info("cash payment rejected",
		zap.String("order_id", orderID),
		zap.String("rejected_by", approver),
	)
	return o, nil
}

// ConfirmOnlinePayment records a successful prepaid settlement reported by
// the payment collaborator and issues the token. Same idempotency guard as
// the cash path.
func (e *Engine) ConfirmOnlinePayment(ctx context.Context, orderID, reference string) (*Order, error) {
	o, err := e.orders.Update(ctx, orderID, func(o *Order) (*Mutation, error) {
		if !o.Method.Prepaid() {
			return nil, ErrNotPrepaidOrder
		}
		if err := e.confirmPayment(o); err != nil {
			return nil, err
		}
		o.PaymentRef = reference
		return nil, nil
	})
	if err != nil {
		e.logRejected("confirm online payment", orderID, err)
		return nil, err
	}

	e.lg.Info("online payment confirmed",
		zap.String("order_id", orderID),
		zap.String("reference", reference),
	)
	return o, nil
}

// RejectOnlinePayment records a failed prepaid settlement. The order is
// cancelled; no token is issued.
func (e *Engine) RejectOnlinePayment(ctx context.Context, orderID, reference string) (*Order, error) {
	now := e.now()
	o, err := e.orders.Update(ctx, orderID, func(o *Order) (*Mutation, error) {
		if !o.Method.Prepaid() {
			return nil, ErrNotPrepaidOrder
		}
		if o.Payment != PaymentPending {
			return nil, ErrAlreadyProcessed
		}
		o.Payment = PaymentRejected
		o.Lifecycle = LifecycleCancelled
		o.Redemption = RedemptionRejected
		o.PaymentRef = reference
		o.RejectedAt = &now
		return nil, nil
	})
	if err != nil {
		e.logRejected("reject online payment", orderID, err)
		return nil, err
	}
	return o, nil
}

// confirmPayment applies the shared PENDING→SUCCESS transition and issues the
// token inside the caller's transaction.
func (e *Engine) confirmPayment(o *Order) error {
	if o.Payment != PaymentPending {
		return ErrAlreadyProcessed
	}

	raw, claims, err := e.codec.Issue(o.ID, o.HolderID, o.SiteID)
	if err != nil {
		return errors.Wrap(err, "issue token")
	}

	o.Payment = PaymentSuccess
	o.Redemption = RedemptionActive
	o.Token = &Token{Value: raw, IssuedAt: claims.IssuedAt}
	return nil
}

// RedeemToken verifies the presented credential and atomically consumes it.
// The checks run in a fixed order inside one store transaction, so N
// concurrent attempts with the same token produce exactly one success; the
// rest observe ErrAlreadyUsed.
func (e *Engine) RedeemToken(ctx context.Context, raw string) (*Order, error) {
	claims, err := e.codec.Verify(raw)
	if err != nil {
		e.lg.Warn("token rejected", zap.Error(err))
		return nil, err
	}

	now := e.now()
	o, err := e.orders.Update(ctx, claims.OrderID, func(o *Order) (*Mutation, error) {
		if o.Payment != PaymentSuccess || o.Token == nil {
			return nil, ErrPaymentNotVerified
		}
		if o.Redemption == RedemptionUsed {
			return nil, ErrAlreadyUsed
		}
		if o.Redemption != RedemptionActive {
			return nil, ErrNotActive
		}
		if o.Lifecycle == LifecycleCompleted {
			return nil, ErrAlreadyCompleted
		}

		o.Redemption = RedemptionUsed
		o.Lifecycle = LifecycleActive
		o.RedeemedAt = &now
		return nil, nil
	})
	if err != nil {
		e.logRejected("redeem token", claims.OrderID, err)
		return nil, err
	}

	e.lg.Info("token redeemed",
		zap.String("order_id", o.ID),
		zap.String("holder_id", o.HolderID),
	)
	return o, nil
}

func (e *Engine) logRejected(op, orderID string, err error) {
	e.lg.Warn("transition rejected",
		zap.String("op", op),
		zap.String("order_id", orderID),
		zap.Error(err),
	)
}
