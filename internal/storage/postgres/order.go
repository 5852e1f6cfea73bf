package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/canteenhq/mealpass/internal/domain/order"
)

const orderColumns = `id, holder_id, site_id, payment_method, payment_status,
	lifecycle, redemption, payment_ref, token, token_issued_at, items, total,
	approved_by, rejected_by, approved_at, rejected_at, redeemed_at,
	completed_at, created_at`

const (
	createOrderSQL = `INSERT INTO orders (id, holder_id, site_id, payment_method,
		payment_status, lifecycle, redemption, payment_ref, token, token_issued_at,
		items, total, approved_by, rejected_by, approved_at, rejected_at,
		redeemed_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	// FOR UPDATE pins the row for the duration of the transaction so that a
	// concurrent Update on the same order blocks until this one commits or
	// rolls back.
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	updateOrderSQL = `UPDATE orders SET payment_status = $2, lifecycle = $3,
		redemption = $4, payment_ref = $5, token = $6, token_issued_at = $7,
		items = $8, approved_by = $9, rejected_by = $10, approved_at = $11,
		rejected_at = $12, redeemed_at = $13, completed_at = $14
		WHERE id = $1`

	listByRedemptionSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE redemption = $1 ORDER BY created_at`

	insertServeEventSQL = `INSERT INTO serve_events (id, order_id, item_id, quantity, server_id, served_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	consumeInventorySQL = `UPDATE items SET consumed = consumed + 1 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items are serialized to JSON for the
// JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, createOrderSQL, args...); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order by id, or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// Update runs fn against the row locked FOR UPDATE and commits the new state
// plus any side writes in the same transaction. A callback error rolls the
// transaction back with no observable effect.
func (r *OrderRepository) Update(ctx context.Context, id string, fn order.UpdateFunc) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	o, err := scanOrder(tx.QueryRow(ctx, getOrderForUpdateSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", id, err)
	}

	mut, err := fn(o)
	if err != nil {
		return nil, err
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}

	var tokenValue *string
	var tokenIssuedAt *time.Time
	if o.Token != nil {
		tokenValue = &o.Token.Value
		tokenIssuedAt = &o.Token.IssuedAt
	}

	_, err = tx.Exec(ctx, updateOrderSQL,
		o.ID, o.Payment, o.Lifecycle, o.Redemption, o.PaymentRef,
		tokenValue, tokenIssuedAt, itemsJSON,
		o.ApprovedBy, o.RejectedBy, o.ApprovedAt, o.RejectedAt,
		o.RedeemedAt, o.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}

	if mut != nil {
		if ev := mut.ServeEvent; ev != nil {
			_, err = tx.Exec(ctx, insertServeEventSQL,
				ev.ID, ev.OrderID, ev.ItemID, ev.Quantity, ev.ServerID, ev.ServedAt)
			if err != nil {
				return nil, fmt.Errorf("appending serve event: %w", err)
			}
		}
		if mut.ConsumeItem != "" {
			if _, err := tx.Exec(ctx, consumeInventorySQL, mut.ConsumeItem); err != nil {
				return nil, fmt.Errorf("consuming inventory for %q: %w", mut.ConsumeItem, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing order %q: %w", id, err)
	}
	return o, nil
}

// ListByRedemption returns all orders with the given redemption status,
// oldest first.
func (r *OrderRepository) ListByRedemption(ctx context.Context, status order.Redemption) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listByRedemptionSQL, status)
	if err != nil {
		return nil, fmt.Errorf("listing orders by redemption %q: %w", status, err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	return out, nil
}

func orderArgs(o *order.Order) ([]any, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}

	var tokenValue *string
	var tokenIssuedAt *time.Time
	if o.Token != nil {
		tokenValue = &o.Token.Value
		tokenIssuedAt = &o.Token.IssuedAt
	}

	return []any{
		o.ID, o.HolderID, o.SiteID, o.Method, o.Payment, o.Lifecycle,
		o.Redemption, o.PaymentRef, tokenValue, tokenIssuedAt, itemsJSON,
		o.Total, o.ApprovedBy, o.RejectedBy, o.ApprovedAt, o.RejectedAt,
		o.RedeemedAt, o.CompletedAt, o.CreatedAt,
	}, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		total         decimal.Decimal
		tokenValue    *string
		tokenIssuedAt *time.Time
	)

	err := row.Scan(
		&o.ID, &o.HolderID, &o.SiteID, &o.Method, &o.Payment, &o.Lifecycle,
		&o.Redemption, &o.PaymentRef, &tokenValue, &tokenIssuedAt, &itemsJSON,
		&total, &o.ApprovedBy, &o.RejectedBy, &o.ApprovedAt, &o.RejectedAt,
		&o.RedeemedAt, &o.CompletedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Total = total
	if tokenValue != nil {
		o.Token = &order.Token{Value: *tokenValue}
		if tokenIssuedAt != nil {
			o.Token.IssuedAt = *tokenIssuedAt
		}
	}
	return &o, nil
}
