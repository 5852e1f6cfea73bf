// Package catalog exposes the cafeteria item registry. Menu administration
// is an external concern; this package only reads what the serving engine
// needs to price carts and track stock.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("item not found")

// Item represents a dispensable cafeteria item.
type Item struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	Stock     int
}

// Repository defines read operations for the item registry.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}
