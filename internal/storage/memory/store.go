// Package memory provides in-process implementations of the storage
// contracts. The order store gives the same all-or-nothing Update semantics
// as the PostgreSQL implementation, which makes it suitable for the
// concurrency tests and for running the engine without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/canteenhq/mealpass/internal/domain/catalog"
	"github.com/canteenhq/mealpass/internal/domain/order"
)

var _ order.Repository = (*Store)(nil)

// Store is an in-memory order.Repository. A single mutex serializes every
// mutation, which trivially satisfies the serializable-isolation contract:
// Update reads, decides, and writes while holding the lock, and a failed
// callback leaves the stored order untouched because the callback only ever
// sees a private clone.
type Store struct {
	mu       sync.RWMutex
	orders   map[string]*order.Order
	events   []order.ServeEvent
	consumed map[string]int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]*order.Order),
		consumed: make(map[string]int),
	}
}

// Create persists a new order.
func (s *Store) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = cloneOrder(o)
	return nil
}

// Get returns a snapshot of the order, or order.ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// Update applies fn to a private clone of the order and commits the clone
// plus any side writes only when fn succeeds.
func (s *Store) Update(_ context.Context, id string, fn order.UpdateFunc) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	draft := cloneOrder(stored)
	mut, err := fn(draft)
	if err != nil {
		return nil, err
	}

	s.orders[id] = draft
	if mut != nil {
		if mut.ServeEvent != nil {
			s.events = append(s.events, *mut.ServeEvent)
		}
		if mut.ConsumeItem != "" {
			s.consumed[mut.ConsumeItem]++
		}
	}
	return cloneOrder(draft), nil
}

// ListByRedemption returns snapshots of all orders with the given redemption
// status, oldest first.
func (s *Store) ListByRedemption(_ context.Context, status order.Redemption) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []order.Order
	for _, o := range s.orders {
		if o.Redemption == status {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Events returns a copy of the serve-event ledger.
func (s *Store) Events() []order.ServeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]order.ServeEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Consumed returns the inventory consumption counter for an item.
func (s *Store) Consumed(itemID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.consumed[itemID]
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = make([]order.Item, len(o.Items))
	copy(c.Items, o.Items)
	if o.Token != nil {
		t := *o.Token
		c.Token = &t
	}
	c.ApprovedAt = cloneTime(o.ApprovedAt)
	c.RejectedAt = cloneTime(o.RejectedAt)
	c.RedeemedAt = cloneTime(o.RedeemedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ catalog.Repository = (*Catalog)(nil)

// Catalog is an in-memory catalog.Repository seeded at construction.
type Catalog struct {
	items []catalog.Item
}

// NewCatalog creates a Catalog holding the given items.
func NewCatalog(items ...catalog.Item) *Catalog {
	return &Catalog{items: items}
}

// List returns all items.
func (c *Catalog) List(_ context.Context) ([]catalog.Item, error) {
	out := make([]catalog.Item, len(c.items))
	copy(out, c.items)
	return out, nil
}

// GetByIDs returns the items matching the given ids; missing ids are simply
// absent from the result.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Item, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []catalog.Item
	for _, it := range c.items {
		if want[it.ID] {
			out = append(out, it)
		}
	}
	return out, nil
}
