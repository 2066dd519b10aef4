package order

import (
	"context"
	"time"
)

// Repository is the read/write handle onto the host's order store. Checkout
// flows load one order, mutate it, and write it back; the reconciliation
// sweeper additionally enumerates stale processing orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// ListStaleProcessing returns processing orders untouched since cutoff,
	// oldest first.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
}
