package lots

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines operations for the lot ledger.
type Repository interface {
	// Append inserts one lot.
	Append(ctx context.Context, lot *Lot) error

	// AppendBatch inserts many lots in one round-trip (bulk import).
	AppendBatch(ctx context.Context, lots []*Lot) error

	// GetByID retrieves one lot.
	GetByID(ctx context.Context, lotID id.ID) (*Lot, error)

	// GetByIDForUpdate retrieves one lot with a row lock.
	GetByIDForUpdate(ctx context.Context, lotID id.ID) (*Lot, error)

	// FindActive returns lots with remaining quantity > 0 for a product,
	// ordered by purchased_at ascending (FIFO order, id as tie-break).
	// warehouseID narrows the search when non-empty.
	FindActive(ctx context.Context, productID, warehouseID string) ([]*Lot, error)

	// FindActiveForUpdate is FindActive with row locks. Must run inside a
	// transaction; auto-allocation locks the lots it walks.
	FindActiveForUpdate(ctx context.Context, productID, warehouseID string) ([]*Lot, error)

	// Consume decrements remaining_quantity. Returns an error when the lot
	// does not hold enough; the caller validates first, so hitting the
	// guard means a concurrent writer got there in between.
	Consume(ctx context.Context, lotID id.ID, qty types.Quantity) error

	// SumActive returns the total remaining quantity across active lots.
	SumActive(ctx context.Context, productID string) (types.Quantity, error)

	// List returns lots for inspection endpoints.
	List(ctx context.Context, filter ListFilter) ([]*Lot, error)
}

// ListFilter narrows lot listings.
type ListFilter struct {
	ProductID   string
	WarehouseID string
	Source      *Source
	ActiveOnly  bool
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
