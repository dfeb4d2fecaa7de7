package openunits

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines operations for the open-unit ledger.
type Repository interface {
	// Create inserts an open unit.
	Create(ctx context.Context, unit *OpenUnit) error

	// FindByProduct returns open units for a product ordered by opened_at
	// ascending (oldest consumed first).
	FindByProduct(ctx context.Context, productID string) ([]*OpenUnit, error)

	// FindByProductForUpdate is FindByProduct with row locks.
	FindByProductForUpdate(ctx context.Context, productID string) ([]*OpenUnit, error)

	// DecrementDrops subtracts drops from an open unit.
	DecrementDrops(ctx context.Context, unitID id.ID, drops int64) error

	// Delete removes a depleted open unit. Zero-drop units never persist.
	Delete(ctx context.Context, unitID id.ID) error

	// List returns open units for inspection endpoints.
	List(ctx context.Context, filter ListFilter) ([]*OpenUnit, error)
}

// ListFilter narrows open-unit listings.
type ListFilter struct {
	ProductID   string
	WarehouseID string
	Limit       int
	Offset      int
}
