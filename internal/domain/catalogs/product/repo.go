package product

import (
	"context"

	"lotledger/internal/core/id"
	"lotledger/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// FindByBarcode retrieves a product by barcode.
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)

	// FindByNameAndWarehouse retrieves a product by exact name (and barcode,
	// when non-empty) within one warehouse. Used by transfers to locate the
	// destination counterpart.
	FindByNameAndWarehouse(ctx context.Context, name, barcode, warehouseID string) (*Product, error)

	// GetForUpdate retrieves a product with a row lock. Must be called
	// inside a transaction; ledger operations lock the product before
	// touching its lots.
	GetForUpdate(ctx context.Context, id id.ID) (*Product, error)
}
