package customer

import (
	"context"

	"lotledger/internal/domain"
)

// Repository defines the interface for Customer persistence.
type Repository interface {
	domain.CatalogRepository[*Customer]

	// FindByName retrieves a customer by exact name.
	FindByName(ctx context.Context, name string) (*Customer, error)
}
