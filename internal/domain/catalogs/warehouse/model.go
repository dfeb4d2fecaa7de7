// Package warehouse provides the Warehouse catalog.
// Warehouses represent physical locations for storing goods.
package warehouse

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
)

// WarehouseType defines the type of warehouse.
type WarehouseType string

const (
	TypeMain       WarehouseType = "main"
	TypeRetail     WarehouseType = "retail"
	TypeProduction WarehouseType = "production"
	TypeTransit    WarehouseType = "transit"
)

// Warehouse represents a storage location for goods.
type Warehouse struct {
	entity.Catalog

	// Type defines the warehouse category
	Type WarehouseType `db:"type" json:"type"`

	// Address is the physical address
	Address *string `db:"address" json:"address,omitempty"`

	// IsActive indicates if warehouse is operational
	IsActive bool `db:"is_active" json:"isActive"`

	// IsDefault indicates if this is the default warehouse
	IsDefault bool `db:"is_default" json:"isDefault"`

	// Description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewWarehouse creates a new Warehouse with required fields.
func NewWarehouse(code, name string, whType WarehouseType) *Warehouse {
	return &Warehouse{
		Catalog:  entity.NewCatalog(code, name),
		Type:     whType,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (w *Warehouse) Validate(ctx context.Context) error {
	if err := w.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidWarehouseType(w.Type) {
		return apperror.NewValidation("invalid warehouse type").
			WithDetail("field", "type").
			WithDetail("value", string(w.Type))
	}

	return nil
}

// CanHoldStock returns true if the warehouse can accept or issue stock.
func (w *Warehouse) CanHoldStock() bool {
	return w.IsActive && !w.IsFolder
}

func isValidWarehouseType(t WarehouseType) bool {
	switch t {
	case TypeMain, TypeRetail, TypeProduction, TypeTransit:
		return true
	}
	return false
}
