// Package product provides the Product catalog: the aggregate view of one
// stocked item whose quantity and purchase price are maintained by the
// lot ledger.
package product

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
)

// Unit defines the unit of measure of one discrete stocked unit.
type Unit string

const (
	UnitPiece    Unit = "db" // discrete unit (piece/bottle)
	UnitMl       Unit = "ml"
	UnitGram     Unit = "g"
	UnitKilogram Unit = "kg"
	UnitLiter    Unit = "l"
)

// DefaultDropsPerMl is the sub-unit resolution used for fractional
// consumption of metered goods when the product does not override it.
const DefaultDropsPerMl = 20

// Product represents one stocked item. Quantity and PurchasePrice are
// aggregates over the product's active lots: Quantity equals the sum of
// remaining lot quantities whenever lots exist, and PurchasePrice is the
// quantity-weighted average unit cost of the active lots. When no active
// lot remains the last known price is retained.
type Product struct {
	entity.Catalog

	// Barcode is the item barcode (EAN-13, etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// Category is a free-form grouping label
	Category *string `db:"category" json:"category,omitempty"`

	// Unit is the unit of measure of one discrete unit
	Unit Unit `db:"unit" json:"unit"`

	// Size is the nominal content of one discrete unit
	// (e.g. 15 ml per bottle). Zero for plain discrete goods.
	Size types.Quantity `db:"size" json:"size"`

	// DropsPerMl is the sub-unit resolution for fractional consumption
	DropsPerMl int `db:"drops_per_ml" json:"dropsPerMl"`

	// Quantity is the count of whole units currently held
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// PurchasePrice is the current weighted-average unit cost
	PurchasePrice types.Money `db:"purchase_price" json:"purchasePrice"`

	// SalePrice is the informational list price
	SalePrice types.Money `db:"sale_price" json:"salePrice"`

	// WarehouseID is the warehouse holding this product's stock
	WarehouseID string `db:"warehouse_id" json:"warehouseId"`
}

// New creates a new Product with required fields and defaults.
func New(code, name string, unit Unit, warehouseID string) *Product {
	return &Product{
		Catalog:       entity.NewCatalog(code, name),
		Unit:          unit,
		DropsPerMl:    DefaultDropsPerMl,
		PurchasePrice: types.Zero(),
		SalePrice:     types.Zero(),
		WarehouseID:   warehouseID,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidUnit(p.Unit) {
		return apperror.NewValidation("invalid unit of measure").
			WithDetail("field", "unit").
			WithDetail("value", string(p.Unit))
	}

	if p.WarehouseID == "" {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}

	if p.Quantity.IsNegative() {
		return apperror.NewValidation("quantity cannot be negative").
			WithDetail("field", "quantity")
	}

	if p.Size.IsNegative() {
		return apperror.NewValidation("size cannot be negative").
			WithDetail("field", "size")
	}

	if p.DropsPerMl < 0 {
		return apperror.NewValidation("dropsPerMl cannot be negative").
			WithDetail("field", "dropsPerMl")
	}

	if p.PurchasePrice.IsNegative() {
		return apperror.NewValidation("purchase price cannot be negative").
			WithDetail("field", "purchasePrice")
	}

	return nil
}

// IsMetered returns true if the product is consumed fractionally (in drops)
// during manufacturing rather than in whole units.
func (p *Product) IsMetered() bool {
	return p.Unit == UnitMl
}

// EffectiveDropsPerMl returns the configured drop resolution or the default.
func (p *Product) EffectiveDropsPerMl() int {
	if p.DropsPerMl > 0 {
		return p.DropsPerMl
	}
	return DefaultDropsPerMl
}

// DropsPerUnit returns the total drops contained in one whole unit
// (size × dropsPerMl). Zero for non-metered products.
func (p *Product) DropsPerUnit() int64 {
	if !p.IsMetered() {
		return 0
	}
	return int64(p.Size.Float64() * float64(p.EffectiveDropsPerMl()))
}

func isValidUnit(u Unit) bool {
	switch u {
	case UnitPiece, UnitMl, UnitGram, UnitKilogram, UnitLiter:
		return true
	}
	return false
}
