// Package openunits provides the Open-Unit Ledger: partially consumed
// discrete units of metered products, tracked in drops until depleted.
package openunits

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// OpenUnit is a whole unit that has been opened during manufacturing and
// partially consumed. RemainingDrops stays strictly positive: a unit that
// reaches zero is deleted, never stored empty.
type OpenUnit struct {
	ID          id.ID  `db:"id" json:"id"`
	ProductID   string `db:"product_id" json:"productId"`
	WarehouseID string `db:"warehouse_id" json:"warehouseId"`

	RemainingDrops int64 `db:"remaining_drops" json:"remainingDrops"`

	// TotalDrops is the drop capacity of the unit when it was opened
	// (size × dropsPerMl at that time).
	TotalDrops int64 `db:"total_drops" json:"totalDrops"`

	// UnitCost is the cost of the whole unit when opened. Divided by
	// TotalDrops it prices each drop for manufacturing cost reports.
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// OpenedAt defines consumption order (oldest first)
	OpenedAt time.Time `db:"opened_at" json:"openedAt"`
}

// NewOpenUnit creates an open unit holding remaining of total drops.
func NewOpenUnit(productID, warehouseID string, remaining, total int64, unitCost types.Money) *OpenUnit {
	return &OpenUnit{
		ID:             id.New(),
		ProductID:      productID,
		WarehouseID:    warehouseID,
		RemainingDrops: remaining,
		TotalDrops:     total,
		UnitCost:       unitCost,
		OpenedAt:       time.Now().UTC(),
	}
}

// Validate checks open unit invariants.
func (u *OpenUnit) Validate(ctx context.Context) error {
	if u.ProductID == "" {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if u.RemainingDrops <= 0 {
		return apperror.NewValidation("remaining drops must be positive").
			WithDetail("field", "remainingDrops")
	}
	if u.TotalDrops < u.RemainingDrops {
		return apperror.NewValidation("remaining drops exceed unit capacity").
			WithDetail("field", "totalDrops")
	}
	return nil
}

// DropCost returns the cost of a single drop from this unit.
func (u *OpenUnit) DropCost() types.Money {
	if u.TotalDrops == 0 {
		return types.Zero()
	}
	return u.UnitCost.Div(types.NewMoney(float64(u.TotalDrops)))
}
