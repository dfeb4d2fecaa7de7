// Package lots provides the Lot Ledger: the append-only register of
// purchase lots (batches) backing every product aggregate.
package lots

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Source tags the event that created a lot.
type Source string

const (
	SourceManual         Source = "manual"
	SourceBatchImport    Source = "batch-import"
	SourceTransfer       Source = "transfer"
	SourceSaleCorrection Source = "sale-correction"
	SourceReturn         Source = "return"
	SourceOther          Source = "other"
)

// Lot is one acquisition of stock at a fixed unit cost and date. Immutable
// except for RemainingQuantity, which only ever decreases. Lots are never
// physically deleted; a fully consumed lot stays for history.
type Lot struct {
	ID          id.ID  `db:"id" json:"id"`
	ProductID   string `db:"product_id" json:"productId"`
	WarehouseID string `db:"warehouse_id" json:"warehouseId"`

	OriginalQuantity  types.Quantity `db:"original_quantity" json:"originalQuantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`

	// UnitCost is fixed at creation
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// PurchasedAt defines FIFO order (oldest first)
	PurchasedAt time.Time `db:"purchased_at" json:"purchasedAt"`

	Source Source `db:"source" json:"source"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewLot creates a lot with remaining = original.
func NewLot(productID, warehouseID string, qty types.Quantity, unitCost types.Money, purchasedAt time.Time, source Source) *Lot {
	return &Lot{
		ID:                id.New(),
		ProductID:         productID,
		WarehouseID:       warehouseID,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		UnitCost:          unitCost,
		PurchasedAt:       purchasedAt,
		Source:            source,
		CreatedAt:         time.Now().UTC(),
	}
}

// Validate checks lot invariants.
func (l *Lot) Validate(ctx context.Context) error {
	if l.ProductID == "" {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !l.OriginalQuantity.IsPositive() {
		return apperror.NewValidation("lot quantity must be positive").
			WithDetail("field", "originalQuantity")
	}
	if l.RemainingQuantity.IsNegative() || l.RemainingQuantity > l.OriginalQuantity {
		return apperror.NewValidation("remaining quantity out of range").
			WithDetail("field", "remainingQuantity")
	}
	if l.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}
	if !isValidSource(l.Source) {
		return apperror.NewValidation("invalid lot source").
			WithDetail("field", "source").
			WithDetail("value", string(l.Source))
	}
	return nil
}

// IsActive returns true while the lot still holds stock.
func (l *Lot) IsActive() bool {
	return l.RemainingQuantity.IsPositive()
}

// Consume decrements the remaining quantity. The quantity must not exceed
// what the lot still holds.
func (l *Lot) Consume(qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("consume quantity must be positive")
	}
	if qty > l.RemainingQuantity {
		return apperror.NewInsufficientStock(l.ProductID, qty.Float64(), l.RemainingQuantity.Float64()).
			WithDetail("lot_id", l.ID.String())
	}
	l.RemainingQuantity -= qty
	return nil
}

func isValidSource(s Source) bool {
	switch s {
	case SourceManual, SourceBatchImport, SourceTransfer, SourceSaleCorrection, SourceReturn, SourceOther:
		return true
	}
	return false
}
