package ledger

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/registers/lots"
)

// ProductCostResult is the current costing view of one product: the
// aggregate, the weighted average over its active lots and the drift
// between the two quantity totals.
type ProductCostResult struct {
	Product *product.Product `json:"product"`

	// UnitCost is the weighted average over active lots, or the last
	// known purchase price when no active stock remains.
	UnitCost types.Money `json:"unitCost"`

	// LedgerQuantity is the sum of remaining quantities across active lots.
	LedgerQuantity types.Quantity `json:"ledgerQuantity"`

	// Drift is aggregate quantity minus ledger quantity. Non-zero drift
	// is repaired by the next consuming operation per the correction
	// policy.
	Drift types.Quantity `json:"drift"`

	ActiveLots []*lots.Lot `json:"activeLots"`
}

// ProductCost reports the weighted-average cost detail for a product.
// Read-only; runs outside of a business transaction.
func (s *Service) ProductCost(ctx context.Context, productID id.ID) (*ProductCostResult, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, err
	}

	snapshot, err := s.lots.FindActive(ctx, p.ID.String(), "")
	if err != nil {
		return nil, fmt.Errorf("fetch active lots: %w", err)
	}

	result := costing.WeightedAverage(snapshot)
	unitCost := p.PurchasePrice
	if result.Changed {
		unitCost = result.UnitCost
	}

	active := snapshot
	if active == nil {
		active = []*lots.Lot{}
	}

	return &ProductCostResult{
		Product:        p,
		UnitCost:       unitCost,
		LedgerQuantity: result.TotalQuantity,
		Drift:          p.Quantity - result.TotalQuantity,
		ActiveLots:     active,
	}, nil
}
