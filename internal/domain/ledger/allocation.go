package ledger

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/registers/lots"
	"lotledger/pkg/logger"
)

// allocation is the outcome of consuming lots for a requested quantity.
type allocation struct {
	// Draws records each (lot, quantity) slice actually consumed.
	Draws []costing.Draw

	// Correction is set when a sale-correction lot was inserted to cover
	// a ledger shortfall against the product aggregate.
	Correction *lots.Lot
}

// Cost returns the total consumed-lot cost of the allocation.
func (a *allocation) Cost() types.Money {
	return costing.ConsumedCost(a.Draws)
}

// allocateFIFO consumes qty from the product's active lots oldest-first.
// Must run inside the operation's transaction: the lots are locked.
//
// When the active lots cannot cover qty even though the aggregate said
// they could, the correction policy decides between inserting a
// sale-correction lot for the shortfall (observable integrity repair) and
// failing the operation.
func (s *Service) allocateFIFO(ctx context.Context, p *product.Product, qty types.Quantity) (*allocation, error) {
	productID := p.ID.String()

	active, err := s.lots.FindActiveForUpdate(ctx, productID, "")
	if err != nil {
		return nil, fmt.Errorf("fetch active lots: %w", err)
	}

	var ledgerTotal types.Quantity
	for _, lot := range active {
		ledgerTotal += lot.RemainingQuantity
	}

	alloc := &allocation{}

	if ledgerTotal < qty {
		shortfall := qty - ledgerTotal
		correction, repairErr := s.repairShortfall(ctx, p, ledgerTotal, shortfall)
		if repairErr != nil {
			return nil, repairErr
		}
		alloc.Correction = correction
		active = append(active, correction)
	}

	remaining := qty
	for _, lot := range active {
		if !remaining.IsPositive() {
			break
		}
		take := lot.RemainingQuantity
		if take > remaining {
			take = remaining
		}
		if !take.IsPositive() {
			continue
		}

		if err := lot.Consume(take); err != nil {
			return nil, err
		}
		if err := s.lots.Consume(ctx, lot.ID, take); err != nil {
			return nil, fmt.Errorf("consume lot %s: %w", lot.ID, err)
		}

		alloc.Draws = append(alloc.Draws, costing.Draw{
			LotID:    lot.ID.String(),
			Quantity: take,
			UnitCost: lot.UnitCost,
		})
		remaining -= take
	}

	// The correction policy guarantees the walk covers qty exactly.
	// Anything else is an internal bug, not a user error.
	if !remaining.IsZero() {
		allocated := qty - remaining
		logger.Error(ctx, "lot allocation did not balance",
			"product_id", productID,
			"requested", qty,
			"allocated", allocated,
		)
		return nil, apperror.NewAllocationInvariant(productID, qty.Float64(), allocated.Float64())
	}

	return alloc, nil
}

// allocateFromLot consumes qty from one explicitly chosen lot.
func (s *Service) allocateFromLot(ctx context.Context, p *product.Product, lot *lots.Lot, qty types.Quantity) (*allocation, error) {
	if lot.ProductID != p.ID.String() {
		return nil, apperror.NewInvalidOperation("lot does not belong to product").
			WithDetail("lot_id", lot.ID.String()).
			WithDetail("product_id", p.ID.String())
	}
	if lot.RemainingQuantity < qty {
		return nil, apperror.NewInsufficientStock(p.ID.String(), qty.Float64(), lot.RemainingQuantity.Float64()).
			WithDetail("lot_id", lot.ID.String())
	}

	if err := lot.Consume(qty); err != nil {
		return nil, err
	}
	if err := s.lots.Consume(ctx, lot.ID, qty); err != nil {
		return nil, fmt.Errorf("consume lot %s: %w", lot.ID, err)
	}

	return &allocation{
		Draws: []costing.Draw{{
			LotID:    lot.ID.String(),
			Quantity: qty,
			UnitCost: lot.UnitCost,
		}},
	}, nil
}

// repairShortfall applies the correction policy to a ledger/aggregate
// drift and inserts the correction lot when allowed. Every repair is
// warn-logged and audit-logged: it means the ledger and the aggregate had
// disagreed.
func (s *Service) repairShortfall(ctx context.Context, p *product.Product, ledgerTotal, shortfall types.Quantity) (*lots.Lot, error) {
	productID := p.ID.String()
	req := CorrectionRequest{
		ProductID:       productID,
		ProductQuantity: p.Quantity,
		LedgerTotal:     ledgerTotal,
		Shortfall:       shortfall,
	}

	allowed, err := s.policy.AllowRepair(ctx, req)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.NewInsufficientStock(productID, shortfall.Float64()+ledgerTotal.Float64(), ledgerTotal.Float64()).
			WithDetail("reason", "ledger does not cover aggregate quantity").
			WithDetail("aggregate_quantity", p.Quantity.Float64()).
			WithDetail("ledger_total", ledgerTotal.Float64())
	}

	correction := lots.NewLot(productID, p.WarehouseID, shortfall, p.PurchasePrice, s.now(), lots.SourceSaleCorrection)
	if err := s.lots.Append(ctx, correction); err != nil {
		return nil, fmt.Errorf("append correction lot: %w", err)
	}

	logger.Warn(ctx, "integrity repair: correction lot inserted",
		"product_id", productID,
		"aggregate_quantity", p.Quantity,
		"ledger_total", ledgerTotal,
		"shortfall", shortfall,
		"lot_id", correction.ID,
	)

	if s.auditor != nil {
		auditErr := s.auditor.LogChange(ctx, "lot", correction.ID, "repair", map[string]any{
			"product_id":         productID,
			"aggregate_quantity": p.Quantity.Float64(),
			"ledger_total":       ledgerTotal.Float64(),
			"shortfall":          shortfall.Float64(),
			"unit_cost":          p.PurchasePrice.String(),
		})
		if auditErr != nil {
			return nil, fmt.Errorf("audit integrity repair: %w", auditErr)
		}
	}

	return correction, nil
}
