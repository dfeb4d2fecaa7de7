// Package costing derives a product's weighted-average unit cost from a
// snapshot of its active lots. Pure functions only: callers fetch the
// snapshot and apply the result inside their own transaction.
package costing

import (
	"lotledger/internal/core/types"
	"lotledger/internal/domain/registers/lots"
)

// Result is the outcome of a recompute over a lot snapshot.
type Result struct {
	// TotalQuantity is the sum of remaining quantities across active lots.
	TotalQuantity types.Quantity

	// UnitCost is the quantity-weighted average unit cost, rounded to the
	// nearest whole currency unit. Only meaningful when Changed is true.
	UnitCost types.Money

	// Changed is false when no active stock remains; the caller keeps the
	// last known price instead of resetting it.
	Changed bool
}

// WeightedAverage computes round(Σ(remaining·unitCost) / Σ remaining) over
// the active lots of the snapshot. Inactive lots (remaining == 0) are
// ignored. Idempotent: the same snapshot always yields the same result.
func WeightedAverage(snapshot []*lots.Lot) Result {
	var total types.Quantity
	weighted := types.Zero()

	for _, lot := range snapshot {
		if !lot.IsActive() {
			continue
		}
		total += lot.RemainingQuantity
		weighted = weighted.Add(lot.UnitCost.Mul(types.NewMoney(lot.RemainingQuantity.Float64())))
	}

	if !total.IsPositive() {
		return Result{TotalQuantity: total}
	}

	avg := weighted.Div(types.NewMoney(total.Float64())).Round(0)
	return Result{
		TotalQuantity: total,
		UnitCost:      avg,
		Changed:       true,
	}
}

// ConsumedCost prices a FIFO consumption plan: the sum of quantity×unitCost
// over each (lot, quantity) pair actually drawn.
func ConsumedCost(draws []Draw) types.Money {
	cost := types.Zero()
	for _, d := range draws {
		cost = cost.Add(d.UnitCost.Mul(types.NewMoney(d.Quantity.Float64())))
	}
	return cost
}

// Draw is one slice of a consumption plan.
type Draw struct {
	LotID    string
	Quantity types.Quantity
	UnitCost types.Money
}
