package ledger

import (
	"context"
	"fmt"
	"math"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/pkg/logger"
)

// Manufacture consumes component stock (whole units or drops of metered
// goods), produces the output product and logs one manufacturing
// transaction with the per-component cost breakdown.
//
// Metered components draw from open units oldest-first; only when those
// run dry are new whole units pulled from the lot ledger and opened. An
// opened unit with drops left behind becomes a new open unit; a unit
// drained to zero is never stored.
func (s *Service) Manufacture(ctx context.Context, input ManufactureInput) (*ManufactureResult, error) {
	if !input.OutputQuantity.IsPositive() {
		return nil, apperror.NewValidation("output quantity must be positive").
			WithDetail("field", "outputQuantity")
	}
	if len(input.Components) == 0 {
		return nil, apperror.NewValidation("manufacturing requires at least one component")
	}
	for i, comp := range input.Components {
		if !comp.Quantity.IsPositive() {
			return nil, apperror.NewValidation(fmt.Sprintf("component %d: quantity must be positive", i))
		}
	}
	if input.Output.ProductID == nil && input.Output.NewName == "" {
		return nil, apperror.NewValidation("output product or new product name is required")
	}

	var result *ManufactureResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		components, products, err := s.planComponents(ctx, input.Components)
		if err != nil {
			return err
		}

		// All shortfalls surface here, before any ledger mutation.
		if err := validateComponentStock(components, products); err != nil {
			return err
		}

		totalCost := types.Zero()
		report := make([]txlog.Component, 0, len(components))
		for _, plan := range components {
			cost, err := s.consumeComponent(ctx, products[plan.productID], plan)
			if err != nil {
				return err
			}
			totalCost = totalCost.Add(cost)
			report = append(report, txlog.Component{
				ProductID: plan.productID.String(),
				Quantity:  plan.input.Quantity,
				Unit:      string(plan.input.Unit),
				CostTotal: cost,
			})
		}

		for _, p := range sortedProducts(products) {
			if err := s.recomputeProduct(ctx, p); err != nil {
				return err
			}
			if err := s.products.Update(ctx, p); err != nil {
				return fmt.Errorf("update component product %s: %w", p.ID, err)
			}
		}

		output, err := s.resolveOutput(ctx, input.Output, products, components)
		if err != nil {
			return err
		}

		outputUnitCost := totalCost.Div(moneyFromQuantity(input.OutputQuantity))
		outputLot := lots.NewLot(output.ID.String(), output.WarehouseID, input.OutputQuantity, outputUnitCost, s.now(), lots.SourceOther)
		if err := outputLot.Validate(ctx); err != nil {
			return err
		}
		if err := s.lots.Append(ctx, outputLot); err != nil {
			return fmt.Errorf("append output lot: %w", err)
		}

		output.Quantity += input.OutputQuantity
		if err := s.recomputeProduct(ctx, output); err != nil {
			return err
		}
		if err := s.products.Update(ctx, output); err != nil {
			return fmt.Errorf("update output product: %w", err)
		}

		record := txlog.New(txlog.TypeManufacturing, output.ID.String(), output.WarehouseID, input.OutputQuantity)
		record.CostTotal = totalCost
		record.Components = report
		record.CreatedAt = s.now()
		if err := s.appendTransaction(ctx, record, "MFG"); err != nil {
			return err
		}

		logger.Info(ctx, "manufacturing completed",
			"output_product_id", output.ID,
			"output_quantity", input.OutputQuantity,
			"components", len(report),
			"total_cost", totalCost,
			"transaction", record.Number,
		)

		result = &ManufactureResult{Transaction: record, Product: output, Components: report}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// componentPlan is one component translated to its consumption shape:
// whole units from the lot ledger, or drops drawn from open units first.
type componentPlan struct {
	input     ComponentInput
	productID id.ID

	// wholeUnits is set for discrete consumption (unit "db" or a
	// non-metered product).
	wholeUnits types.Quantity

	// drops is set for fractional consumption of metered products.
	drops int64

	// unitsToOpen is how many whole units must be pulled from lots after
	// the existing open units are drained. Computed during planning so
	// stock validation sees the full whole-unit demand up front.
	unitsToOpen types.Quantity
}

// planComponents locks every component product (stable ID order) and
// converts each requested quantity to whole units or drops.
func (s *Service) planComponents(ctx context.Context, inputs []ComponentInput) ([]componentPlan, map[id.ID]*product.Product, error) {
	order := make([]id.ID, 0, len(inputs))
	seen := make(map[id.ID]struct{}, len(inputs))
	for _, comp := range inputs {
		if _, ok := seen[comp.ProductID]; !ok {
			seen[comp.ProductID] = struct{}{}
			order = append(order, comp.ProductID)
		}
	}
	sortIDs(order)

	products := make(map[id.ID]*product.Product, len(order))
	for _, productID := range order {
		p, err := s.getProductForUpdate(ctx, productID)
		if err != nil {
			return nil, nil, err
		}
		products[productID] = p
	}

	// openDrops is the per-product budget of open-unit drops not yet
	// committed by earlier plans. Leftover drops of units a plan will open
	// are credited back, so a later component of the same product never
	// counts the same drop twice.
	openDrops := make(map[id.ID]int64)

	plans := make([]componentPlan, 0, len(inputs))
	for i, comp := range inputs {
		p := products[comp.ProductID]
		plan, err := s.planComponent(ctx, p, comp, openDrops)
		if err != nil {
			return nil, nil, fmt.Errorf("component %d: %w", i, err)
		}
		plans = append(plans, plan)
	}
	return plans, products, nil
}

func (s *Service) planComponent(ctx context.Context, p *product.Product, comp ComponentInput, openDrops map[id.ID]int64) (componentPlan, error) {
	plan := componentPlan{input: comp, productID: comp.ProductID}

	unit := comp.Unit
	if unit == "" {
		unit = ComponentUnitWhole
	}

	if unit == ComponentUnitWhole || !p.IsMetered() {
		if unit != ComponentUnitWhole {
			return plan, apperror.NewInvalidOperation(
				fmt.Sprintf("product %s is not metered and cannot be consumed in %s", p.Name, unit)).
				WithDetail("product_id", p.ID.String()).
				WithDetail("unit", string(unit))
		}
		plan.wholeUnits = comp.Quantity
		return plan, nil
	}

	dropsPerUnit := p.DropsPerUnit()
	if dropsPerUnit <= 0 {
		return plan, apperror.NewInvalidOperation(
			fmt.Sprintf("product %s has no size; drops per unit is undefined", p.Name)).
			WithDetail("product_id", p.ID.String())
	}

	switch unit {
	case ComponentUnitDrop:
		plan.drops = int64(math.Round(comp.Quantity.Float64()))
	case ComponentUnitMl:
		plan.drops = int64(math.Round(comp.Quantity.Float64() * float64(p.EffectiveDropsPerMl())))
	default:
		return plan, apperror.NewValidation("unknown component unit").
			WithDetail("unit", string(unit))
	}
	if plan.drops <= 0 {
		return plan, apperror.NewValidation("component quantity converts to zero drops").
			WithDetail("product_id", p.ID.String())
	}

	if _, ok := openDrops[p.ID]; !ok {
		open, err := s.openUnits.FindByProduct(ctx, p.ID.String())
		if err != nil {
			return plan, fmt.Errorf("fetch open units: %w", err)
		}
		var total int64
		for _, u := range open {
			total += u.RemainingDrops
		}
		openDrops[p.ID] = total
	}

	fromOpen := plan.drops
	if fromOpen > openDrops[p.ID] {
		fromOpen = openDrops[p.ID]
	}
	remaining := openDrops[p.ID] - fromOpen

	if missing := plan.drops - fromOpen; missing > 0 {
		unitsToOpen := (missing + dropsPerUnit - 1) / dropsPerUnit
		plan.unitsToOpen = types.NewQuantityFromFloat64(float64(unitsToOpen))
		// The tail of the last opened unit stays available to later
		// components.
		remaining += unitsToOpen*dropsPerUnit - missing
	}
	openDrops[p.ID] = remaining
	return plan, nil
}

// validateComponentStock checks cumulative whole-unit demand per product
// against the aggregates before any mutation.
func validateComponentStock(plans []componentPlan, products map[id.ID]*product.Product) error {
	demand := make(map[id.ID]types.Quantity, len(products))
	for _, plan := range plans {
		demand[plan.productID] += plan.wholeUnits + plan.unitsToOpen
	}
	for productID, qty := range demand {
		p := products[productID]
		if p.Quantity < qty {
			return apperror.NewInsufficientStock(productID.String(), qty.Float64(), p.Quantity.Float64())
		}
	}
	return nil
}

// consumeComponent executes one plan and returns the consumed cost.
func (s *Service) consumeComponent(ctx context.Context, p *product.Product, plan componentPlan) (types.Money, error) {
	if plan.drops > 0 {
		return s.consumeDrops(ctx, p, plan.drops)
	}

	alloc, err := s.allocateFIFO(ctx, p, plan.wholeUnits)
	if err != nil {
		return types.Zero(), err
	}
	p.Quantity -= plan.wholeUnits
	return alloc.Cost(), nil
}

// consumeDrops draws drops from open units oldest-first, then opens new
// whole units from the lot ledger for the remainder.
func (s *Service) consumeDrops(ctx context.Context, p *product.Product, drops int64) (types.Money, error) {
	cost := types.Zero()
	need := drops

	open, err := s.openUnits.FindByProductForUpdate(ctx, p.ID.String())
	if err != nil {
		return cost, fmt.Errorf("fetch open units: %w", err)
	}
	for _, unit := range open {
		if need <= 0 {
			break
		}
		take := unit.RemainingDrops
		if take > need {
			take = need
		}
		if err := s.openUnits.DecrementDrops(ctx, unit.ID, take); err != nil {
			return cost, fmt.Errorf("decrement open unit %s: %w", unit.ID, err)
		}
		cost = cost.Add(unit.DropCost().Mul(types.NewMoney(float64(take))))
		need -= take

		if unit.RemainingDrops == take {
			if err := s.openUnits.Delete(ctx, unit.ID); err != nil {
				return cost, fmt.Errorf("delete depleted open unit %s: %w", unit.ID, err)
			}
		}
	}

	if need <= 0 {
		return cost, nil
	}

	dropsPerUnit := p.DropsPerUnit()
	unitsToOpen := (need + dropsPerUnit - 1) / dropsPerUnit
	openQty := types.NewQuantityFromFloat64(float64(unitsToOpen))

	alloc, err := s.allocateFIFO(ctx, p, openQty)
	if err != nil {
		return cost, err
	}
	p.Quantity -= openQty

	// Walk the draws unit by unit; a partially consumed last unit becomes
	// a new open unit.
	for _, draw := range alloc.Draws {
		units := int64(math.Round(draw.Quantity.Float64()))
		for i := int64(0); i < units && need > 0; i++ {
			take := dropsPerUnit
			if take > need {
				take = need
			}
			cost = cost.Add(draw.UnitCost.Mul(types.NewMoney(float64(take))).Div(types.NewMoney(float64(dropsPerUnit))))
			need -= take

			if take < dropsPerUnit {
				opened := openunits.NewOpenUnit(p.ID.String(), p.WarehouseID, dropsPerUnit-take, dropsPerUnit, draw.UnitCost)
				opened.OpenedAt = s.now()
				if err := s.openUnits.Create(ctx, opened); err != nil {
					return cost, fmt.Errorf("create open unit: %w", err)
				}
			}
		}
	}

	if need > 0 {
		logger.Error(ctx, "drop allocation did not balance",
			"product_id", p.ID,
			"requested_drops", drops,
			"missing_drops", need,
		)
		return cost, apperror.NewAllocationInvariant(p.ID.String(), float64(drops), float64(drops-need))
	}
	return cost, nil
}

// resolveOutput locks the existing output product or creates a new one in
// the warehouse of the first component.
func (s *Service) resolveOutput(ctx context.Context, spec OutputSpec, locked map[id.ID]*product.Product, plans []componentPlan) (*product.Product, error) {
	if spec.ProductID != nil {
		if p, ok := locked[*spec.ProductID]; ok {
			return p, nil
		}
		return s.getProductForUpdate(ctx, *spec.ProductID)
	}

	warehouseID := ""
	if len(plans) > 0 {
		warehouseID = locked[plans[0].productID].WarehouseID
	}

	unit := spec.NewUnit
	if unit == "" {
		unit = product.UnitPiece
	}

	code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PRD"), nil, s.now())
	if err != nil {
		return nil, fmt.Errorf("generate product code: %w", err)
	}

	p := product.New(code, spec.NewName, unit, warehouseID)
	if spec.NewCategory != "" {
		category := spec.NewCategory
		p.Category = &category
	}
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create output product %q: %w", spec.NewName, err)
	}
	return p, nil
}
