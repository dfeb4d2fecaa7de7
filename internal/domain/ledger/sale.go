package ledger

import (
	"context"
	"fmt"
	"sort"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/pkg/logger"
)

// Sell consumes lots for every line of a sale, recomputes costs, logs one
// sale transaction per line and reports margin totals.
//
// Whole-request atomicity: every line is validated against the locked
// product aggregates before any lot is touched, so a failing line aborts
// the sale without partial consumption.
func (s *Service) Sell(ctx context.Context, input SaleInput) (*SaleResult, error) {
	if len(input.Items) == 0 {
		return nil, apperror.NewValidation("sale requires at least one item")
	}
	for i, line := range input.Items {
		if !line.Quantity.IsPositive() {
			return nil, apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if line.Price.IsNegative() {
			return nil, apperror.NewValidation(fmt.Sprintf("item %d: price cannot be negative", i))
		}
	}

	var result *SaleResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		products, err := s.lockSaleProducts(ctx, input.Items)
		if err != nil {
			return err
		}

		// Validate ALL lines (cumulative per product) before mutating.
		if err := s.validateSaleStock(ctx, input.Items, products); err != nil {
			return err
		}

		result = &SaleResult{
			TotalAmount: types.Zero(),
			TotalCost:   types.Zero(),
		}

		for _, line := range input.Items {
			p := products[line.ProductID]

			lineCost, txRecord, err := s.sellLine(ctx, p, line, input.CustomerName)
			if err != nil {
				return err
			}

			lineAmount := line.Price.Mul(moneyFromQuantity(line.Quantity))
			result.TotalAmount = result.TotalAmount.Add(lineAmount)
			result.TotalCost = result.TotalCost.Add(lineCost)
			result.Transactions = append(result.Transactions, txRecord)
		}

		// Persist each product once, after all its lines are applied.
		for _, p := range sortedProducts(products) {
			if err := s.recomputeProduct(ctx, p); err != nil {
				return err
			}
			if err := s.products.Update(ctx, p); err != nil {
				return fmt.Errorf("update product %s: %w", p.ID, err)
			}
			result.Products = append(result.Products, p)
		}

		result.Profit = result.TotalAmount.Sub(result.TotalCost)
		if result.TotalAmount.IsPositive() {
			result.MarginPercent = result.Profit.
				Div(result.TotalAmount).
				Mul(types.NewMoney(100)).
				Round(2)
		} else {
			result.MarginPercent = types.Zero()
		}

		if input.CustomerName != "" {
			if err := s.accrueCustomer(ctx, input.CustomerName, input.CustomerGroup, result.TotalAmount); err != nil {
				return err
			}
		}

		logger.Info(ctx, "sale completed",
			"items", len(input.Items),
			"total_amount", result.TotalAmount,
			"total_cost", result.TotalCost,
			"profit", result.Profit,
			"customer", input.CustomerName,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockSaleProducts locks every product of the sale in stable ID order to
// avoid deadlocks between concurrent multi-item sales.
func (s *Service) lockSaleProducts(ctx context.Context, items []SaleLine) (map[id.ID]*product.Product, error) {
	unique := make(map[id.ID]struct{}, len(items))
	order := make([]id.ID, 0, len(items))
	for _, line := range items {
		if _, seen := unique[line.ProductID]; !seen {
			unique[line.ProductID] = struct{}{}
			order = append(order, line.ProductID)
		}
	}
	sortIDs(order)

	products := make(map[id.ID]*product.Product, len(order))
	for _, productID := range order {
		p, err := s.getProductForUpdate(ctx, productID)
		if err != nil {
			return nil, err
		}
		products[productID] = p
	}
	return products, nil
}

// validateSaleStock checks every line against the aggregates (cumulative
// per product) and against explicitly chosen lots, before any mutation.
func (s *Service) validateSaleStock(ctx context.Context, items []SaleLine, products map[id.ID]*product.Product) error {
	required := make(map[id.ID]types.Quantity, len(products))
	for _, line := range items {
		required[line.ProductID] += line.Quantity
	}

	for productID, qty := range required {
		p := products[productID]
		if p.Quantity < qty {
			return apperror.NewInsufficientStock(productID.String(), qty.Float64(), p.Quantity.Float64())
		}
	}

	for i, line := range items {
		if line.LotID == nil {
			continue
		}
		lot, err := s.lots.GetByID(ctx, *line.LotID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("lot", line.LotID.String())
			}
			return err
		}
		if lot.RemainingQuantity < line.Quantity {
			return apperror.NewInsufficientStock(line.ProductID.String(), line.Quantity.Float64(), lot.RemainingQuantity.Float64()).
				WithDetail("lot_id", lot.ID.String()).
				WithDetail("item", i)
		}
	}
	return nil
}

// sellLine consumes lots for one line and appends its sale transaction.
func (s *Service) sellLine(ctx context.Context, p *product.Product, line SaleLine, customerName string) (types.Money, *txlog.Transaction, error) {
	var alloc *allocation
	var err error

	if line.LotID != nil {
		var lot *lots.Lot
		lot, err = s.lots.GetByIDForUpdate(ctx, *line.LotID)
		if err != nil {
			return types.Zero(), nil, err
		}
		alloc, err = s.allocateFromLot(ctx, p, lot, line.Quantity)
	} else {
		alloc, err = s.allocateFIFO(ctx, p, line.Quantity)
	}
	if err != nil {
		return types.Zero(), nil, err
	}

	p.Quantity -= line.Quantity

	record := txlog.New(txlog.TypeSale, p.ID.String(), p.WarehouseID, line.Quantity)
	record.Price = line.Price
	record.CostTotal = alloc.Cost()
	record.CreatedAt = s.now()
	if customerName != "" {
		record.CustomerName = &customerName
	}
	if err := s.appendTransaction(ctx, record, "SAL"); err != nil {
		return types.Zero(), nil, err
	}

	return alloc.Cost(), record, nil
}

// accrueCustomer upserts the customer by name and adds the sale amount.
func (s *Service) accrueCustomer(ctx context.Context, name, group string, amount types.Money) error {
	c, err := s.customers.FindByName(ctx, name)
	if err != nil {
		if !apperror.IsNotFound(err) {
			return err
		}
		c = customer.NewCustomer("", name)
		if group != "" {
			c.GroupName = &group
		}
		code, numErr := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("CST"), nil, s.now())
		if numErr != nil {
			return fmt.Errorf("generate customer code: %w", numErr)
		}
		c.Code = code
		c.AccrueRevenue(amount, s.now())
		if createErr := s.customers.Create(ctx, c); createErr != nil {
			return fmt.Errorf("create customer %q: %w", name, createErr)
		}
		return nil
	}

	c.AccrueRevenue(amount, s.now())
	if err := s.customers.Update(ctx, c); err != nil {
		return fmt.Errorf("update customer %q: %w", name, err)
	}
	return nil
}

func sortedProducts(products map[id.ID]*product.Product) []*product.Product {
	out := make([]*product.Product, 0, len(products))
	for _, p := range products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
