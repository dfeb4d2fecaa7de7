package ledger

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/numerator"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/pkg/logger"
)

// Transfer moves stock between warehouses. The source side consumes lots
// FIFO like a sale would; the destination side receives a transfer lot
// priced at the consumed cost, so the ledger keeps covering both
// aggregates and the moved stock keeps its cost basis.
//
// The destination counterpart is matched by name (and barcode, when the
// source has one) and created on first transfer.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if input.ToWarehouseID == "" {
		return nil, apperror.NewValidation("destination warehouse is required").
			WithDetail("field", "toWarehouseId")
	}

	var result *TransferResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		source, err := s.getProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		fromWarehouseID := input.FromWarehouseID
		if fromWarehouseID == "" {
			fromWarehouseID = source.WarehouseID
		}
		if fromWarehouseID != source.WarehouseID {
			return apperror.NewInvalidOperation("product is not held in the source warehouse").
				WithDetail("product_id", source.ID.String()).
				WithDetail("warehouse_id", source.WarehouseID).
				WithDetail("from_warehouse_id", fromWarehouseID)
		}
		if fromWarehouseID == input.ToWarehouseID {
			return apperror.NewInvalidOperation("source and destination warehouses are the same").
				WithDetail("warehouse_id", fromWarehouseID)
		}
		if source.Quantity < input.Quantity {
			return apperror.NewInsufficientStock(source.ID.String(), input.Quantity.Float64(), source.Quantity.Float64())
		}

		alloc, err := s.allocateFIFO(ctx, source, input.Quantity)
		if err != nil {
			return err
		}
		source.Quantity -= input.Quantity
		if err := s.recomputeProduct(ctx, source); err != nil {
			return err
		}
		if err := s.products.Update(ctx, source); err != nil {
			return fmt.Errorf("update source product: %w", err)
		}

		destination, err := s.resolveTransferTarget(ctx, source, input.ToWarehouseID)
		if err != nil {
			return err
		}

		movedCost := alloc.Cost()
		unitCost := movedCost.Div(moneyFromQuantity(input.Quantity))
		inbound := lots.NewLot(destination.ID.String(), input.ToWarehouseID, input.Quantity, unitCost, s.now(), lots.SourceTransfer)
		if err := inbound.Validate(ctx); err != nil {
			return err
		}
		if err := s.lots.Append(ctx, inbound); err != nil {
			return fmt.Errorf("append transfer lot: %w", err)
		}

		destination.Quantity += input.Quantity
		if err := s.recomputeProduct(ctx, destination); err != nil {
			return err
		}
		if err := s.products.Update(ctx, destination); err != nil {
			return fmt.Errorf("update destination product: %w", err)
		}

		record := txlog.New(txlog.TypeTransfer, source.ID.String(), fromWarehouseID, input.Quantity)
		record.CostTotal = movedCost
		record.FromWarehouseID = &fromWarehouseID
		toWarehouseID := input.ToWarehouseID
		record.ToWarehouseID = &toWarehouseID
		record.CreatedAt = s.now()
		if err := s.appendTransaction(ctx, record, "TRF"); err != nil {
			return err
		}

		logger.Info(ctx, "stock transferred",
			"product_id", source.ID,
			"quantity", input.Quantity,
			"from_warehouse", fromWarehouseID,
			"to_warehouse", toWarehouseID,
			"destination_product_id", destination.ID,
			"transaction", record.Number,
		)

		result = &TransferResult{Transaction: record, Source: source, Destination: destination}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveTransferTarget finds the destination counterpart by name and
// barcode, creating it from the source product on first transfer.
func (s *Service) resolveTransferTarget(ctx context.Context, source *product.Product, warehouseID string) (*product.Product, error) {
	barcode := ""
	if source.Barcode != nil {
		barcode = *source.Barcode
	}

	existing, err := s.products.FindByNameAndWarehouse(ctx, source.Name, barcode, warehouseID)
	if err == nil {
		return s.getProductForUpdate(ctx, existing.ID)
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PRD"), nil, s.now())
	if err != nil {
		return nil, fmt.Errorf("generate product code: %w", err)
	}

	target := product.New(code, source.Name, source.Unit, warehouseID)
	target.Barcode = source.Barcode
	target.Category = source.Category
	target.Size = source.Size
	target.DropsPerMl = source.DropsPerMl
	target.SalePrice = source.SalePrice
	if err := target.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, target); err != nil {
		return nil, fmt.Errorf("create destination product %q: %w", source.Name, err)
	}
	return target, nil
}
