package ledger

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/pkg/logger"
)

// ReverseSale undoes a sale by appending a compensating sale-reversal
// record and returning the sold quantity to stock as a return lot. The
// original record is stamped with the reversal, never deleted: the log
// stays append-only and both entries remain visible in history.
func (s *Service) ReverseSale(ctx context.Context, transactionID id.ID) (*ReverseResult, error) {
	var result *ReverseResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		original, err := s.txLog.GetByIDForUpdate(ctx, transactionID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("transaction", transactionID.String())
			}
			return err
		}

		if original.Type != txlog.TypeSale {
			return apperror.NewInvalidOperation("only sale transactions can be reversed").
				WithDetail("transaction_id", transactionID.String()).
				WithDetail("type", string(original.Type))
		}
		if original.IsReversed() {
			return apperror.NewInvalidOperation("transaction is already reversed").
				WithDetail("transaction_id", transactionID.String()).
				WithDetail("reversed_by", original.ReversedByID.String())
		}

		productID, err := id.Parse(original.ProductID)
		if err != nil {
			return fmt.Errorf("parse product id %q: %w", original.ProductID, err)
		}
		p, err := s.getProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		// The returned stock comes back at the current purchase price, not
		// the original consumed cost: the consumed lots are history and the
		// reversal must not resurrect them.
		returnLot := lots.NewLot(p.ID.String(), p.WarehouseID, original.Quantity, p.PurchasePrice, s.now(), lots.SourceReturn)
		if err := returnLot.Validate(ctx); err != nil {
			return err
		}
		if err := s.lots.Append(ctx, returnLot); err != nil {
			return fmt.Errorf("append return lot: %w", err)
		}

		p.Quantity += original.Quantity
		if err := s.recomputeProduct(ctx, p); err != nil {
			return err
		}
		if err := s.products.Update(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		reversal := txlog.New(txlog.TypeSaleReversal, original.ProductID, original.WarehouseID, original.Quantity)
		reversal.Price = original.Price
		reversal.CostTotal = original.CostTotal
		reversal.CustomerName = original.CustomerName
		originalID := original.ID
		reversal.ReversesID = &originalID
		reversal.CreatedAt = s.now()
		if err := s.appendTransaction(ctx, reversal, "REV"); err != nil {
			return err
		}

		reversedAt := s.now()
		if err := s.txLog.MarkReversed(ctx, original.ID, reversal.ID, reversedAt); err != nil {
			return fmt.Errorf("mark transaction reversed: %w", err)
		}
		original.ReversedByID = &reversal.ID
		original.ReversedAt = &reversedAt

		if original.CustomerName != nil && *original.CustomerName != "" {
			amount := original.Price.Mul(moneyFromQuantity(original.Quantity))
			if err := s.deductCustomer(ctx, *original.CustomerName, amount); err != nil {
				return err
			}
		}

		if s.auditor != nil {
			auditErr := s.auditor.LogChange(ctx, "transaction", original.ID, "reverse", map[string]any{
				"reversal_id": reversal.ID.String(),
				"product_id":  original.ProductID,
				"quantity":    original.Quantity.Float64(),
				"return_lot":  returnLot.ID.String(),
			})
			if auditErr != nil {
				return fmt.Errorf("audit reversal: %w", auditErr)
			}
		}

		logger.Info(ctx, "sale reversed",
			"transaction_id", original.ID,
			"reversal_id", reversal.ID,
			"product_id", original.ProductID,
			"quantity", original.Quantity,
			"return_lot", returnLot.ID,
		)

		result = &ReverseResult{Reversal: reversal, ReturnLot: returnLot, Product: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deductCustomer subtracts a reversed sale amount from the customer's
// revenue. A missing customer is not an error: the sale may predate
// customer tracking.
func (s *Service) deductCustomer(ctx context.Context, name string, amount types.Money) error {
	c, err := s.customers.FindByName(ctx, name)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	c.DeductRevenue(amount)
	if err := s.customers.Update(ctx, c); err != nil {
		return fmt.Errorf("update customer %q: %w", name, err)
	}
	return nil
}
