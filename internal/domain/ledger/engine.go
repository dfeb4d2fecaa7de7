package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lotledger/internal/core/apperror"
	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/id"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/pkg/logger"
)

// Auditor records ledger audit events (integrity repairs, reversals).
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// Config wires the ledger engine.
type Config struct {
	// TxManager must run each operation in a serializable transaction:
	// two concurrent sales against one product must not both pass the
	// stock check and consume lots past zero.
	TxManager tx.Manager

	Products  product.Repository
	Lots      lots.Repository
	OpenUnits openunits.Repository
	TxLog     txlog.Repository
	Customers customer.Repository

	Numerator numerator.Generator

	// Policy defaults to AutoHealPolicy.
	Policy CorrectionPolicy

	// Auditor is optional.
	Auditor Auditor

	// Now is a clock override for tests.
	Now func() time.Time
}

// Service is the inventory ledger engine.
type Service struct {
	txManager tx.Manager
	products  product.Repository
	lots      lots.Repository
	openUnits openunits.Repository
	txLog     txlog.Repository
	customers customer.Repository
	numerator numerator.Generator
	policy    CorrectionPolicy
	auditor   Auditor
	now       func() time.Time
}

// NewService creates the ledger engine.
func NewService(cfg Config) *Service {
	policy := cfg.Policy
	if policy == nil {
		policy = AutoHealPolicy()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		txManager: cfg.TxManager,
		products:  cfg.Products,
		lots:      cfg.Lots,
		openUnits: cfg.OpenUnits,
		txLog:     cfg.TxLog,
		customers: cfg.Customers,
		numerator: cfg.Numerator,
		policy:    policy,
		auditor:   cfg.Auditor,
		now:       now,
	}
}

// Receive appends a purchase lot, bumps the product aggregate, recomputes
// the weighted-average cost and logs a receiving transaction.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (*ReceiveResult, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if input.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}

	var result *ReceiveResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.getProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		warehouseID := input.WarehouseID
		if warehouseID == "" {
			warehouseID = p.WarehouseID
		}
		source := input.Source
		if source == "" {
			source = lots.SourceManual
		}
		purchasedAt := s.now()
		if input.PurchasedAt != nil {
			purchasedAt = *input.PurchasedAt
		}

		lot := lots.NewLot(p.ID.String(), warehouseID, input.Quantity, input.UnitCost, purchasedAt, source)
		if err := lot.Validate(ctx); err != nil {
			return err
		}
		if err := s.lots.Append(ctx, lot); err != nil {
			return fmt.Errorf("append lot: %w", err)
		}

		p.Quantity += input.Quantity
		if err := s.recomputeProduct(ctx, p); err != nil {
			return err
		}
		if err := s.products.Update(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		record := txlog.New(txlog.TypeReceiving, p.ID.String(), warehouseID, input.Quantity)
		record.CreatedAt = s.now()
		record.Price = input.UnitCost
		record.CostTotal = input.UnitCost.Mul(moneyFromQuantity(input.Quantity))
		if err := s.appendTransaction(ctx, record, "RCV"); err != nil {
			return err
		}

		logger.Info(ctx, "stock received",
			"product_id", p.ID,
			"quantity", input.Quantity,
			"unit_cost", input.UnitCost,
			"lot_id", lot.ID,
			"transaction", record.Number,
		)

		result = &ReceiveResult{Transaction: record, Lot: lot, Product: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- shared helpers ---

// getProductForUpdate locks and returns the product row.
func (s *Service) getProductForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, err := s.products.GetForUpdate(ctx, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, err
	}
	return p, nil
}

// recomputeProduct refreshes the weighted-average purchase price from the
// product's active lots. When no active stock remains the last known price
// is kept. A ledger/aggregate mismatch at this point is observable drift,
// not an error: the next consuming operation repairs it per policy.
func (s *Service) recomputeProduct(ctx context.Context, p *product.Product) error {
	snapshot, err := s.lots.FindActive(ctx, p.ID.String(), "")
	if err != nil {
		return fmt.Errorf("fetch lots for recompute: %w", err)
	}

	result := costing.WeightedAverage(snapshot)
	if result.Changed {
		p.PurchasePrice = result.UnitCost
	}

	if len(snapshot) > 0 && result.TotalQuantity != p.Quantity {
		logger.Warn(ctx, "ledger-aggregate drift detected",
			"product_id", p.ID,
			"aggregate_quantity", p.Quantity,
			"ledger_total", result.TotalQuantity,
		)
	}
	return nil
}

// appendTransaction numbers, validates and stores a log record.
func (s *Service) appendTransaction(ctx context.Context, record *txlog.Transaction, prefix string) error {
	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(prefix), nil, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("number transaction: %w", err)
	}
	record.Number = number
	record.CreatedBy = appctx.GetUserID(ctx)

	if err := record.Validate(ctx); err != nil {
		return err
	}
	if err := s.txLog.Append(ctx, record); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func moneyFromQuantity(q types.Quantity) types.Money {
	return types.NewMoney(q.Float64())
}

// sortIDs orders product IDs so concurrent operations lock rows in the
// same order.
func sortIDs(ids []id.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
