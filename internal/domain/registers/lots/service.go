package lots

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// Service provides guarded operations over the lot ledger.
// Transactions are managed by the caller (the ledger engine).
type Service struct {
	repo Repository
}

// NewService creates a new lot ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append validates and stores a new lot.
func (s *Service) Append(ctx context.Context, lot *Lot) error {
	if err := lot.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Append(ctx, lot); err != nil {
		return fmt.Errorf("append lot: %w", err)
	}

	logger.Info(ctx, "lot appended",
		"lot_id", lot.ID,
		"product_id", lot.ProductID,
		"quantity", lot.OriginalQuantity,
		"source", lot.Source,
	)
	return nil
}

// FindActive returns active lots in FIFO order.
func (s *Service) FindActive(ctx context.Context, productID, warehouseID string) ([]*Lot, error) {
	return s.repo.FindActive(ctx, productID, warehouseID)
}

// GetByID retrieves one lot.
func (s *Service) GetByID(ctx context.Context, lotID id.ID) (*Lot, error) {
	lot, err := s.repo.GetByID(ctx, lotID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		return nil, err
	}
	return lot, nil
}

// Consume takes qty from a specific lot after checking it can cover it.
// Call inside a transaction with the lot locked.
func (s *Service) Consume(ctx context.Context, lot *Lot, qty types.Quantity) error {
	if err := lot.Consume(qty); err != nil {
		return err
	}
	if err := s.repo.Consume(ctx, lot.ID, qty); err != nil {
		return fmt.Errorf("consume lot %s: %w", lot.ID, err)
	}
	return nil
}

// List returns lots for inspection endpoints.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Lot, error) {
	return s.repo.List(ctx, filter)
}
