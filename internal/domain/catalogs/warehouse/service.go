package warehouse

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/numerator"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain"
)

// Service provides business logic for Warehouse catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Warehouse] // Embedded for delegation
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new Warehouse service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	gen numerator.Generator,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Warehouse]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  gen,
		EntityName: "warehouse",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      gen,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.prepareForUpdate)

	return svc
}

// prepareForCreate handles code generation and default flag.
func (s *Service) prepareForCreate(ctx context.Context, wh *Warehouse) error {
	if wh.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("WH"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		wh.Code = code
	}

	// If setting as default, clear other defaults
	if wh.IsDefault {
		if err := s.repo.ClearDefault(ctx); err != nil {
			return err
		}
	}

	return nil
}

// prepareForUpdate handles default flag.
func (s *Service) prepareForUpdate(ctx context.Context, wh *Warehouse) error {
	if wh.IsDefault {
		if err := s.repo.ClearDefault(ctx); err != nil {
			return err
		}
	}

	return nil
}
