package product

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain"
)

// Service provides business logic for the Product catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Product]
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new Product service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	gen numerator.Generator,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  gen,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      gen,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.checkBarcodeUnique)

	return svc
}

// prepareForCreate handles code generation and uniqueness checks.
func (s *Service) prepareForCreate(ctx context.Context, item *Product) error {
	if item.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PRD"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		item.Code = code
	}

	if item.DropsPerMl == 0 {
		item.DropsPerMl = DefaultDropsPerMl
	}

	return s.checkBarcodeUnique(ctx, item)
}

func (s *Service) checkBarcodeUnique(ctx context.Context, item *Product) error {
	if item.Barcode == nil || *item.Barcode == "" {
		return nil
	}
	existing, err := s.repo.FindByBarcode(ctx, *item.Barcode)
	if err != nil {
		return nil // not found or lookup failure: let create/update proceed
	}
	if existing.ID != item.ID && existing.WarehouseID == item.WarehouseID {
		return apperror.NewConflict("product with this barcode already exists in warehouse").
			WithDetail("barcode", *item.Barcode).
			WithDetail("warehouse_id", item.WarehouseID)
	}
	return nil
}

// --- Entity-specific methods ---

// FindByBarcode retrieves a product by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Product, error) {
	return s.repo.FindByBarcode(ctx, barcode)
}

// GetForUpdate retrieves a product with a row lock (inside a transaction).
func (s *Service) GetForUpdate(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetForUpdate(ctx, productID)
}
