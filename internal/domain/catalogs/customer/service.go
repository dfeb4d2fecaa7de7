package customer

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain"
)

// Service provides business logic for the Customer catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Customer]
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new Customer service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	gen numerator.Generator,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Customer]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  gen,
		EntityName: "customer",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      gen,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)

	return svc
}

// prepareForCreate generates the code when not provided.
func (s *Service) prepareForCreate(ctx context.Context, c *Customer) error {
	if c.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("CST"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		c.Code = code
	}
	return nil
}

// FindByName retrieves a customer by exact name.
func (s *Service) FindByName(ctx context.Context, name string) (*Customer, error) {
	return s.repo.FindByName(ctx, name)
}

// GetOrCreateByName finds a customer by name or creates one. Used by the
// sale path; runs on the caller's transaction context.
func (s *Service) GetOrCreateByName(ctx context.Context, name, groupName string) (*Customer, error) {
	existing, err := s.repo.FindByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	c := NewCustomer("", name)
	if groupName != "" {
		c.GroupName = &groupName
	}
	if hookErr := s.prepareForCreate(ctx, c); hookErr != nil {
		return nil, hookErr
	}
	if createErr := s.repo.Create(ctx, c); createErr != nil {
		return nil, fmt.Errorf("create customer %q: %w", name, createErr)
	}
	return c, nil
}
