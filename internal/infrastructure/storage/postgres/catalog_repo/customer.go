package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"lotledger/internal/core/apperror"
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/infrastructure/storage/postgres"
)

const customerTable = "cat_customers"

// CustomerRepo implements customer.Repository.
type CustomerRepo struct {
	*BaseCatalogRepo[*customer.Customer]
}

// NewCustomerRepo creates a new customer repository.
func NewCustomerRepo(txManager *postgres.TxManager) *CustomerRepo {
	return &CustomerRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*customer.Customer](
			txManager,
			customerTable,
			postgres.ExtractDBColumns[customer.Customer](),
			func() *customer.Customer { return &customer.Customer{} },
		),
	}
}

// FindByName retrieves a customer by exact name.
func (r *CustomerRepo) FindByName(ctx context.Context, name string) (*customer.Customer, error) {
	q := r.baseSelect(ctx).
		Where(squirrel.Eq{"name": name}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("customer", name)
		}
		return nil, err
	}
	return item, nil
}

// Ensure interface compliance.
var _ customer.Repository = (*CustomerRepo)(nil)
