package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"lotledger/internal/core/apperror"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/infrastructure/storage/postgres"
)

const productTable = "cat_products"

// ProductRepo implements product.Repository.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*product.Product](
			txManager,
			productTable,
			postgres.ExtractDBColumns[product.Product](),
			func() *product.Product { return &product.Product{} },
		),
	}
}

// FindByBarcode retrieves a product by barcode.
func (r *ProductRepo) FindByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	q := r.baseSelect(ctx).
		Where(squirrel.Eq{"barcode": barcode}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", barcode)
		}
		return nil, err
	}
	return item, nil
}

// FindByNameAndWarehouse retrieves a product by exact name within one
// warehouse; barcode narrows the match when non-empty.
func (r *ProductRepo) FindByNameAndWarehouse(ctx context.Context, name, barcode, warehouseID string) (*product.Product, error) {
	q := r.baseSelect(ctx).
		Where(squirrel.Eq{"name": name}).
		Where(squirrel.Eq{"warehouse_id": warehouseID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	if barcode != "" {
		q = q.Where(squirrel.Eq{"barcode": barcode})
	}

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", name)
		}
		return nil, err
	}
	return item, nil
}

// Ensure interface compliance.
var _ product.Repository = (*ProductRepo)(nil)
