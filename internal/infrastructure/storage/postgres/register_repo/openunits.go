package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/infrastructure/storage/postgres"
)

const openUnitsTable = "reg_open_units"

var openUnitColumns = []string{
	"id", "product_id", "warehouse_id",
	"remaining_drops", "total_drops", "unit_cost", "opened_at",
}

// OpenUnitRepo implements openunits.Repository.
type OpenUnitRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewOpenUnitRepo creates a new open-unit ledger repository.
func NewOpenUnitRepo(txManager *postgres.TxManager) *OpenUnitRepo {
	return &OpenUnitRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts an open unit.
func (r *OpenUnitRepo) Create(ctx context.Context, unit *openunits.OpenUnit) error {
	q := r.builder.Insert(openUnitsTable).
		Columns(openUnitColumns...).
		Values(
			unit.ID, unit.ProductID, unit.WarehouseID,
			unit.RemainingDrops, unit.TotalDrops, unit.UnitCost, unit.OpenedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert open unit: %w", err)
	}
	return nil
}

// FindByProduct returns open units oldest-first.
func (r *OpenUnitRepo) FindByProduct(ctx context.Context, productID string) ([]*openunits.OpenUnit, error) {
	return r.findByProduct(ctx, productID, false)
}

// FindByProductForUpdate is FindByProduct with row locks.
func (r *OpenUnitRepo) FindByProductForUpdate(ctx context.Context, productID string) ([]*openunits.OpenUnit, error) {
	return r.findByProduct(ctx, productID, true)
}

func (r *OpenUnitRepo) findByProduct(ctx context.Context, productID string, forUpdate bool) ([]*openunits.OpenUnit, error) {
	q := r.builder.Select(openUnitColumns...).
		From(openUnitsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("opened_at ASC", "id ASC")
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*openunits.OpenUnit
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select open units: %w", err)
	}
	return items, nil
}

// DecrementDrops subtracts drops from an open unit. The WHERE guard
// refuses to go below zero.
func (r *OpenUnitRepo) DecrementDrops(ctx context.Context, unitID id.ID, drops int64) error {
	sql := `
		UPDATE reg_open_units
		SET remaining_drops = remaining_drops - $2
		WHERE id = $1 AND remaining_drops >= $2
	`

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, unitID, drops)
	if err != nil {
		return fmt.Errorf("decrement open unit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("open unit", unitID.String())
	}
	return nil
}

// Delete removes a depleted open unit.
func (r *OpenUnitRepo) Delete(ctx context.Context, unitID id.ID) error {
	q := r.builder.Delete(openUnitsTable).
		Where(squirrel.Eq{"id": unitID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete open unit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("open unit", unitID.String())
	}
	return nil
}

// List returns open units for inspection endpoints.
func (r *OpenUnitRepo) List(ctx context.Context, filter openunits.ListFilter) ([]*openunits.OpenUnit, error) {
	q := r.builder.Select(openUnitColumns...).
		From(openUnitsTable).
		OrderBy("opened_at ASC", "id ASC")

	if filter.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID != "" {
		q = q.Where(squirrel.Eq{"warehouse_id": filter.WarehouseID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*openunits.OpenUnit
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select open units: %w", err)
	}
	return items, nil
}

// Ensure interface compliance.
var _ openunits.Repository = (*OpenUnitRepo)(nil)
