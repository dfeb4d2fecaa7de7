// Package register_repo provides PostgreSQL implementations for register
// repositories: the lot ledger, the open-unit ledger and the transaction log.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/infrastructure/storage/postgres"
)

const lotsTable = "reg_lots"

var lotColumns = []string{
	"id", "product_id", "warehouse_id",
	"original_quantity", "remaining_quantity",
	"unit_cost", "purchased_at", "source", "created_at",
}

// LotRepo implements lots.Repository.
type LotRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLotRepo creates a new lot ledger repository.
func NewLotRepo(txManager *postgres.TxManager) *LotRepo {
	return &LotRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one lot.
func (r *LotRepo) Append(ctx context.Context, lot *lots.Lot) error {
	q := r.builder.Insert(lotsTable).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.ProductID, lot.WarehouseID,
			lot.OriginalQuantity, lot.RemainingQuantity,
			lot.UnitCost, lot.PurchasedAt, lot.Source, lot.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// AppendBatch inserts many lots in one round-trip. Uses COPY inside a
// transaction, falling back to a multi-row insert otherwise.
func (r *LotRepo) AppendBatch(ctx context.Context, batch []*lots.Lot) error {
	if len(batch) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(batch))
		for _, lot := range batch {
			rows = append(rows, []any{
				lot.ID, lot.ProductID, lot.WarehouseID,
				lot.OriginalQuantity, lot.RemainingQuantity,
				lot.UnitCost, lot.PurchasedAt, lot.Source, lot.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, lotsTable, lotColumns, rows); err != nil {
			return fmt.Errorf("copy lots: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(lotsTable).Columns(lotColumns...)
	for _, lot := range batch {
		q = q.Values(
			lot.ID, lot.ProductID, lot.WarehouseID,
			lot.OriginalQuantity, lot.RemainingQuantity,
			lot.UnitCost, lot.PurchasedAt, lot.Source, lot.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lots: %w", err)
	}
	return nil
}

// GetByID retrieves one lot.
func (r *LotRepo) GetByID(ctx context.Context, lotID id.ID) (*lots.Lot, error) {
	return r.getByID(ctx, lotID, false)
}

// GetByIDForUpdate retrieves one lot with a row lock.
func (r *LotRepo) GetByIDForUpdate(ctx context.Context, lotID id.ID) (*lots.Lot, error) {
	return r.getByID(ctx, lotID, true)
}

func (r *LotRepo) getByID(ctx context.Context, lotID id.ID, forUpdate bool) (*lots.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"id": lotID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lot lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return &lot, nil
}

// FindActive returns lots with remaining stock in FIFO order.
func (r *LotRepo) FindActive(ctx context.Context, productID, warehouseID string) ([]*lots.Lot, error) {
	return r.findActive(ctx, productID, warehouseID, false)
}

// FindActiveForUpdate is FindActive with row locks.
func (r *LotRepo) FindActiveForUpdate(ctx context.Context, productID, warehouseID string) ([]*lots.Lot, error) {
	return r.findActive(ctx, productID, warehouseID, true)
}

func (r *LotRepo) findActive(ctx context.Context, productID, warehouseID string, forUpdate bool) ([]*lots.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Gt{"remaining_quantity": int64(0)}).
		OrderBy("purchased_at ASC", "id ASC")

	if warehouseID != "" {
		q = q.Where(squirrel.Eq{"warehouse_id": warehouseID})
	}
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select active lots: %w", err)
	}
	return items, nil
}

// Consume decrements remaining_quantity. The WHERE guard keeps a
// concurrent writer from driving the lot below zero.
func (r *LotRepo) Consume(ctx context.Context, lotID id.ID, qty types.Quantity) error {
	sql := `
		UPDATE reg_lots
		SET remaining_quantity = remaining_quantity - $2
		WHERE id = $1 AND remaining_quantity >= $2
	`

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, lotID, qty)
	if err != nil {
		return fmt.Errorf("consume lot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("lot", lotID.String())
	}
	return nil
}

// SumActive returns the total remaining quantity across active lots.
func (r *LotRepo) SumActive(ctx context.Context, productID string) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM reg_lots
		WHERE product_id = $1 AND remaining_quantity > 0
	`

	var totalScaled int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&totalScaled); err != nil {
		return 0, fmt.Errorf("sum active lots: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(totalScaled), nil
}

// List returns lots for inspection endpoints.
func (r *LotRepo) List(ctx context.Context, filter lots.ListFilter) ([]*lots.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		OrderBy("purchased_at ASC", "id ASC")

	if filter.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID != "" {
		q = q.Where(squirrel.Eq{"warehouse_id": filter.WarehouseID})
	}
	if filter.Source != nil {
		q = q.Where(squirrel.Eq{"source": *filter.Source})
	}
	if filter.ActiveOnly {
		q = q.Where(squirrel.Gt{"remaining_quantity": int64(0)})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"purchased_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"purchased_at": *filter.To})
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

	var items []*lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	return items, nil
}

// Ensure interface compliance.
var _ lots.Repository = (*LotRepo)(nil)
