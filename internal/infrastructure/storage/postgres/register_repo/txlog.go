package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/internal/infrastructure/storage/postgres"
)

const txLogTable = "reg_transactions"

var txLogColumns = []string{
	"id", "number", "type",
	"product_id", "quantity", "price", "cost_total",
	"customer_name", "warehouse_id", "from_warehouse_id", "to_warehouse_id",
	"components", "reverses_id", "reversed_by_id", "reversed_at",
	"created_at", "created_by",
}

// TxLogRepo implements txlog.Repository.
type TxLogRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewTxLogRepo creates a new transaction log repository.
func NewTxLogRepo(txManager *postgres.TxManager) *TxLogRepo {
	return &TxLogRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one record.
func (r *TxLogRepo) Append(ctx context.Context, t *txlog.Transaction) error {
	q := r.builder.Insert(txLogTable).
		Columns(txLogColumns...).
		Values(
			t.ID, t.Number, t.Type,
			t.ProductID, t.Quantity, t.Price, t.CostTotal,
			t.CustomerName, t.WarehouseID, t.FromWarehouseID, t.ToWarehouseID,
			t.Components, t.ReversesID, t.ReversedByID, t.ReversedAt,
			t.CreatedAt, t.CreatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves one record.
func (r *TxLogRepo) GetByID(ctx context.Context, txID id.ID) (*txlog.Transaction, error) {
	return r.getByID(ctx, txID, false)
}

// GetByIDForUpdate retrieves one record with a row lock.
func (r *TxLogRepo) GetByIDForUpdate(ctx context.Context, txID id.ID) (*txlog.Transaction, error) {
	return r.getByID(ctx, txID, true)
}

func (r *TxLogRepo) getByID(ctx context.Context, txID id.ID, forUpdate bool) (*txlog.Transaction, error) {
	q := r.builder.Select(txLogColumns...).
		From(txLogTable).
		Where(squirrel.Eq{"id": txID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t txlog.Transaction
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transaction", txID.String())
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

// MarkReversed stamps reversed_by_id/reversed_at on a record. The guard
// keeps two concurrent reversals from both succeeding.
func (r *TxLogRepo) MarkReversed(ctx context.Context, txID, reversalID id.ID, at time.Time) error {
	sql := `
		UPDATE reg_transactions
		SET reversed_by_id = $2, reversed_at = $3
		WHERE id = $1 AND reversed_by_id IS NULL
	`

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, txID, reversalID, at)
	if err != nil {
		return fmt.Errorf("mark reversed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewInvalidOperation("transaction is already reversed").
			WithDetail("transaction_id", txID.String())
	}
	return nil
}

// List returns records newest-first with the total match count.
func (r *TxLogRepo) List(ctx context.Context, filter txlog.ListFilter) ([]*txlog.Transaction, int64, error) {
	base := r.builder.Select(txLogColumns...).From(txLogTable)

	if filter.ProductID != "" {
		base = base.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.WarehouseID != "" {
		base = base.Where(squirrel.Or{
			squirrel.Eq{"warehouse_id": filter.WarehouseID},
			squirrel.Eq{"from_warehouse_id": filter.WarehouseID},
			squirrel.Eq{"to_warehouse_id": filter.WarehouseID},
		})
	}
	if filter.Type != nil {
		base = base.Where(squirrel.Eq{"type": *filter.Type})
	}
	if filter.From != nil {
		base = base.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		base = base.Where(squirrel.LtOrEq{"created_at": *filter.To})
	}

	countQ := r.builder.Select("COUNT(*)").FromSelect(base, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	q := base.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var items []*txlog.Transaction
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select transactions: %w", err)
	}
	return items, total, nil
}

// Ensure interface compliance.
var _ txlog.Repository = (*TxLogRepo)(nil)
