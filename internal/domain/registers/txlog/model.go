// Package txlog provides the Transaction Log: the immutable, append-only
// record of every ledger-affecting operation.
package txlog

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Type enumerates the logged operation kinds.
type Type string

const (
	TypeReceiving     Type = "receiving"
	TypeSale          Type = "sale"
	TypeManufacturing Type = "manufacturing"
	TypeTransfer      Type = "transfer"

	// TypeSaleReversal is the compensating entry appended when a sale is
	// reversed. The original sale record is stamped, never deleted.
	TypeSaleReversal Type = "sale-reversal"
)

// Component records one consumed input of a manufacturing run.
type Component struct {
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Unit      string         `json:"unit"`
	CostTotal types.Money    `json:"costTotal"`
}

// Transaction is one audit record. Append-only: reversal appends a
// compensating record and stamps ReversedByID/ReversedAt on the original.
type Transaction struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`
	Type   Type   `db:"type" json:"type"`

	ProductID string         `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`

	// Price is the per-unit price of the operation (sale price, receive
	// unit cost). CostTotal is the consumed-lot cost for sales and
	// manufacturing, used for margin reporting.
	Price     types.Money `db:"price" json:"price"`
	CostTotal types.Money `db:"cost_total" json:"costTotal"`

	CustomerName *string `db:"customer_name" json:"customerName,omitempty"`

	WarehouseID     string  `db:"warehouse_id" json:"warehouseId"`
	FromWarehouseID *string `db:"from_warehouse_id" json:"fromWarehouseId,omitempty"`
	ToWarehouseID   *string `db:"to_warehouse_id" json:"toWarehouseId,omitempty"`

	// Components is set for manufacturing records (JSONB).
	Components []Component `db:"components" json:"components,omitempty"`

	// ReversesID points from a sale-reversal to the sale it undoes.
	// ReversedByID/ReversedAt are stamped on the reversed sale.
	ReversesID   *id.ID     `db:"reverses_id" json:"reversesId,omitempty"`
	ReversedByID *id.ID     `db:"reversed_by_id" json:"reversedById,omitempty"`
	ReversedAt   *time.Time `db:"reversed_at" json:"reversedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
}

// New creates a transaction record with a fresh ID and timestamp.
func New(txType Type, productID, warehouseID string, qty types.Quantity) *Transaction {
	return &Transaction{
		ID:          id.New(),
		Type:        txType,
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		Price:       types.Zero(),
		CostTotal:   types.Zero(),
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks record invariants.
func (t *Transaction) Validate(ctx context.Context) error {
	if !isValidType(t.Type) {
		return apperror.NewValidation("invalid transaction type").
			WithDetail("field", "type").
			WithDetail("value", string(t.Type))
	}
	if t.ProductID == "" {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !t.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if t.Type == TypeTransfer && (t.FromWarehouseID == nil || t.ToWarehouseID == nil) {
		return apperror.NewValidation("transfer requires source and destination warehouses")
	}
	return nil
}

// IsReversed reports whether a compensating entry exists for this sale.
func (t *Transaction) IsReversed() bool {
	return t.ReversedByID != nil
}

func isValidType(tt Type) bool {
	switch tt {
	case TypeReceiving, TypeSale, TypeManufacturing, TypeTransfer, TypeSaleReversal:
		return true
	}
	return false
}
