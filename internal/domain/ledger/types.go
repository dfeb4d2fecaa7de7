// Package ledger implements the inventory ledger operations: receive,
// sell, manufacture, transfer and sale reversal. Every operation mutates
// the product aggregate, the lot/open-unit ledgers and the transaction
// log inside a single serializable storage transaction.
package ledger

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/txlog"
)

// ReceiveInput describes one stock acquisition.
type ReceiveInput struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitCost  types.Money    `json:"unitCost"`

	// WarehouseID defaults to the product's warehouse when empty.
	WarehouseID string `json:"warehouseId,omitempty"`

	// Source defaults to manual.
	Source lots.Source `json:"source,omitempty"`

	// PurchasedAt defaults to now.
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`
}

// ReceiveResult reports the created lot and updated aggregate.
type ReceiveResult struct {
	Transaction *txlog.Transaction `json:"transaction"`
	Lot         *lots.Lot          `json:"lot"`
	Product     *product.Product   `json:"product"`
}

// SaleLine is one item of a sale.
type SaleLine struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Price     types.Money    `json:"price"`

	// LotID selects a specific lot instead of FIFO auto-allocation.
	LotID *id.ID `json:"lotId,omitempty"`
}

// SaleInput describes a (possibly multi-line) sale.
type SaleInput struct {
	Items         []SaleLine `json:"items"`
	CustomerName  string     `json:"customerName,omitempty"`
	CustomerGroup string     `json:"customerGroup,omitempty"`
}

// SaleResult reports per-line transactions and the margin totals.
type SaleResult struct {
	Transactions []*txlog.Transaction `json:"transactions"`
	Products     []*product.Product   `json:"products"`

	TotalAmount types.Money `json:"totalAmount"`
	TotalCost   types.Money `json:"totalCost"`
	Profit      types.Money `json:"profit"`

	// MarginPercent is profit / totalAmount × 100, zero when totalAmount is zero.
	MarginPercent types.Money `json:"marginPercent"`
}

// ComponentUnit is the unit a manufacturing component is requested in.
type ComponentUnit string

const (
	// ComponentUnitWhole requests whole discrete units (bottles).
	ComponentUnitWhole ComponentUnit = "db"
	// ComponentUnitMl requests milliliters of a metered good.
	ComponentUnitMl ComponentUnit = "ml"
	// ComponentUnitDrop requests drops directly.
	ComponentUnitDrop ComponentUnit = "drop"
)

// ComponentInput is one input of a manufacturing run.
type ComponentInput struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Unit      ComponentUnit  `json:"unit"`
}

// OutputSpec names the manufactured product: either an existing one or a
// new product to create (inheriting the warehouse of the first component).
type OutputSpec struct {
	ProductID *id.ID `json:"productId,omitempty"`

	// NewName is set when a new output product must be created.
	NewName     string       `json:"newName,omitempty"`
	NewUnit     product.Unit `json:"newUnit,omitempty"`
	NewCategory string       `json:"newCategory,omitempty"`
}

// ManufactureInput describes a manufacturing run.
type ManufactureInput struct {
	Output         OutputSpec       `json:"output"`
	OutputQuantity types.Quantity   `json:"outputQuantity"`
	Components     []ComponentInput `json:"components"`
}

// ManufactureResult reports the run.
type ManufactureResult struct {
	Transaction *txlog.Transaction `json:"transaction"`
	Product     *product.Product   `json:"product"`
	Components  []txlog.Component  `json:"components"`
}

// TransferInput moves stock between warehouses.
type TransferInput struct {
	ProductID       id.ID          `json:"productId"`
	FromWarehouseID string         `json:"fromWarehouseId"`
	ToWarehouseID   string         `json:"toWarehouseId"`
	Quantity        types.Quantity `json:"quantity"`
}

// TransferResult reports both sides of the move.
type TransferResult struct {
	Transaction *txlog.Transaction `json:"transaction"`
	Source      *product.Product   `json:"source"`
	Destination *product.Product   `json:"destination"`
}

// ReverseResult reports the compensating entry of a sale reversal.
type ReverseResult struct {
	Reversal  *txlog.Transaction `json:"reversal"`
	ReturnLot *lots.Lot          `json:"returnLot"`
	Product   *product.Product   `json:"product"`
}
