package dto

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/txlog"
)

// --- Receive ---

// ReceiveRequest is the request body for a stock receiving.
type ReceiveRequest struct {
	ProductID   string     `json:"productId" binding:"required"`
	Quantity    float64    `json:"quantity" binding:"required,gt=0"`
	UnitCost    float64    `json:"unitCost" binding:"min=0"`
	WarehouseID string     `json:"warehouseId"`
	Source      string     `json:"source"`
	PurchasedAt *time.Time `json:"purchasedAt"`
}

// ToInput converts the request into a ledger input.
func (r *ReceiveRequest) ToInput() (ledger.ReceiveInput, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return ledger.ReceiveInput{}, apperror.NewValidation("invalid productId format")
	}
	return ledger.ReceiveInput{
		ProductID:   productID,
		Quantity:    types.NewQuantityFromFloat64(r.Quantity),
		UnitCost:    types.NewMoney(r.UnitCost),
		WarehouseID: r.WarehouseID,
		Source:      lots.Source(r.Source),
		PurchasedAt: r.PurchasedAt,
	}, nil
}

// --- Sale ---

// SaleLineRequest is one item of a sale request.
type SaleLineRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required,gt=0"`
	Price     float64 `json:"price" binding:"min=0"`

	// LotID selects a specific lot instead of FIFO auto-allocation.
	LotID *string `json:"lotId"`
}

// SaleRequest is the request body for a (possibly multi-line) sale.
type SaleRequest struct {
	Items         []SaleLineRequest `json:"items" binding:"required,min=1,dive"`
	CustomerName  string            `json:"customerName"`
	CustomerGroup string            `json:"customerGroup"`
}

// ToInput converts the request into a ledger input.
func (r *SaleRequest) ToInput() (ledger.SaleInput, error) {
	items := make([]ledger.SaleLine, 0, len(r.Items))
	for _, line := range r.Items {
		productID, err := id.Parse(line.ProductID)
		if err != nil {
			return ledger.SaleInput{}, apperror.NewValidation("invalid productId format").
				WithDetail("product_id", line.ProductID)
		}

		item := ledger.SaleLine{
			ProductID: productID,
			Quantity:  types.NewQuantityFromFloat64(line.Quantity),
			Price:     types.NewMoney(line.Price),
		}
		if line.LotID != nil && *line.LotID != "" {
			lotID, err := id.Parse(*line.LotID)
			if err != nil {
				return ledger.SaleInput{}, apperror.NewValidation("invalid lotId format").
					WithDetail("lot_id", *line.LotID)
			}
			item.LotID = &lotID
		}
		items = append(items, item)
	}

	return ledger.SaleInput{
		Items:         items,
		CustomerName:  r.CustomerName,
		CustomerGroup: r.CustomerGroup,
	}, nil
}

// --- Manufacture ---

// ComponentRequest is one input of a manufacturing request.
type ComponentRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required,gt=0"`
	Unit      string  `json:"unit"`
}

// ManufactureOutputRequest names the manufactured product: either an
// existing product or a new one to create.
type ManufactureOutputRequest struct {
	ProductID   *string `json:"productId"`
	NewName     string  `json:"newName"`
	NewUnit     string  `json:"newUnit"`
	NewCategory string  `json:"newCategory"`
}

// ManufactureRequest is the request body for a manufacturing run.
type ManufactureRequest struct {
	Output         ManufactureOutputRequest `json:"output" binding:"required"`
	OutputQuantity float64                  `json:"outputQuantity" binding:"required,gt=0"`
	Components     []ComponentRequest       `json:"components" binding:"required,min=1,dive"`
}

// ToInput converts the request into a ledger input.
func (r *ManufactureRequest) ToInput() (ledger.ManufactureInput, error) {
	input := ledger.ManufactureInput{
		OutputQuantity: types.NewQuantityFromFloat64(r.OutputQuantity),
	}

	if r.Output.ProductID != nil && *r.Output.ProductID != "" {
		outputID, err := id.Parse(*r.Output.ProductID)
		if err != nil {
			return ledger.ManufactureInput{}, apperror.NewValidation("invalid output productId format")
		}
		input.Output.ProductID = &outputID
	}
	input.Output.NewName = r.Output.NewName
	input.Output.NewUnit = product.Unit(r.Output.NewUnit)
	input.Output.NewCategory = r.Output.NewCategory

	for _, comp := range r.Components {
		productID, err := id.Parse(comp.ProductID)
		if err != nil {
			return ledger.ManufactureInput{}, apperror.NewValidation("invalid component productId format").
				WithDetail("product_id", comp.ProductID)
		}
		input.Components = append(input.Components, ledger.ComponentInput{
			ProductID: productID,
			Quantity:  types.NewQuantityFromFloat64(comp.Quantity),
			Unit:      ledger.ComponentUnit(comp.Unit),
		})
	}

	return input, nil
}

// --- Transfer ---

// TransferRequest is the request body for a warehouse transfer.
type TransferRequest struct {
	ProductID       string  `json:"productId" binding:"required"`
	FromWarehouseID string  `json:"fromWarehouseId"`
	ToWarehouseID   string  `json:"toWarehouseId" binding:"required"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
}

// ToInput converts the request into a ledger input.
func (r *TransferRequest) ToInput() (ledger.TransferInput, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return ledger.TransferInput{}, apperror.NewValidation("invalid productId format")
	}
	return ledger.TransferInput{
		ProductID:       productID,
		FromWarehouseID: r.FromWarehouseID,
		ToWarehouseID:   r.ToWarehouseID,
		Quantity:        types.NewQuantityFromFloat64(r.Quantity),
	}, nil
}

// --- Query DTOs ---

// LotListRequest filters lot listings.
type LotListRequest struct {
	ProductID   string     `form:"productId"`
	WarehouseID string     `form:"warehouseId"`
	Source      string     `form:"source"`
	ActiveOnly  bool       `form:"activeOnly"`
	From        *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int        `form:"limit"`
	Offset      int        `form:"offset"`
}

// ToFilter converts the query into a repository filter.
func (r *LotListRequest) ToFilter() lots.ListFilter {
	filter := lots.ListFilter{
		ProductID:   r.ProductID,
		WarehouseID: r.WarehouseID,
		ActiveOnly:  r.ActiveOnly,
		From:        r.From,
		To:          r.To,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
	if r.Source != "" {
		src := lots.Source(r.Source)
		filter.Source = &src
	}
	return filter
}

// TransactionListRequest filters transaction log listings.
type TransactionListRequest struct {
	ProductID   string     `form:"productId"`
	WarehouseID string     `form:"warehouseId"`
	Type        string     `form:"type"`
	From        *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int        `form:"limit"`
	Offset      int        `form:"offset"`
}

// ToFilter converts the query into a repository filter.
func (r *TransactionListRequest) ToFilter() txlog.ListFilter {
	filter := txlog.ListFilter{
		ProductID:   r.ProductID,
		WarehouseID: r.WarehouseID,
		From:        r.From,
		To:          r.To,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
	if r.Type != "" {
		txType := txlog.Type(r.Type)
		filter.Type = &txType
	}
	return filter
}
