package dto

import (
	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
)

// --- Request DTOs ---

// CreateProductRequest is the request body for creating a product.
// Quantity and purchase price are maintained by the ledger and cannot
// be set here; stock arrives through receivings.
type CreateProductRequest struct {
	Code        string            `json:"code"`
	Name        string            `json:"name" binding:"required"`
	Barcode     *string           `json:"barcode"`
	Category    *string           `json:"category"`
	Unit        product.Unit      `json:"unit" binding:"required"`
	Size        float64           `json:"size"`
	DropsPerMl  int               `json:"dropsPerMl"`
	SalePrice   float64           `json:"salePrice"`
	WarehouseID string            `json:"warehouseId" binding:"required"`
	ParentID    *string           `json:"parentId"`
	IsFolder    bool              `json:"isFolder"`
	Attributes  entity.Attributes `json:"attributes"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.New(r.Code, r.Name, r.Unit, r.WarehouseID)
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.Size = types.NewQuantityFromFloat64(r.Size)
	if r.DropsPerMl > 0 {
		p.DropsPerMl = r.DropsPerMl
	}
	p.SalePrice = types.NewMoney(r.SalePrice)
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Attributes = r.Attributes
	return p
}

// UpdateProductRequest is the request body for updating a product.
type UpdateProductRequest struct {
	Code        string            `json:"code"`
	Name        string            `json:"name" binding:"required"`
	Barcode     *string           `json:"barcode,omitempty"`
	Category    *string           `json:"category,omitempty"`
	Unit        product.Unit      `json:"unit" binding:"required"`
	Size        float64           `json:"size"`
	DropsPerMl  int               `json:"dropsPerMl"`
	SalePrice   float64           `json:"salePrice"`
	WarehouseID string            `json:"warehouseId" binding:"required"`
	ParentID    *string           `json:"parentId,omitempty"`
	IsFolder    bool              `json:"isFolder"`
	Attributes  entity.Attributes `json:"attributes"`
	Version     int               `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity. Ledger-maintained
// fields (quantity, purchase price) are left untouched.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	p.Code = r.Code
	p.Name = r.Name
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.Unit = r.Unit
	p.Size = types.NewQuantityFromFloat64(r.Size)
	if r.DropsPerMl > 0 {
		p.DropsPerMl = r.DropsPerMl
	}
	p.SalePrice = types.NewMoney(r.SalePrice)
	p.WarehouseID = r.WarehouseID
	p.ParentID = r.ParentID
	p.IsFolder = r.IsFolder
	p.Attributes = r.Attributes
	p.Version = r.Version
}

// --- Response DTOs ---

// ProductResponse is the response body for a product.
type ProductResponse struct {
	ID            string            `json:"id"`
	Code          string            `json:"code"`
	Name          string            `json:"name"`
	Barcode       *string           `json:"barcode,omitempty"`
	Category      *string           `json:"category,omitempty"`
	Unit          product.Unit      `json:"unit"`
	Size          float64           `json:"size"`
	DropsPerMl    int               `json:"dropsPerMl"`
	Quantity      float64           `json:"quantity"`
	PurchasePrice types.Money       `json:"purchasePrice"`
	SalePrice     types.Money       `json:"salePrice"`
	WarehouseID   string            `json:"warehouseId"`
	ParentID      *string           `json:"parentId,omitempty"`
	IsFolder      bool              `json:"isFolder"`
	DeletionMark  bool              `json:"deletionMark"`
	Version       int               `json:"version"`
	Attributes    entity.Attributes `json:"attributes,omitempty"`
}

// FromProduct creates response DTO from domain entity.
func FromProduct(p *product.Product) *ProductResponse {
	return &ProductResponse{
		ID:            p.ID.String(),
		Code:          p.Code,
		Name:          p.Name,
		Barcode:       p.Barcode,
		Category:      p.Category,
		Unit:          p.Unit,
		Size:          p.Size.Float64(),
		DropsPerMl:    p.DropsPerMl,
		Quantity:      p.Quantity.Float64(),
		PurchasePrice: p.PurchasePrice,
		SalePrice:     p.SalePrice,
		WarehouseID:   p.WarehouseID,
		ParentID:      p.ParentID,
		IsFolder:      p.IsFolder,
		DeletionMark:  p.DeletionMark,
		Version:       p.Version,
		Attributes:    p.Attributes,
	}
}
