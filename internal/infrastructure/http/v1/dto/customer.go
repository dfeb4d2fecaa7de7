package dto

import (
	"time"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/customer"
)

// --- Request DTOs ---

// CreateCustomerRequest is the request body for creating a customer.
// Total revenue is accrued by the sale path and cannot be set here.
type CreateCustomerRequest struct {
	Code       string            `json:"code"`
	Name       string            `json:"name" binding:"required"`
	GroupName  *string           `json:"groupName"`
	Phone      *string           `json:"phone"`
	Email      *string           `json:"email"`
	ParentID   *string           `json:"parentId"`
	IsFolder   bool              `json:"isFolder"`
	Attributes entity.Attributes `json:"attributes"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateCustomerRequest) ToEntity() *customer.Customer {
	c := customer.NewCustomer(r.Code, r.Name)
	c.GroupName = r.GroupName
	c.Phone = r.Phone
	c.Email = r.Email
	c.ParentID = r.ParentID
	c.IsFolder = r.IsFolder
	c.Attributes = r.Attributes
	return c
}

// UpdateCustomerRequest is the request body for updating a customer.
type UpdateCustomerRequest struct {
	Code       string            `json:"code"`
	Name       string            `json:"name" binding:"required"`
	GroupName  *string           `json:"groupName,omitempty"`
	Phone      *string           `json:"phone,omitempty"`
	Email      *string           `json:"email,omitempty"`
	ParentID   *string           `json:"parentId,omitempty"`
	IsFolder   bool              `json:"isFolder"`
	Attributes entity.Attributes `json:"attributes"`
	Version    int               `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateCustomerRequest) ApplyTo(c *customer.Customer) {
	c.Code = r.Code
	c.Name = r.Name
	c.GroupName = r.GroupName
	c.Phone = r.Phone
	c.Email = r.Email
	c.ParentID = r.ParentID
	c.IsFolder = r.IsFolder
	c.Attributes = r.Attributes
	c.Version = r.Version
}

// --- Response DTOs ---

// CustomerResponse is the response body for a customer.
type CustomerResponse struct {
	ID             string            `json:"id"`
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	GroupName      *string           `json:"groupName,omitempty"`
	Phone          *string           `json:"phone,omitempty"`
	Email          *string           `json:"email,omitempty"`
	TotalRevenue   types.Money       `json:"totalRevenue"`
	LastPurchaseAt *time.Time        `json:"lastPurchaseAt,omitempty"`
	ParentID       *string           `json:"parentId,omitempty"`
	IsFolder       bool              `json:"isFolder"`
	DeletionMark   bool              `json:"deletionMark"`
	Version        int               `json:"version"`
	Attributes     entity.Attributes `json:"attributes,omitempty"`
}

// FromCustomer creates response DTO from domain entity.
func FromCustomer(c *customer.Customer) *CustomerResponse {
	return &CustomerResponse{
		ID:             c.ID.String(),
		Code:           c.Code,
		Name:           c.Name,
		GroupName:      c.GroupName,
		Phone:          c.Phone,
		Email:          c.Email,
		TotalRevenue:   c.TotalRevenue,
		LastPurchaseAt: c.LastPurchaseAt,
		ParentID:       c.ParentID,
		IsFolder:       c.IsFolder,
		DeletionMark:   c.DeletionMark,
		Version:        c.Version,
		Attributes:     c.Attributes,
	}
}
