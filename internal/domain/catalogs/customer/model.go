// Package customer provides the Customer catalog.
// Customers accumulate revenue from sales and are matched by name when a
// sale carries a free-text customer field.
package customer

import (
	"context"
	"regexp"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
)

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Customer represents a buyer whose cumulative revenue is tracked.
type Customer struct {
	entity.Catalog

	// GroupName is a free-form customer group label
	GroupName *string `db:"group_name" json:"groupName,omitempty"`

	// Phone is the primary contact phone
	Phone *string `db:"phone" json:"phone,omitempty"`

	// Email is the primary contact email
	Email *string `db:"email" json:"email,omitempty"`

	// TotalRevenue is the cumulative sale amount attributed to this customer.
	// Never negative: reversals floor it at zero.
	TotalRevenue types.Money `db:"total_revenue" json:"totalRevenue"`

	// LastPurchaseAt is stamped on every sale
	LastPurchaseAt *time.Time `db:"last_purchase_at" json:"lastPurchaseAt,omitempty"`
}

// NewCustomer creates a new Customer with required fields.
func NewCustomer(code, name string) *Customer {
	return &Customer{
		Catalog:      entity.NewCatalog(code, name),
		TotalRevenue: types.Zero(),
	}
}

// Validate implements entity.Validatable interface.
func (c *Customer) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.Email != nil && *c.Email != "" && !emailRE.MatchString(*c.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}

	if c.TotalRevenue.IsNegative() {
		return apperror.NewValidation("total revenue cannot be negative").
			WithDetail("field", "totalRevenue")
	}

	return nil
}

// AccrueRevenue adds a sale amount and stamps the purchase time.
func (c *Customer) AccrueRevenue(amount types.Money, at time.Time) {
	c.TotalRevenue = c.TotalRevenue.Add(amount)
	c.LastPurchaseAt = &at
}

// DeductRevenue subtracts a reversed sale amount, floored at zero.
func (c *Customer) DeductRevenue(amount types.Money) {
	c.TotalRevenue = c.TotalRevenue.Sub(amount)
	if c.TotalRevenue.IsNegative() {
		c.TotalRevenue = types.Zero()
	}
}
