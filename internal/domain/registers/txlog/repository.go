package txlog

import (
	"context"
	"time"

	"lotledger/internal/core/id"
)

// Repository defines operations for the transaction log.
type Repository interface {
	// Append inserts one record. Records are never updated afterwards
	// except for the reversal stamp.
	Append(ctx context.Context, tx *Transaction) error

	// GetByID retrieves one record.
	GetByID(ctx context.Context, txID id.ID) (*Transaction, error)

	// GetByIDForUpdate retrieves one record with a row lock (reversal
	// guards against double-reversal under concurrency).
	GetByIDForUpdate(ctx context.Context, txID id.ID) (*Transaction, error)

	// MarkReversed stamps reversed_by_id/reversed_at on a sale record.
	MarkReversed(ctx context.Context, txID, reversalID id.ID, at time.Time) error

	// List returns records for audit endpoints, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Transaction, int64, error)
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	ProductID   string
	WarehouseID string
	Type        *Type
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
