package postgres

import (
	"context"

	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
)

// SerializableManager wraps TxManager so that every transaction it starts
// runs at serializable isolation. Ledger operations depend on this: two
// concurrent sales against one product must not both pass the stock check
// and consume lots past zero.
//
// Nested calls still reuse the outer transaction, so a ledger operation
// composed of repository calls stays in one serializable scope.
type SerializableManager struct {
	*TxManager
}

// NewSerializableManager wraps a TxManager for serializable execution.
func NewSerializableManager(txManager *TxManager) *SerializableManager {
	return &SerializableManager{TxManager: txManager}
}

// RunInTransaction executes fn in a serializable transaction.
func (m *SerializableManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, SerializableTxOptions(), fn)
}

var _ tx.Manager = (*SerializableManager)(nil)

// LedgerAuditor adapts AuditService to the ledger engine's audit hook.
// Integrity repairs and reversals land in the same sys_audit table as
// catalog changes.
type LedgerAuditor struct {
	audit *AuditService
}

// NewLedgerAuditor creates the adapter.
func NewLedgerAuditor(audit *AuditService) *LedgerAuditor {
	return &LedgerAuditor{audit: audit}
}

// LogChange records one audit entry.
func (a *LedgerAuditor) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	return a.audit.LogChange(ctx, entityType, entityID, AuditAction(action), changes)
}
