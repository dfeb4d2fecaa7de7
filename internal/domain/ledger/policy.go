package ledger

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"lotledger/internal/core/types"
)

// CorrectionMode decides what happens when the product aggregate reports
// more stock than the active lots can cover.
type CorrectionMode string

const (
	// CorrectionAutoHeal inserts a sale-correction lot for the shortfall,
	// priced at the current purchase price. The repair is audit-logged.
	CorrectionAutoHeal CorrectionMode = "auto-heal"

	// CorrectionStrict rejects the operation with insufficient stock,
	// treating the drift as corruption to repair out-of-band.
	CorrectionStrict CorrectionMode = "strict"

	// CorrectionRule delegates the decision to a CEL expression.
	CorrectionRule CorrectionMode = "rule"
)

// CorrectionRequest carries the drift facts a policy decides on.
type CorrectionRequest struct {
	ProductID       string
	ProductQuantity types.Quantity
	LedgerTotal     types.Quantity
	Shortfall       types.Quantity
}

// CorrectionPolicy decides whether a ledger shortfall may be auto-healed.
type CorrectionPolicy interface {
	// AllowRepair returns true when a correction lot may be inserted.
	AllowRepair(ctx context.Context, req CorrectionRequest) (bool, error)
}

// staticPolicy always answers the same way.
type staticPolicy bool

func (p staticPolicy) AllowRepair(context.Context, CorrectionRequest) (bool, error) {
	return bool(p), nil
}

// AutoHealPolicy always repairs (the default).
func AutoHealPolicy() CorrectionPolicy { return staticPolicy(true) }

// StrictPolicy never repairs.
func StrictPolicy() CorrectionPolicy { return staticPolicy(false) }

// celPolicy evaluates a compiled CEL expression over the drift facts.
type celPolicy struct {
	program cel.Program
	expr    string
}

// NewRulePolicy compiles a CEL expression deciding repairs. The expression
// sees product_id (string), product_quantity, ledger_total and shortfall
// (doubles) and must return a bool, e.g.:
//
//	shortfall <= 2.0 && ledger_total > 0.0
func NewRulePolicy(expr string) (CorrectionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("product_id", cel.StringType),
		cel.Variable("product_quantity", cel.DoubleType),
		cel.Variable("ledger_total", cel.DoubleType),
		cel.Variable("shortfall", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("correction rule env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile correction rule: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("correction rule must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("correction rule program: %w", err)
	}

	return &celPolicy{program: prg, expr: expr}, nil
}

func (p *celPolicy) AllowRepair(ctx context.Context, req CorrectionRequest) (bool, error) {
	out, _, err := p.program.ContextEval(ctx, map[string]any{
		"product_id":       req.ProductID,
		"product_quantity": req.ProductQuantity.Float64(),
		"ledger_total":     req.LedgerTotal.Float64(),
		"shortfall":        req.Shortfall.Float64(),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate correction rule %q: %w", p.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("correction rule %q returned %T, want bool", p.expr, out.Value())
	}
	return allowed, nil
}

// PolicyFromConfig builds a policy from configuration values.
func PolicyFromConfig(mode CorrectionMode, rule string) (CorrectionPolicy, error) {
	switch mode {
	case "", CorrectionAutoHeal:
		return AutoHealPolicy(), nil
	case CorrectionStrict:
		return StrictPolicy(), nil
	case CorrectionRule:
		return NewRulePolicy(rule)
	default:
		return nil, fmt.Errorf("unknown correction mode %q", mode)
	}
}
