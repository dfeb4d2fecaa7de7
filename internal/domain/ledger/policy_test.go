package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticPolicies(t *testing.T) {
	ctx := context.Background()
	req := CorrectionRequest{ProductID: "p1", Shortfall: qty(2)}

	allowed, err := AutoHealPolicy().AllowRepair(ctx, req)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = StrictPolicy().AllowRepair(ctx, req)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestRulePolicyEvaluatesShortfall(t *testing.T) {
	policy, err := NewRulePolicy("shortfall <= 2.0 && ledger_total > 0.0")
	require.NoError(t, err)

	ctx := context.Background()

	allowed, err := policy.AllowRepair(ctx, CorrectionRequest{
		ProductID:       "p1",
		ProductQuantity: qty(10),
		LedgerTotal:     qty(8),
		Shortfall:       qty(2),
	})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = policy.AllowRepair(ctx, CorrectionRequest{
		ProductID:       "p1",
		ProductQuantity: qty(10),
		LedgerTotal:     qty(5),
		Shortfall:       qty(5),
	})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestRulePolicyRejectsBadExpressions(t *testing.T) {
	_, err := NewRulePolicy("shortfall <=")
	require.Error(t, err)

	// Compiles but does not return a bool.
	_, err = NewRulePolicy("shortfall + 1.0")
	require.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	policy, err := PolicyFromConfig("", "")
	require.NoError(t, err)
	require.NotNil(t, policy)

	policy, err = PolicyFromConfig(CorrectionStrict, "")
	require.NoError(t, err)
	allowed, err := policy.AllowRepair(context.Background(), CorrectionRequest{})
	require.NoError(t, err)
	require.False(t, allowed)

	_, err = PolicyFromConfig(CorrectionRule, "shortfall <= 1.0")
	require.NoError(t, err)

	_, err = PolicyFromConfig("whatever", "")
	require.Error(t, err)
}
