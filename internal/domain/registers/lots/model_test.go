package lots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
)

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func validLot() *Lot {
	return NewLot("prod-1", "WH-1", qty(10), types.NewMoney(100), time.Now().UTC(), SourceManual)
}

func TestLotValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(l *Lot)
		wantErr bool
	}{
		{"valid", func(l *Lot) {}, false},
		{"missing product", func(l *Lot) { l.ProductID = "" }, true},
		{"zero quantity", func(l *Lot) { l.OriginalQuantity = qty(0) }, true},
		{"remaining above original", func(l *Lot) { l.RemainingQuantity = qty(11) }, true},
		{"negative remaining", func(l *Lot) { l.RemainingQuantity = qty(-1) }, true},
		{"negative unit cost", func(l *Lot) { l.UnitCost = types.NewMoney(-1) }, true},
		{"unknown source", func(l *Lot) { l.Source = "smuggled" }, true},
		{"zero cost allowed", func(l *Lot) { l.UnitCost = types.Zero() }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLot()
			tt.mutate(l)
			err := l.Validate(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := apperror.AsAppError(err)
				require.True(t, ok)
				assert.Equal(t, apperror.CodeValidation, appErr.Code)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLotConsume(t *testing.T) {
	l := validLot()

	require.NoError(t, l.Consume(qty(4)))
	assert.Equal(t, qty(6), l.RemainingQuantity)
	assert.True(t, l.IsActive())

	// Over-consumption leaves the lot untouched.
	err := l.Consume(qty(7))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, qty(6), l.RemainingQuantity)

	err = l.Consume(qty(0))
	require.Error(t, err)

	require.NoError(t, l.Consume(qty(6)))
	assert.Equal(t, qty(0), l.RemainingQuantity)
	assert.False(t, l.IsActive())

	// A depleted lot keeps its original quantity for history.
	assert.Equal(t, qty(10), l.OriginalQuantity)
}
