package costing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/types"
	"lotledger/internal/domain/registers/lots"
)

func lot(qty float64, cost float64) *lots.Lot {
	return lots.NewLot("p1", "w1",
		types.NewQuantityFromFloat64(qty),
		types.NewMoney(cost),
		time.Now(), lots.SourceManual)
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		snapshot []*lots.Lot
		want     float64
		changed  bool
	}{
		{
			name:     "single lot",
			snapshot: []*lots.Lot{lot(10, 100)},
			want:     100,
			changed:  true,
		},
		{
			name:     "two lots weighted",
			snapshot: []*lots.Lot{lot(10, 100), lot(30, 200)},
			want:     175, // (10*100 + 30*200) / 40
			changed:  true,
		},
		{
			name:     "rounds to whole currency unit",
			snapshot: []*lots.Lot{lot(3, 100), lot(3, 101)},
			want:     101, // 100.5 rounds up
			changed:  true,
		},
		{
			name:     "empty snapshot leaves price unchanged",
			snapshot: nil,
			want:     0,
			changed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(tt.snapshot)
			assert.Equal(t, tt.changed, got.Changed)
			if tt.changed {
				assert.True(t, got.UnitCost.Equal(types.NewMoney(tt.want)),
					"want %v got %v", tt.want, got.UnitCost)
			}
		})
	}
}

func TestWeightedAverage_IgnoresDepletedLots(t *testing.T) {
	depleted := lot(5, 999)
	require.NoError(t, depleted.Consume(depleted.RemainingQuantity))

	got := WeightedAverage([]*lots.Lot{depleted, lot(10, 50)})
	require.True(t, got.Changed)
	assert.True(t, got.UnitCost.Equal(types.NewMoney(50)))
	assert.Equal(t, types.NewQuantityFromFloat64(10), got.TotalQuantity)
}

func TestWeightedAverage_AllDepleted_RetainsLastPrice(t *testing.T) {
	depleted := lot(5, 80)
	require.NoError(t, depleted.Consume(depleted.RemainingQuantity))

	got := WeightedAverage([]*lots.Lot{depleted})
	assert.False(t, got.Changed)
}

func TestWeightedAverage_Idempotent(t *testing.T) {
	snapshot := []*lots.Lot{lot(7, 120), lot(2, 90)}
	first := WeightedAverage(snapshot)
	second := WeightedAverage(snapshot)
	assert.True(t, first.UnitCost.Equal(second.UnitCost))
	assert.Equal(t, first.TotalQuantity, second.TotalQuantity)
}

func TestConsumedCost(t *testing.T) {
	cost := ConsumedCost([]Draw{
		{Quantity: types.NewQuantityFromFloat64(5), UnitCost: types.NewMoney(100)},
		{Quantity: types.NewQuantityFromFloat64(2), UnitCost: types.NewMoney(150)},
	})
	assert.True(t, cost.Equal(types.NewMoney(800)))
}
