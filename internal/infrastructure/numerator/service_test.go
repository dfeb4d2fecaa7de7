package numerator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	corenumerator "lotledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences upsert: every call bumps the
// stored value by the increment argument (1 for strict, range size for
// cached) and returns the new value.
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 2 {
		// Strict strategy passes (prefix string, year int).
		// Cached strategy passes (key string, increment int64).
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("TEST")
	year := time.Now().Year()

	num, err := svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("TEST-%d-00001", year), num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("TEST-%d-00002", year), num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("ORD")
	year := time.Now().Year()

	opts := &corenumerator.Options{
		Strategy:  corenumerator.StrategyCached,
		RangeSize: 10,
	}

	// First call reserves the range 1..10 in one DB round-trip.
	num, err := svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ORD-%d-00001", year), num)
	require.EqualValues(t, 10, q.currentValue)

	// Second call is served from memory, DB does not change.
	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ORD-%d-00002", year), num)
	require.EqualValues(t, 10, q.currentValue)

	// Exhaust the range; the next call reserves 11..20.
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ORD-%d-00011", year), num)
	require.EqualValues(t, 20, q.currentValue)
}

func TestParseNumber(t *testing.T) {
	require.EqualValues(t, 42, ParseNumber("SAL-2026-00042"))
	require.EqualValues(t, 7, ParseNumber("SAL-00007"))
	require.EqualValues(t, -1, ParseNumber("garbage"))
	require.EqualValues(t, -1, ParseNumber("SAL-2026-abc"))
	require.EqualValues(t, -1, ParseNumber(""))
}
