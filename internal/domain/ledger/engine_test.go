package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/numerator"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/domain/registers/txlog"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc       *Service
	products  *memProducts
	lots      *memLots
	openUnits *memOpenUnits
	txLog     *memTxLog
	customers *memCustomers
	auditor   *memAuditor
}

func newTestEnv(policy CorrectionPolicy) *testEnv {
	env := &testEnv{
		products:  newMemProducts(),
		lots:      newMemLots(),
		openUnits: newMemOpenUnits(),
		txLog:     newMemTxLog(),
		customers: newMemCustomers(),
		auditor:   &memAuditor{},
	}
	env.svc = NewService(Config{
		TxManager: passthroughTxManager{},
		Products:  env.products,
		Lots:      env.lots,
		OpenUnits: env.openUnits,
		TxLog:     env.txLog,
		Customers: env.customers,
		Numerator: seqNumerator(),
		Policy:    policy,
		Auditor:   env.auditor,
		Now:       func() time.Time { return baseTime },
	})
	return env
}

// seqNumerator hands out PREFIX-YEAR-00001 style numbers per prefix.
func seqNumerator() *numerator.MockGenerator {
	var mu sync.Mutex
	counts := map[string]int64{}
	return &numerator.MockGenerator{
		GetNextNumberFunc: func(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			counts[cfg.Prefix]++
			return fmt.Sprintf("%s-%d-%05d", cfg.Prefix, period.Year(), counts[cfg.Prefix]), nil
		},
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func assertMoney(t *testing.T, want float64, got types.Money) {
	t.Helper()
	require.Truef(t, got.Equal(types.NewMoney(want)), "want %v, got %s", want, got)
}

func (e *testEnv) createProduct(t *testing.T, name string, unit product.Unit) *product.Product {
	t.Helper()
	p := product.New("TST-"+name, name, unit, "WH-1")
	require.NoError(t, e.products.Create(context.Background(), p))
	return p
}

func (e *testEnv) createMeteredProduct(t *testing.T, name string, sizeMl float64, dropsPerMl int) *product.Product {
	t.Helper()
	p := product.New("TST-"+name, name, product.UnitMl, "WH-1")
	p.Size = qty(sizeMl)
	p.DropsPerMl = dropsPerMl
	require.NoError(t, e.products.Create(context.Background(), p))
	return p
}

func (e *testEnv) mustReceive(t *testing.T, p *product.Product, quantity, unitCost float64, at time.Time) *ReceiveResult {
	t.Helper()
	res, err := e.svc.Receive(context.Background(), ReceiveInput{
		ProductID:   p.ID,
		Quantity:    qty(quantity),
		UnitCost:    types.NewMoney(unitCost),
		PurchasedAt: &at,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) getProduct(t *testing.T, productID id.ID) *product.Product {
	t.Helper()
	p, err := e.products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p
}

// --- receive ---

func TestReceiveCreatesLotAndRecomputesAverage(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Base Oil", product.UnitPiece)

	env.mustReceive(t, p, 10, 100, baseTime)
	res := env.mustReceive(t, p, 5, 160, baseTime.Add(time.Hour))

	got := env.getProduct(t, p.ID)
	require.Equal(t, qty(15), got.Quantity)
	// (10×100 + 5×160) / 15 = 120
	assertMoney(t, 120, got.PurchasePrice)

	require.Equal(t, txlog.TypeReceiving, res.Transaction.Type)
	require.Equal(t, "RCV-2026-00002", res.Transaction.Number)
	require.Equal(t, baseTime, res.Transaction.CreatedAt)
	assertMoney(t, 800, res.Transaction.CostTotal)

	active, err := env.lots.FindActive(context.Background(), p.ID.String(), "")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, lots.SourceManual, active[0].Source)
}

func TestReceiveRejectsBadInput(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Base Oil", product.UnitPiece)

	_, err := env.svc.Receive(context.Background(), ReceiveInput{ProductID: p.ID, Quantity: qty(0), UnitCost: types.NewMoney(10)})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeValidation, appErr.Code)

	_, err = env.svc.Receive(context.Background(), ReceiveInput{ProductID: id.New(), Quantity: qty(1), UnitCost: types.NewMoney(10)})
	require.True(t, apperror.IsNotFound(err))
}

// --- sell ---

func TestSellConsumesLotsFIFO(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 5, 100, baseTime)
	env.mustReceive(t, p, 5, 120, baseTime.Add(time.Hour))
	env.mustReceive(t, p, 5, 140, baseTime.Add(2*time.Hour))

	res, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(7), Price: types.NewMoney(200)}},
	})
	require.NoError(t, err)

	// Oldest lot fully drained, second partially: 5×100 + 2×120.
	assertMoney(t, 740, res.TotalCost)
	assertMoney(t, 1400, res.TotalAmount)
	assertMoney(t, 660, res.Profit)
	assertMoney(t, 47.14, res.MarginPercent)

	got := env.getProduct(t, p.ID)
	require.Equal(t, qty(8), got.Quantity)
	// Remaining lots: 3×120 + 5×140 over 8 units = 132.5, rounded to 133.
	assertMoney(t, 133, got.PurchasePrice)

	active, err := env.lots.FindActive(context.Background(), p.ID.String(), "")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, qty(3), active[0].RemainingQuantity)
	require.Equal(t, qty(5), active[1].RemainingQuantity)

	require.Len(t, res.Transactions, 1)
	require.Equal(t, txlog.TypeSale, res.Transactions[0].Type)
	require.Equal(t, "SAL-2026-00001", res.Transactions[0].Number)
}

func TestSellFromExplicitLot(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 5, 100, baseTime)
	newest := env.mustReceive(t, p, 5, 140, baseTime.Add(time.Hour))

	res, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(2), Price: types.NewMoney(200), LotID: &newest.Lot.ID}},
	})
	require.NoError(t, err)
	assertMoney(t, 280, res.TotalCost)

	// The older lot stays untouched even though FIFO would have hit it.
	active, err := env.lots.FindActive(context.Background(), p.ID.String(), "")
	require.NoError(t, err)
	require.Equal(t, qty(5), active[0].RemainingQuantity)
	require.Equal(t, qty(3), active[1].RemainingQuantity)
}

func TestSellInsufficientStockLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 15, 100, baseTime)

	_, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(20), Price: types.NewMoney(200)}},
	})
	require.True(t, apperror.IsInsufficientStock(err))
	appErr, _ := apperror.AsAppError(err)
	require.InDelta(t, 20.0, appErr.Details["requested"], 0.0001)
	require.InDelta(t, 15.0, appErr.Details["available"], 0.0001)

	require.Equal(t, qty(15), env.getProduct(t, p.ID).Quantity)
	total, err := env.lots.SumActive(context.Background(), p.ID.String())
	require.NoError(t, err)
	require.Equal(t, qty(15), total)
	require.Empty(t, env.txLog.byType(txlog.TypeSale))
}

func TestSellMultiLineAbortsBeforeAnyMutation(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 15, 100, baseTime)

	// Each line fits alone; together they exceed stock. The whole request
	// must fail with nothing consumed.
	_, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{
			{ProductID: p.ID, Quantity: qty(10), Price: types.NewMoney(200)},
			{ProductID: p.ID, Quantity: qty(6), Price: types.NewMoney(200)},
		},
	})
	require.True(t, apperror.IsInsufficientStock(err))

	require.Equal(t, qty(15), env.getProduct(t, p.ID).Quantity)
	total, err := env.lots.SumActive(context.Background(), p.ID.String())
	require.NoError(t, err)
	require.Equal(t, qty(15), total)
	require.Empty(t, env.txLog.byType(txlog.TypeSale))
}

func TestSellAutoHealsLedgerDrift(t *testing.T) {
	env := newTestEnv(AutoHealPolicy())
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 8, 100, baseTime)

	// Simulate drift: the aggregate claims more than the lots cover.
	drifted := env.getProduct(t, p.ID)
	drifted.Quantity = qty(10)
	require.NoError(t, env.products.Update(context.Background(), drifted))

	res, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(10), Price: types.NewMoney(150)}},
	})
	require.NoError(t, err)

	// 8 units from the real lot + 2 from the correction lot, both at 100.
	assertMoney(t, 1000, res.TotalCost)
	require.Equal(t, qty(0), env.getProduct(t, p.ID).Quantity)

	corrections := env.lots.bySource(lots.SourceSaleCorrection)
	require.Len(t, corrections, 1)
	require.Equal(t, qty(2), corrections[0].OriginalQuantity)
	require.Equal(t, qty(0), corrections[0].RemainingQuantity)
	assertMoney(t, 100, corrections[0].UnitCost)

	repairs := env.auditor.byAction("repair")
	require.Len(t, repairs, 1)
	require.Equal(t, "lot", repairs[0].EntityType)
}

func TestSellStrictPolicyRejectsDrift(t *testing.T) {
	env := newTestEnv(StrictPolicy())
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 8, 100, baseTime)

	drifted := env.getProduct(t, p.ID)
	drifted.Quantity = qty(10)
	require.NoError(t, env.products.Update(context.Background(), drifted))

	_, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(10), Price: types.NewMoney(150)}},
	})
	require.True(t, apperror.IsInsufficientStock(err))
	require.Empty(t, env.lots.bySource(lots.SourceSaleCorrection))
	require.Empty(t, env.auditor.byAction("repair"))
}

func TestSellAccruesCustomerRevenue(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	_, err := env.svc.Sell(context.Background(), SaleInput{
		Items:        []SaleLine{{ProductID: p.ID, Quantity: qty(2), Price: types.NewMoney(250)}},
		CustomerName: "Anna",
	})
	require.NoError(t, err)

	c, err := env.customers.FindByName(context.Background(), "Anna")
	require.NoError(t, err)
	assertMoney(t, 500, c.TotalRevenue)
	require.NotNil(t, c.LastPurchaseAt)
	require.Equal(t, "CST-2026-00001", c.Code)

	// Repeat sale accrues onto the same customer.
	_, err = env.svc.Sell(context.Background(), SaleInput{
		Items:        []SaleLine{{ProductID: p.ID, Quantity: qty(1), Price: types.NewMoney(250)}},
		CustomerName: "Anna",
	})
	require.NoError(t, err)

	c, err = env.customers.FindByName(context.Background(), "Anna")
	require.NoError(t, err)
	assertMoney(t, 750, c.TotalRevenue)
}

// --- manufacture ---

func TestManufactureOpensUnitForDrops(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20) // 300 drops per unit
	env.mustReceive(t, oil, 2, 300, baseTime)

	res, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Roll-on Blend", NewUnit: product.UnitPiece},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(150), Unit: ComponentUnitDrop},
		},
	})
	require.NoError(t, err)

	// One unit opened: half consumed, half stays as an open unit.
	require.Equal(t, qty(1), env.getProduct(t, oil.ID).Quantity)

	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(150), open[0].RemainingDrops)
	require.Equal(t, int64(300), open[0].TotalDrops)
	assertMoney(t, 300, open[0].UnitCost)

	// 150 of 300 drops of a 300-cost unit.
	require.Len(t, res.Components, 1)
	assertMoney(t, 150, res.Components[0].CostTotal)
	assertMoney(t, 150, res.Transaction.CostTotal)

	// Output product created with a lot at component cost / output quantity.
	out := env.getProduct(t, res.Product.ID)
	require.Equal(t, "Roll-on Blend", out.Name)
	require.Equal(t, qty(1), out.Quantity)
	assertMoney(t, 150, out.PurchasePrice)

	outLots, err := env.lots.FindActive(context.Background(), out.ID.String(), "")
	require.NoError(t, err)
	require.Len(t, outLots, 1)
	require.Equal(t, lots.SourceOther, outLots[0].Source)
}

func TestManufactureDrawsOpenUnitsFirst(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20)
	env.mustReceive(t, oil, 2, 300, baseTime)

	leftover := openunits.NewOpenUnit(oil.ID.String(), "WH-1", 100, 300, types.NewMoney(300))
	leftover.OpenedAt = baseTime.Add(-time.Hour)
	require.NoError(t, env.openUnits.Create(context.Background(), leftover))

	res, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(150), Unit: ComponentUnitDrop},
		},
	})
	require.NoError(t, err)

	// 100 drops drain the open unit (deleted at zero), 50 come from a
	// freshly opened whole unit.
	require.Equal(t, qty(1), env.getProduct(t, oil.ID).Quantity)

	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(250), open[0].RemainingDrops)

	assertMoney(t, 150, res.Transaction.CostTotal)
}

func TestManufactureConvertsMlToDrops(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20)
	env.mustReceive(t, oil, 1, 300, baseTime)

	// 5 ml × 20 drops/ml = 100 drops.
	_, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(5), Unit: ComponentUnitMl},
		},
	})
	require.NoError(t, err)

	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(200), open[0].RemainingDrops)
}

func TestManufactureWholeUnitComponent(t *testing.T) {
	env := newTestEnv(nil)
	bottle := env.createProduct(t, "Empty Bottle", product.UnitPiece)
	env.mustReceive(t, bottle, 10, 5, baseTime)

	res, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Kit"},
		OutputQuantity: qty(2),
		Components: []ComponentInput{
			{ProductID: bottle.ID, Quantity: qty(2), Unit: ComponentUnitWhole},
		},
	})
	require.NoError(t, err)

	require.Equal(t, qty(8), env.getProduct(t, bottle.ID).Quantity)
	assertMoney(t, 10, res.Transaction.CostTotal)
	// 10 cost over 2 output units.
	assertMoney(t, 5, env.getProduct(t, res.Product.ID).PurchasePrice)
}

func TestManufactureInsufficientComponentStock(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20)
	env.mustReceive(t, oil, 1, 300, baseTime)

	// 400 drops need two whole units; only one is held.
	_, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(400), Unit: ComponentUnitDrop},
		},
	})
	require.True(t, apperror.IsInsufficientStock(err))

	require.Equal(t, qty(1), env.getProduct(t, oil.ID).Quantity)
	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Empty(t, open)
	require.Empty(t, env.txLog.byType(txlog.TypeManufacturing))
}

func TestManufactureRejectsDropsOfDiscreteProduct(t *testing.T) {
	env := newTestEnv(nil)
	bottle := env.createProduct(t, "Empty Bottle", product.UnitPiece)
	env.mustReceive(t, bottle, 10, 5, baseTime)

	_, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Kit"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: bottle.ID, Quantity: qty(10), Unit: ComponentUnitDrop},
		},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidOperation, appErr.Code)
}

func TestManufactureSameProductDropComponentsShareOpenUnits(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20) // 300 drops per unit
	env.mustReceive(t, oil, 1, 300, baseTime)

	// Open the only unit: 150 drops consumed, 150 left open, aggregate 0.
	_, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend A"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(150), Unit: ComponentUnitDrop},
		},
	})
	require.NoError(t, err)
	require.Equal(t, qty(0), env.getProduct(t, oil.ID).Quantity)

	// Two 100-drop components of the same product: the 150 open drops
	// cover only one of them, and no whole unit is left to open.
	_, err = env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend B"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(100), Unit: ComponentUnitDrop},
			{ProductID: oil.ID, Quantity: qty(100), Unit: ComponentUnitDrop},
		},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInsufficientStock, appErr.Code)

	// Rejected before any mutation: aggregate non-negative, the open unit
	// untouched, no correction lot minted.
	require.Equal(t, qty(0), env.getProduct(t, oil.ID).Quantity)

	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(150), open[0].RemainingDrops)

	active, err := env.lots.FindActive(context.Background(), oil.ID.String(), "")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestManufactureCreditsLeftoverOfOpenedUnitToLaterComponents(t *testing.T) {
	env := newTestEnv(nil)
	oil := env.createMeteredProduct(t, "Lavender 15ml", 15, 20)
	env.mustReceive(t, oil, 2, 300, baseTime)

	leftover := openunits.NewOpenUnit(oil.ID.String(), "WH-1", 150, 300, types.NewMoney(300))
	leftover.OpenedAt = baseTime.Add(-time.Hour)
	require.NoError(t, env.openUnits.Create(context.Background(), leftover))

	// First component drains the open unit and opens one whole unit; its
	// 250-drop tail must cover the second component without opening the
	// last remaining unit.
	res, err := env.svc.Manufacture(context.Background(), ManufactureInput{
		Output:         OutputSpec{NewName: "Blend"},
		OutputQuantity: qty(1),
		Components: []ComponentInput{
			{ProductID: oil.ID, Quantity: qty(200), Unit: ComponentUnitDrop},
			{ProductID: oil.ID, Quantity: qty(100), Unit: ComponentUnitDrop},
		},
	})
	require.NoError(t, err)

	require.Equal(t, qty(1), env.getProduct(t, oil.ID).Quantity)

	open, err := env.openUnits.FindByProduct(context.Background(), oil.ID.String())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(150), open[0].RemainingDrops)

	// 300 drops at 1 per drop.
	assertMoney(t, 300, res.Transaction.CostTotal)
}

// --- transfer ---

func TestTransferMovesStockWithCostBasis(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	res, err := env.svc.Transfer(context.Background(), TransferInput{
		ProductID:     p.ID,
		ToWarehouseID: "WH-2",
		Quantity:      qty(4),
	})
	require.NoError(t, err)

	require.Equal(t, qty(6), env.getProduct(t, p.ID).Quantity)

	dest := env.getProduct(t, res.Destination.ID)
	require.Equal(t, "Candle", dest.Name)
	require.Equal(t, "WH-2", dest.WarehouseID)
	require.Equal(t, qty(4), dest.Quantity)
	assertMoney(t, 100, dest.PurchasePrice)

	inbound := env.lots.bySource(lots.SourceTransfer)
	require.Len(t, inbound, 1)
	require.Equal(t, qty(4), inbound[0].RemainingQuantity)
	assertMoney(t, 100, inbound[0].UnitCost)

	require.Equal(t, txlog.TypeTransfer, res.Transaction.Type)
	require.NotNil(t, res.Transaction.FromWarehouseID)
	require.NotNil(t, res.Transaction.ToWarehouseID)
	require.Equal(t, "WH-1", *res.Transaction.FromWarehouseID)
	require.Equal(t, "WH-2", *res.Transaction.ToWarehouseID)
}

func TestTransferReusesDestinationProduct(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	first, err := env.svc.Transfer(context.Background(), TransferInput{ProductID: p.ID, ToWarehouseID: "WH-2", Quantity: qty(3)})
	require.NoError(t, err)
	second, err := env.svc.Transfer(context.Background(), TransferInput{ProductID: p.ID, ToWarehouseID: "WH-2", Quantity: qty(2)})
	require.NoError(t, err)

	require.Equal(t, first.Destination.ID, second.Destination.ID)
	require.Equal(t, qty(5), env.getProduct(t, second.Destination.ID).Quantity)
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	_, err := env.svc.Transfer(context.Background(), TransferInput{ProductID: p.ID, ToWarehouseID: "WH-1", Quantity: qty(1)})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidOperation, appErr.Code)
}

func TestTransferInsufficientStock(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 3, 100, baseTime)

	_, err := env.svc.Transfer(context.Background(), TransferInput{ProductID: p.ID, ToWarehouseID: "WH-2", Quantity: qty(5)})
	require.True(t, apperror.IsInsufficientStock(err))
	require.Equal(t, qty(3), env.getProduct(t, p.ID).Quantity)
}

// --- reverse ---

func TestReverseSaleRoundTrip(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	sale, err := env.svc.Sell(context.Background(), SaleInput{
		Items:        []SaleLine{{ProductID: p.ID, Quantity: qty(4), Price: types.NewMoney(150)}},
		CustomerName: "Bob",
	})
	require.NoError(t, err)
	require.Equal(t, qty(6), env.getProduct(t, p.ID).Quantity)

	saleTx := sale.Transactions[0]
	res, err := env.svc.ReverseSale(context.Background(), saleTx.ID)
	require.NoError(t, err)

	// Stock restored through a return lot at the current purchase price.
	require.Equal(t, qty(10), env.getProduct(t, p.ID).Quantity)
	require.Equal(t, lots.SourceReturn, res.ReturnLot.Source)
	require.Equal(t, qty(4), res.ReturnLot.RemainingQuantity)
	assertMoney(t, 100, res.ReturnLot.UnitCost)

	// Both records stay in the log, cross-linked.
	require.Equal(t, txlog.TypeSaleReversal, res.Reversal.Type)
	require.NotNil(t, res.Reversal.ReversesID)
	require.Equal(t, saleTx.ID, *res.Reversal.ReversesID)

	stamped, err := env.txLog.GetByID(context.Background(), saleTx.ID)
	require.NoError(t, err)
	require.True(t, stamped.IsReversed())
	require.Equal(t, res.Reversal.ID, *stamped.ReversedByID)

	// Customer revenue rolled back.
	c, err := env.customers.FindByName(context.Background(), "Bob")
	require.NoError(t, err)
	assertMoney(t, 0, c.TotalRevenue)

	require.Len(t, env.auditor.byAction("reverse"), 1)
}

func TestReverseSaleRejectsDoubleReversal(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)

	sale, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(2), Price: types.NewMoney(150)}},
	})
	require.NoError(t, err)

	_, err = env.svc.ReverseSale(context.Background(), sale.Transactions[0].ID)
	require.NoError(t, err)

	_, err = env.svc.ReverseSale(context.Background(), sale.Transactions[0].ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidOperation, appErr.Code)

	// The double attempt must not mint more stock.
	require.Equal(t, qty(10), env.getProduct(t, p.ID).Quantity)
}

func TestReverseSaleRejectsNonSaleTransactions(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	receiving := env.mustReceive(t, p, 10, 100, baseTime)

	_, err := env.svc.ReverseSale(context.Background(), receiving.Transaction.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInvalidOperation, appErr.Code)

	_, err = env.svc.ReverseSale(context.Background(), id.New())
	require.True(t, apperror.IsNotFound(err))
}

// --- cost inspection ---

func TestProductCostReportsWeightedAverageAndDrift(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 10, 100, baseTime)
	env.mustReceive(t, p, 5, 160, baseTime.Add(time.Hour))

	res, err := env.svc.ProductCost(context.Background(), p.ID)
	require.NoError(t, err)
	assertMoney(t, 120, res.UnitCost)
	require.Equal(t, qty(15), res.LedgerQuantity)
	require.Equal(t, qty(0), res.Drift)
	require.Len(t, res.ActiveLots, 2)

	// Drift the aggregate behind the ledger's back.
	got := env.getProduct(t, p.ID)
	got.Quantity = qty(17)
	require.NoError(t, env.products.Update(context.Background(), got))

	res, err = env.svc.ProductCost(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, qty(2), res.Drift)

	_, err = env.svc.ProductCost(context.Background(), id.New())
	require.True(t, apperror.IsNotFound(err))
}

func TestProductCostKeepsLastPriceWhenDepleted(t *testing.T) {
	env := newTestEnv(nil)
	p := env.createProduct(t, "Candle", product.UnitPiece)
	env.mustReceive(t, p, 4, 100, baseTime)

	_, err := env.svc.Sell(context.Background(), SaleInput{
		Items: []SaleLine{{ProductID: p.ID, Quantity: qty(4), Price: types.NewMoney(150)}},
	})
	require.NoError(t, err)

	res, err := env.svc.ProductCost(context.Background(), p.ID)
	require.NoError(t, err)
	assertMoney(t, 100, res.UnitCost)
	require.Equal(t, qty(0), res.LedgerQuantity)
	require.Empty(t, res.ActiveLots)
}
