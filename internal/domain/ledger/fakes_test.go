package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain"
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/domain/registers/txlog"
)

// The fakes mirror the Postgres repositories closely enough for engine
// tests: reads return copies (a scanned row is a copy too) and writes
// mutate the stored state, so a consumed in-memory lot does not alias
// the lot the allocator is walking.

// --- tx manager ---

type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- products ---

type memProducts struct {
	mu    sync.Mutex
	items map[id.ID]*product.Product
}

func newMemProducts() *memProducts {
	return &memProducts{items: make(map[id.ID]*product.Product)}
}

func cloneProduct(p *product.Product) *product.Product {
	c := *p
	return &c
}

func (r *memProducts) Create(ctx context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return apperror.NewConflict("product already exists")
	}
	r.items[p.ID] = cloneProduct(p)
	return nil
}

func (r *memProducts) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return cloneProduct(p), nil
}

func (r *memProducts) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.GetByID(ctx, productID)
}

func (r *memProducts) Update(ctx context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; !ok {
		return apperror.NewNotFound("product", p.ID.String())
	}
	r.items[p.ID] = cloneProduct(p)
	return nil
}

func (r *memProducts) FindByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.Barcode != nil && *p.Barcode == barcode {
			return cloneProduct(p), nil
		}
	}
	return nil, apperror.NewNotFound("product", barcode)
}

func (r *memProducts) FindByNameAndWarehouse(ctx context.Context, name, barcode, warehouseID string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.Name != name || p.WarehouseID != warehouseID {
			continue
		}
		if barcode != "" && (p.Barcode == nil || *p.Barcode != barcode) {
			continue
		}
		return cloneProduct(p), nil
	}
	return nil, apperror.NewNotFound("product", name)
}

func (r *memProducts) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.Code == code {
			return cloneProduct(p), nil
		}
	}
	return nil, apperror.NewNotFound("product", code)
}

func (r *memProducts) Delete(ctx context.Context, productID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, productID)
	return nil
}

func (r *memProducts) SetDeletionMark(ctx context.Context, productID id.ID, marked bool) error {
	return nil
}

func (r *memProducts) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := domain.ListResult[*product.Product]{}
	for _, p := range r.items {
		out.Items = append(out.Items, cloneProduct(p))
	}
	out.TotalCount = int64(len(out.Items))
	return out, nil
}

func (r *memProducts) Exists(ctx context.Context, productID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[productID]
	return ok, nil
}

func (r *memProducts) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *memProducts) GetTree(ctx context.Context, rootID *id.ID) ([]*product.Product, error) {
	return nil, nil
}

func (r *memProducts) GetPath(ctx context.Context, productID id.ID) ([]*product.Product, error) {
	return nil, nil
}

var _ product.Repository = (*memProducts)(nil)

// --- lots ---

type memLots struct {
	mu    sync.Mutex
	items []*lots.Lot
}

func newMemLots() *memLots { return &memLots{} }

func cloneLot(l *lots.Lot) *lots.Lot {
	c := *l
	return &c
}

func (r *memLots) Append(ctx context.Context, lot *lots.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, cloneLot(lot))
	return nil
}

func (r *memLots) AppendBatch(ctx context.Context, batch []*lots.Lot) error {
	for _, lot := range batch {
		if err := r.Append(ctx, lot); err != nil {
			return err
		}
	}
	return nil
}

func (r *memLots) GetByID(ctx context.Context, lotID id.ID) (*lots.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lot := range r.items {
		if lot.ID == lotID {
			return cloneLot(lot), nil
		}
	}
	return nil, apperror.NewNotFound("lot", lotID.String())
}

func (r *memLots) GetByIDForUpdate(ctx context.Context, lotID id.ID) (*lots.Lot, error) {
	return r.GetByID(ctx, lotID)
}

func (r *memLots) FindActive(ctx context.Context, productID, warehouseID string) ([]*lots.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*lots.Lot
	for _, lot := range r.items {
		if lot.ProductID != productID || !lot.IsActive() {
			continue
		}
		if warehouseID != "" && lot.WarehouseID != warehouseID {
			continue
		}
		out = append(out, cloneLot(lot))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memLots) FindActiveForUpdate(ctx context.Context, productID, warehouseID string) ([]*lots.Lot, error) {
	return r.FindActive(ctx, productID, warehouseID)
}

func (r *memLots) Consume(ctx context.Context, lotID id.ID, qty types.Quantity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lot := range r.items {
		if lot.ID == lotID {
			return lot.Consume(qty)
		}
	}
	return apperror.NewNotFound("lot", lotID.String())
}

func (r *memLots) SumActive(ctx context.Context, productID string) (types.Quantity, error) {
	active, err := r.FindActive(ctx, productID, "")
	if err != nil {
		return 0, err
	}
	var total types.Quantity
	for _, lot := range active {
		total += lot.RemainingQuantity
	}
	return total, nil
}

func (r *memLots) List(ctx context.Context, filter lots.ListFilter) ([]*lots.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*lots.Lot
	for _, lot := range r.items {
		if filter.ProductID != "" && lot.ProductID != filter.ProductID {
			continue
		}
		if filter.ActiveOnly && !lot.IsActive() {
			continue
		}
		if filter.Source != nil && lot.Source != *filter.Source {
			continue
		}
		out = append(out, cloneLot(lot))
	}
	return out, nil
}

// bySource returns stored lots with the given source, for assertions.
func (r *memLots) bySource(source lots.Source) []*lots.Lot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*lots.Lot
	for _, lot := range r.items {
		if lot.Source == source {
			out = append(out, cloneLot(lot))
		}
	}
	return out
}

var _ lots.Repository = (*memLots)(nil)

// --- open units ---

type memOpenUnits struct {
	mu    sync.Mutex
	items []*openunits.OpenUnit
}

func newMemOpenUnits() *memOpenUnits { return &memOpenUnits{} }

func cloneOpenUnit(u *openunits.OpenUnit) *openunits.OpenUnit {
	c := *u
	return &c
}

func (r *memOpenUnits) Create(ctx context.Context, unit *openunits.OpenUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, cloneOpenUnit(unit))
	return nil
}

func (r *memOpenUnits) FindByProduct(ctx context.Context, productID string) ([]*openunits.OpenUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*openunits.OpenUnit
	for _, u := range r.items {
		if u.ProductID == productID {
			out = append(out, cloneOpenUnit(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (r *memOpenUnits) FindByProductForUpdate(ctx context.Context, productID string) ([]*openunits.OpenUnit, error) {
	return r.FindByProduct(ctx, productID)
}

func (r *memOpenUnits) DecrementDrops(ctx context.Context, unitID id.ID, drops int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.ID == unitID {
			if drops > u.RemainingDrops {
				return fmt.Errorf("open unit %s holds %d drops, want %d", unitID, u.RemainingDrops, drops)
			}
			u.RemainingDrops -= drops
			return nil
		}
	}
	return apperror.NewNotFound("open unit", unitID.String())
}

func (r *memOpenUnits) Delete(ctx context.Context, unitID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.items {
		if u.ID == unitID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return apperror.NewNotFound("open unit", unitID.String())
}

func (r *memOpenUnits) List(ctx context.Context, filter openunits.ListFilter) ([]*openunits.OpenUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*openunits.OpenUnit
	for _, u := range r.items {
		if filter.ProductID != "" && u.ProductID != filter.ProductID {
			continue
		}
		out = append(out, cloneOpenUnit(u))
	}
	return out, nil
}

var _ openunits.Repository = (*memOpenUnits)(nil)

// --- transaction log ---

type memTxLog struct {
	mu    sync.Mutex
	items []*txlog.Transaction
}

func newMemTxLog() *memTxLog { return &memTxLog{} }

func cloneTx(t *txlog.Transaction) *txlog.Transaction {
	c := *t
	return &c
}

func (r *memTxLog) Append(ctx context.Context, t *txlog.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, cloneTx(t))
	return nil
}

func (r *memTxLog) GetByID(ctx context.Context, txID id.ID) (*txlog.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.items {
		if t.ID == txID {
			return cloneTx(t), nil
		}
	}
	return nil, apperror.NewNotFound("transaction", txID.String())
}

func (r *memTxLog) GetByIDForUpdate(ctx context.Context, txID id.ID) (*txlog.Transaction, error) {
	return r.GetByID(ctx, txID)
}

func (r *memTxLog) MarkReversed(ctx context.Context, txID, reversalID id.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.items {
		if t.ID == txID {
			rid := reversalID
			stamp := at
			t.ReversedByID = &rid
			t.ReversedAt = &stamp
			return nil
		}
	}
	return apperror.NewNotFound("transaction", txID.String())
}

func (r *memTxLog) List(ctx context.Context, filter txlog.ListFilter) ([]*txlog.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*txlog.Transaction
	for _, t := range r.items {
		if filter.ProductID != "" && t.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		out = append(out, cloneTx(t))
	}
	return out, int64(len(out)), nil
}

func (r *memTxLog) byType(txType txlog.Type) []*txlog.Transaction {
	out, _, _ := r.List(context.Background(), txlog.ListFilter{Type: &txType})
	return out
}

var _ txlog.Repository = (*memTxLog)(nil)

// --- customers ---

type memCustomers struct {
	mu    sync.Mutex
	items map[id.ID]*customer.Customer
}

func newMemCustomers() *memCustomers {
	return &memCustomers{items: make(map[id.ID]*customer.Customer)}
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	cc := *c
	return &cc
}

func (r *memCustomers) Create(ctx context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = cloneCustomer(c)
	return nil
}

func (r *memCustomers) GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[customerID]
	if !ok {
		return nil, apperror.NewNotFound("customer", customerID.String())
	}
	return cloneCustomer(c), nil
}

func (r *memCustomers) GetByCode(ctx context.Context, code string) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Code == code {
			return cloneCustomer(c), nil
		}
	}
	return nil, apperror.NewNotFound("customer", code)
}

func (r *memCustomers) Update(ctx context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; !ok {
		return apperror.NewNotFound("customer", c.ID.String())
	}
	r.items[c.ID] = cloneCustomer(c)
	return nil
}

func (r *memCustomers) Delete(ctx context.Context, customerID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, customerID)
	return nil
}

func (r *memCustomers) SetDeletionMark(ctx context.Context, customerID id.ID, marked bool) error {
	return nil
}

func (r *memCustomers) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*customer.Customer], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := domain.ListResult[*customer.Customer]{}
	for _, c := range r.items {
		out.Items = append(out.Items, cloneCustomer(c))
	}
	out.TotalCount = int64(len(out.Items))
	return out, nil
}

func (r *memCustomers) Exists(ctx context.Context, customerID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[customerID]
	return ok, nil
}

func (r *memCustomers) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *memCustomers) GetTree(ctx context.Context, rootID *id.ID) ([]*customer.Customer, error) {
	return nil, nil
}

func (r *memCustomers) GetPath(ctx context.Context, customerID id.ID) ([]*customer.Customer, error) {
	return nil, nil
}

func (r *memCustomers) FindByName(ctx context.Context, name string) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Name == name {
			return cloneCustomer(c), nil
		}
	}
	return nil, apperror.NewNotFound("customer", name)
}

var _ customer.Repository = (*memCustomers)(nil)

// --- auditor ---

type auditCall struct {
	EntityType string
	EntityID   id.ID
	Action     string
	Changes    map[string]any
}

type memAuditor struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *memAuditor) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{EntityType: entityType, EntityID: entityID, Action: action, Changes: changes})
	return nil
}

func (a *memAuditor) byAction(action string) []auditCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auditCall
	for _, c := range a.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}
