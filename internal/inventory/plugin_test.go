package inventory

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modakita/go-fashion-storefront/internal/catalog"
	"github.com/modakita/go-fashion-storefront/internal/orders"
)

// fakeStore mirrors the ledger semantics of catalog.Repo in memory:
// clamp at zero, in_stock derived in the same write, all-or-nothing
// deduction.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
}

func newFakeStore(ps ...catalog.Product) *fakeStore {
	f := &fakeStore{products: map[string]*catalog.Product{}}
	for i := range ps {
		p := ps[i]
		f.products[p.ID] = &p
	}
	return f
}

func (f *fakeStore) Get(_ context.Context, id string) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return *p, nil
}

func (f *fakeStore) AdjustQuantity(_ context.Context, id string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	p.Quantity += delta
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	p.InStock = p.Quantity > 0
	return p.Quantity, nil
}

func (f *fakeStore) DeductForOrder(_ context.Context, items []catalog.Deduction, preventOversell bool) ([]catalog.StockChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var shorts []catalog.ShortItem
	for _, it := range items {
		p, ok := f.products[it.ProductID]
		if !ok {
			return nil, catalog.ErrProductNotFound
		}
		if preventOversell && p.Quantity < it.Qty {
			shorts = append(shorts, catalog.ShortItem{
				ProductID: it.ProductID, Name: p.Name, Available: p.Quantity, Requested: it.Qty,
			})
		}
	}
	if len(shorts) > 0 {
		return nil, &catalog.InsufficientStockError{Items: shorts}
	}

	changes := make([]catalog.StockChange, 0, len(items))
	for _, it := range items {
		p := f.products[it.ProductID]
		p.Quantity -= it.Qty
		if p.Quantity < 0 {
			p.Quantity = 0
		}
		p.InStock = p.Quantity > 0
		changes = append(changes, catalog.StockChange{ProductID: p.ID, Name: p.Name, NewQuantity: p.Quantity})
	}
	return changes, nil
}

func (f *fakeStore) RestoreForOrder(_ context.Context, items []catalog.Deduction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		p, ok := f.products[it.ProductID]
		if !ok {
			return catalog.ErrProductNotFound
		}
		p.Quantity += it.Qty
		p.InStock = true
	}
	return nil
}

func (f *fakeStore) ListLowStock(_ context.Context, threshold int) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Product
	for _, p := range f.products {
		if p.Quantity > 0 && p.Quantity <= threshold {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out, nil
}

func (f *fakeStore) ListOutOfStock(_ context.Context) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Product
	for _, p := range f.products {
		if p.Quantity <= 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) quantity(t *testing.T, id string) (int, bool) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	require.True(t, ok)
	return p.Quantity, p.InStock
}

type fakeFlagger struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeFlagger) MarkStockDeducted(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, orderID)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events [][]byte
}

func (f *fakeSink) Publish(key, value []byte, headers ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, value)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestPlugin(store *fakeStore, cfg Config) (*Plugin, *fakeFlagger, *fakeSink, *fakeSink) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	flagger := &fakeFlagger{}
	low := &fakeSink{}
	adj := &fakeSink{}
	p := &Plugin{
		Log:          log,
		Policy:       cfg,
		Store:        store,
		Orders:       flagger,
		LowEvents:    low,
		AdjustEvents: adj,
		Service:      "test",
	}
	return p, flagger, low, adj
}

func order(id string, deducted bool, items ...orders.OrderItem) *orders.Order {
	return &orders.Order{
		ID:            id,
		OrderNumber:   "ORD-20260830-TEST" + id,
		Status:        orders.StatusPending,
		StockDeducted: deducted,
		Items:         items,
	}
}

func item(productID string, qty int) orders.OrderItem {
	return orders.OrderItem{ProductID: productID, Qty: qty, PriceCents: 4500}
}

var strictPolicy = Config{
	Enabled:            true,
	LowStockThreshold:  10,
	PreventOverselling: true,
	NotifyOnLowStock:   true,
}

func TestOrderCreateDeductsAndFlagsLowStock(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "silk-dress", Name: "Silk Dress", Quantity: 5, InStock: true})
	p, flagger, low, _ := newTestPlugin(store, strictPolicy)

	err := p.onOrderCreate(context.Background(), order("o1", false, item("silk-dress", 3)))
	require.NoError(t, err)

	qty, inStock := store.quantity(t, "silk-dress")
	assert.Equal(t, 2, qty)
	assert.True(t, inStock)
	assert.Equal(t, []string{"o1"}, flagger.marked)
	assert.Equal(t, 1, low.count(), "2 <= threshold 10 should publish a low-stock event")
}

func TestOrderCreateRejectsOversell(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "silk-dress", Name: "Silk Dress", Quantity: 2, InStock: true})
	p, flagger, _, _ := newTestPlugin(store, strictPolicy)

	err := p.onOrderCreate(context.Background(), order("o2", false, item("silk-dress", 5)))

	var short *catalog.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Items, 1)
	assert.Equal(t, "Silk Dress", short.Items[0].Name)
	assert.Equal(t, 2, short.Items[0].Available)
	assert.Equal(t, 5, short.Items[0].Requested)

	qty, inStock := store.quantity(t, "silk-dress")
	assert.Equal(t, 2, qty, "rejected order must leave stock untouched")
	assert.True(t, inStock)
	assert.Empty(t, flagger.marked)
}

func TestOrderCreateAllOrNothingAcrossItems(t *testing.T) {
	store := newFakeStore(
		catalog.Product{ID: "belt", Name: "Leather Belt", Quantity: 50, InStock: true},
		catalog.Product{ID: "scarf", Name: "Wool Scarf", Quantity: 1, InStock: true},
	)
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	err := p.onOrderCreate(context.Background(), order("o3", false,
		item("belt", 2), item("scarf", 4)))

	var short *catalog.InsufficientStockError
	require.ErrorAs(t, err, &short)

	beltQty, _ := store.quantity(t, "belt")
	assert.Equal(t, 50, beltQty, "no line item may be deducted when any line is short")
}

func TestOrderCreateClampsWhenOversellAllowed(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 5, InStock: true})
	cfg := strictPolicy
	cfg.PreventOverselling = false
	p, _, _, _ := newTestPlugin(store, cfg)

	err := p.onOrderCreate(context.Background(), order("o4", false, item("coat", 9)))
	require.NoError(t, err)

	qty, inStock := store.quantity(t, "coat")
	assert.Equal(t, 0, qty, "quantity clamps at zero, never negative")
	assert.False(t, inStock)
}

func TestOrderCreateDisabledPolicyIsNoop(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 5, InStock: true})
	p, flagger, _, _ := newTestPlugin(store, Config{Enabled: false})

	require.NoError(t, p.onOrderCreate(context.Background(), order("o5", false, item("coat", 3))))

	qty, _ := store.quantity(t, "coat")
	assert.Equal(t, 5, qty)
	assert.Empty(t, flagger.marked)
}

func TestOrderCreateRejectsForeignPayload(t *testing.T) {
	store := newFakeStore()
	p, _, _, _ := newTestPlugin(store, strictPolicy)
	assert.Error(t, p.onOrderCreate(context.Background(), "not an order"))
}

func TestOrderCancelRestoresAdditively(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 2, InStock: true})
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	err := p.onOrderCancel(context.Background(), order("o6", true, item("coat", 3)))
	require.NoError(t, err)

	qty, inStock := store.quantity(t, "coat")
	assert.Equal(t, 5, qty)
	assert.True(t, inStock)
}

func TestOrderCancelSetsInStockUnconditionally(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 0, InStock: false})
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	require.NoError(t, p.onOrderCancel(context.Background(), order("o7", true, item("coat", 1))))

	qty, inStock := store.quantity(t, "coat")
	assert.Equal(t, 1, qty)
	assert.True(t, inStock)
}

func TestOrderCancelSkipsUndeductedOrders(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 5, InStock: true})
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	// checkout was rejected before any deduction committed
	require.NoError(t, p.onOrderCancel(context.Background(), order("o8", false, item("coat", 3))))

	qty, _ := store.quantity(t, "coat")
	assert.Equal(t, 5, qty, "nothing was deducted, nothing must be restored")
}

func TestAdjustStockRestocksFromZero(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 0, InStock: false})
	p, _, _, adj := newTestPlugin(store, strictPolicy)

	newQty, err := p.AdjustStock(context.Background(), "coat", 20, "restock")
	require.NoError(t, err)
	assert.Equal(t, 20, newQty)

	qty, inStock := store.quantity(t, "coat")
	assert.Equal(t, 20, qty)
	assert.True(t, inStock)
	assert.Equal(t, 1, adj.count())
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 5, InStock: true})
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	newQty, err := p.AdjustStock(context.Background(), "coat", -8, "shrinkage")
	require.NoError(t, err)
	assert.Equal(t, 0, newQty)

	_, inStock := store.quantity(t, "coat")
	assert.False(t, inStock)
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	store := newFakeStore()
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	_, err := p.AdjustStock(context.Background(), "ghost", 3, "restock")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCheckStock(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "coat", Name: "Trench Coat", Quantity: 4, InStock: true})
	p, _, _, _ := newTestPlugin(store, strictPolicy)

	ok, err := p.CheckStock(context.Background(), "coat", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.CheckStock(context.Background(), "coat", 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndToEndScenario(t *testing.T) {
	// product at 5, threshold 10, oversell prevention on: a 3-item order
	// succeeds and lands low; a following 5-item order is rejected whole.
	store := newFakeStore(catalog.Product{ID: "gown", Name: "Evening Gown", Quantity: 5, InStock: true})
	p, _, low, _ := newTestPlugin(store, strictPolicy)

	require.NoError(t, p.onOrderCreate(context.Background(), order("e1", false, item("gown", 3))))
	qty, _ := store.quantity(t, "gown")
	require.Equal(t, 2, qty)
	require.Equal(t, 1, low.count())

	err := p.onOrderCreate(context.Background(), order("e2", false, item("gown", 5)))
	var short *catalog.InsufficientStockError
	require.ErrorAs(t, err, &short)
	qty, _ = store.quantity(t, "gown")
	assert.Equal(t, 2, qty)

	lows, err := p.LowStockProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, lows, 1)
	assert.Equal(t, "gown", lows[0].ID)
}

func TestInitializeValidatesConfig(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	p := &Plugin{Log: log, Policy: Config{LowStockThreshold: -1}, Store: newFakeStore()}
	assert.Error(t, p.Initialize(context.Background()))

	p = &Plugin{Log: log, Policy: strictPolicy}
	assert.Error(t, p.Initialize(context.Background()), "missing store must fail init")

	p = &Plugin{Log: log, Policy: strictPolicy, Store: newFakeStore()}
	assert.NoError(t, p.Initialize(context.Background()))
}

func TestNoLowEventWhenNotifyDisabled(t *testing.T) {
	store := newFakeStore(catalog.Product{ID: "gown", Name: "Evening Gown", Quantity: 5, InStock: true})
	cfg := strictPolicy
	cfg.NotifyOnLowStock = false
	p, _, low, _ := newTestPlugin(store, cfg)

	require.NoError(t, p.onOrderCreate(context.Background(), order("n1", false, item("gown", 3))))
	assert.Equal(t, 0, low.count())
}
