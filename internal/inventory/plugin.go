package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/modakita/go-fashion-storefront/internal/catalog"
	kafkax "github.com/modakita/go-fashion-storefront/internal/kafka"
	"github.com/modakita/go-fashion-storefront/internal/orders"
	"github.com/modakita/go-fashion-storefront/internal/plugin"
)

// StockStore is the slice of the catalog repo the plugin needs.
type StockStore interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
	AdjustQuantity(ctx context.Context, id string, delta int) (int, error)
	DeductForOrder(ctx context.Context, items []catalog.Deduction, preventOversell bool) ([]catalog.StockChange, error)
	RestoreForOrder(ctx context.Context, items []catalog.Deduction) error
	ListLowStock(ctx context.Context, threshold int) ([]catalog.Product, error)
	ListOutOfStock(ctx context.Context) ([]catalog.Product, error)
}

// OrderFlagger records that an order's stock deduction committed, so a
// later cancellation knows whether there is anything to restore.
type OrderFlagger interface {
	MarkStockDeducted(ctx context.Context, orderID string) error
}

// EventSink is satisfied by kafka.Producer. Nil sinks disable publishing.
type EventSink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Plugin struct {
	Log          *logrus.Logger
	Policy       Config
	Store        StockStore
	Orders       OrderFlagger
	LowEvents    EventSink // inventory.stock.low
	AdjustEvents EventSink // inventory.stock.adjusted
	Service      string
}

func (p *Plugin) Name() string { return "inventory" }

func (p *Plugin) Initialize(ctx context.Context) error {
	if p.Store == nil {
		return errors.New("inventory: stock store is required")
	}
	if p.Policy.LowStockThreshold < 0 {
		return errors.Errorf("inventory: negative low-stock threshold %d", p.Policy.LowStockThreshold)
	}
	p.Log.WithFields(logrus.Fields{
		"enabled":             p.Policy.Enabled,
		"low_stock_threshold": p.Policy.LowStockThreshold,
		"prevent_overselling": p.Policy.PreventOverselling,
		"notify_on_low_stock": p.Policy.NotifyOnLowStock,
	}).Info("inventory plugin ready")
	return nil
}

func (p *Plugin) Hooks() map[plugin.Hook]plugin.HookFunc {
	return map[plugin.Hook]plugin.HookFunc{
		plugin.HookOrderCreate: p.onOrderCreate,
		plugin.HookOrderCancel: p.onOrderCancel,
	}
}

// onOrderCreate deducts stock for every line item of the order, all or
// nothing. No idempotency: the producer contract is one invocation per
// created order, and a double fire double-deducts.
func (p *Plugin) onOrderCreate(ctx context.Context, payload any) error {
	ord, err := orderPayload(payload)
	if err != nil {
		return err
	}
	if !p.Policy.Enabled {
		return nil
	}

	changes, err := p.Store.DeductForOrder(ctx, deductions(ord), p.Policy.PreventOverselling)
	if err != nil {
		return err
	}
	if err := p.Orders.MarkStockDeducted(ctx, ord.ID); err != nil {
		// Stock already moved; the flag matters only for a later cancel.
		p.Log.WithField("order_id", ord.ID).WithError(err).Error("mark stock deducted failed")
	}

	for _, ch := range changes {
		switch Classify(ch.NewQuantity, p.Policy) {
		case LevelLow:
			p.Log.WithFields(logrus.Fields{
				"product_id": ch.ProductID, "name": ch.Name, "quantity": ch.NewQuantity,
			}).Warn("product low on stock")
			if p.Policy.NotifyOnLowStock {
				p.publishLow(ch, ord.OrderNumber)
			}
		case LevelOut:
			p.Log.WithFields(logrus.Fields{
				"product_id": ch.ProductID, "name": ch.Name,
			}).Warn("product out of stock")
		}
	}
	return nil
}

// onOrderCancel restores the cancelled quantities. Orders whose deduction
// never committed (checkout aborted by this very plugin) have nothing to
// put back.
func (p *Plugin) onOrderCancel(ctx context.Context, payload any) error {
	ord, err := orderPayload(payload)
	if err != nil {
		return err
	}
	if !p.Policy.Enabled {
		return nil
	}
	if !ord.StockDeducted {
		p.Log.WithField("order_id", ord.ID).Debug("cancel for undeducted order, skipping restore")
		return nil
	}
	if err := p.Store.RestoreForOrder(ctx, deductions(ord)); err != nil {
		return errors.Wrapf(err, "restore stock for order %s", ord.ID)
	}
	p.Log.WithFields(logrus.Fields{
		"order_id": ord.ID, "order_number": ord.OrderNumber, "items": len(ord.Items),
	}).Info("stock restored")
	return nil
}

// AdjustStock is the admin path. Clamps at zero like every other ledger
// write. The reason travels in the log and on the stock.adjusted topic
// only; there is no durable audit table.
func (p *Plugin) AdjustStock(ctx context.Context, productID string, delta int, reason string) (int, error) {
	newQty, err := p.Store.AdjustQuantity(ctx, productID, delta)
	if err != nil {
		return 0, err
	}
	p.Log.WithFields(logrus.Fields{
		"product_id":   productID,
		"delta":        delta,
		"new_quantity": newQty,
		"reason":       reason,
	}).Info("stock adjusted")
	p.publishAdjusted(productID, delta, newQty, reason)
	return newQty, nil
}

// CheckStock answers the advisory availability question. The binding check
// happens under the row lock inside DeductForOrder.
func (p *Plugin) CheckStock(ctx context.Context, productID string, requested int) (bool, error) {
	prod, err := p.Store.Get(ctx, productID)
	if err != nil {
		return false, err
	}
	return CanDeduct(prod, requested, p.Policy), nil
}

func (p *Plugin) LowStockProducts(ctx context.Context) ([]catalog.Product, error) {
	return p.Store.ListLowStock(ctx, p.Policy.LowStockThreshold)
}

func (p *Plugin) OutOfStockProducts(ctx context.Context) ([]catalog.Product, error) {
	return p.Store.ListOutOfStock(ctx)
}

func (p *Plugin) publishLow(ch catalog.StockChange, orderNumber string) {
	if p.LowEvents == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockLow,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: orderNumber,
		Payload: kafkax.MustMarshal(orders.StockLowPayload{
			ProductID: ch.ProductID,
			Name:      ch.Name,
			Quantity:  ch.NewQuantity,
			Threshold: p.Policy.LowStockThreshold,
		}),
	}
	p.LowEvents.Publish(orders.PartitionKey(ch.ProductID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (p *Plugin) publishAdjusted(productID string, delta, newQty int, reason string) {
	if p.AdjustEvents == nil {
		return
	}
	ev := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    orders.EventStockAdjusted,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     p.Service,
		Payload: kafkax.MustMarshal(orders.StockAdjustedPayload{
			ProductID:   productID,
			Delta:       delta,
			NewQuantity: newQty,
			Reason:      reason,
		}),
	}
	p.AdjustEvents.Publish(orders.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockAdjusted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func orderPayload(payload any) (*orders.Order, error) {
	ord, ok := payload.(*orders.Order)
	if !ok {
		return nil, errors.Errorf("unexpected hook payload %T", payload)
	}
	return ord, nil
}

func deductions(ord *orders.Order) []catalog.Deduction {
	out := make([]catalog.Deduction, 0, len(ord.Items))
	for _, it := range ord.Items {
		out = append(out, catalog.Deduction{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
