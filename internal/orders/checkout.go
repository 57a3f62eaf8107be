package orders

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/modakita/go-fashion-storefront/internal/kafka"
	"github.com/modakita/go-fashion-storefront/internal/plugin"
)

var ErrEmptyCart = errors.New("cart is empty")

// CartStore is what checkout needs from the cart: current contents and a
// way to clear them.
type CartStore interface {
	Items(ctx context.Context, customerID string) (map[string]int, error)
	Clear(ctx context.Context, customerID string) error
}

type OrderStore interface {
	Create(ctx context.Context, customerID string, items []NewItem) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, next Status) (*Order, error)
}

// HookDispatcher is satisfied by plugin.Registry.
type HookDispatcher interface {
	TriggerHook(ctx context.Context, hook plugin.Hook, payload any) error
}

// EventSink is satisfied by kafka.Producer. Nil sinks disable publishing.
type EventSink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// CheckoutService is the order-event producer: it persists orders and fires
// each lifecycle hook exactly once.
type CheckoutService struct {
	Log             *logrus.Logger
	Store           OrderStore
	Cart            CartStore
	Hooks           HookDispatcher
	CreatedEvents   EventSink
	CancelledEvents EventSink
	Service         string
}

// PlaceOrder turns the customer's cart into a PENDING order, clears the
// cart, then fires onOrderCreate once. A critical hook failure (oversell
// rejection) cancels the freshly created order and surfaces the error;
// since deduction is all-or-nothing, no stock moved and the cancel restores
// nothing.
func (s *CheckoutService) PlaceOrder(ctx context.Context, customerID string) (*Order, error) {
	contents, err := s.Cart.Items(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, ErrEmptyCart
	}

	ord, err := s.Store.Create(ctx, customerID, sortedItems(contents))
	if err != nil {
		return nil, err
	}
	if err := s.Cart.Clear(ctx, customerID); err != nil {
		s.Log.WithField("customer_id", customerID).WithError(err).Warn("cart clear failed")
	}

	if err := s.Hooks.TriggerHook(ctx, plugin.HookOrderCreate, ord); err != nil {
		if cancelled, cErr := s.Store.UpdateStatus(ctx, ord.ID, StatusCancelled); cErr != nil {
			s.Log.WithField("order_id", ord.ID).WithError(cErr).Error("cancel after rejected checkout failed")
		} else {
			ord = cancelled
		}
		return nil, errors.Wrap(err, "checkout rejected")
	}

	// the inventory hook flipped stock_deducted; pick it up for the response
	if fresh, gErr := s.Store.Get(ctx, ord.ID); gErr == nil {
		ord = fresh
	}

	s.publishCreated(ctx, ord)
	return ord, nil
}

// CancelOrder moves the order to CANCELLED and fires onOrderCancel. The
// cancel hook is best-effort: a failed restore is logged by the registry
// but the cancellation stands.
func (s *CheckoutService) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	ord, err := s.Store.UpdateStatus(ctx, orderID, StatusCancelled)
	if err != nil {
		return nil, err
	}
	_ = s.Hooks.TriggerHook(ctx, plugin.HookOrderCancel, ord)
	s.publishCancelled(ctx, ord)
	return ord, nil
}

// UpdateStatus is the admin transition path; cancelling through it behaves
// exactly like CancelOrder.
func (s *CheckoutService) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	if next == StatusCancelled {
		return s.CancelOrder(ctx, orderID)
	}
	return s.Store.UpdateStatus(ctx, orderID, next)
}

func sortedItems(contents map[string]int) []NewItem {
	items := make([]NewItem, 0, len(contents))
	for pid, qty := range contents {
		items = append(items, NewItem{ProductID: pid, Qty: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func itemQtys(ord *Order) []ItemQty {
	out := make([]ItemQty, 0, len(ord.Items))
	for _, it := range ord.Items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}

func (s *CheckoutService) publishCreated(ctx context.Context, ord *Order) {
	if s.CreatedEvents == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: ord.ID,
		Payload: kafkax.MustMarshal(OrderCreatedPayload{
			OrderID:     ord.ID,
			OrderNumber: ord.OrderNumber,
			CustomerID:  ord.CustomerID,
			Items:       itemQtys(ord),
			TotalCents:  ord.TotalCents,
		}),
	}
	s.CreatedEvents.Publish(PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *CheckoutService) publishCancelled(ctx context.Context, ord *Order) {
	if s.CancelledEvents == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: ord.ID,
		Payload: kafkax.MustMarshal(OrderCancelledPayload{
			OrderID:     ord.ID,
			OrderNumber: ord.OrderNumber,
			Items:       itemQtys(ord),
		}),
	}
	s.CancelledEvents.Publish(PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
