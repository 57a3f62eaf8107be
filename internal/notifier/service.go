// Package notifier consumes low-stock events and raises restock notices.
// Delivery is a structured log line; hooking in mail or chat is a consumer
// swap, not a producer change.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/modakita/go-fashion-storefront/internal/kafka"
	"github.com/modakita/go-fashion-storefront/internal/orders"
	"github.com/modakita/go-fashion-storefront/internal/redisx"
)

type Service struct {
	Log   *logrus.Logger
	Redis *redis.Client
}

// HandleStockLow is the consumer handler. Events are deduped by event id
// so a redelivered message does not nag twice.
func (s *Service) HandleStockLow(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventStockLow {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.StockLowPayload](env.Payload)
	if err != nil {
		return err
	}

	s.Log.WithFields(logrus.Fields{
		"product_id": p.ProductID,
		"name":       p.Name,
		"quantity":   p.Quantity,
		"threshold":  p.Threshold,
	}).Warn("restock needed")
	return nil
}
