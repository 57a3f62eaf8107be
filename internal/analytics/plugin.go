// Package analytics is a best-effort plugin: it bumps lifetime order
// counters in Redis. Its failures are swallowed by the registry; nothing
// in the checkout path depends on it.
package analytics

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/modakita/go-fashion-storefront/internal/plugin"
	"github.com/modakita/go-fashion-storefront/internal/redisx"
)

type Plugin struct {
	Log   *logrus.Logger
	Redis *redis.Client
}

func (p *Plugin) Name() string { return "analytics" }

func (p *Plugin) Initialize(ctx context.Context) error {
	return p.Redis.Ping(ctx).Err()
}

func (p *Plugin) Hooks() map[plugin.Hook]plugin.HookFunc {
	return map[plugin.Hook]plugin.HookFunc{
		plugin.HookOrderCreate: p.onOrderCreate,
		plugin.HookOrderCancel: p.onOrderCancel,
	}
}

func (p *Plugin) onOrderCreate(ctx context.Context, _ any) error {
	return p.Redis.Incr(ctx, redisx.KeyOrdersCreated).Err()
}

func (p *Plugin) onOrderCancel(ctx context.Context, _ any) error {
	return p.Redis.Incr(ctx, redisx.KeyOrdersCancelled).Err()
}
