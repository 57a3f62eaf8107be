package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/modakita/go-fashion-storefront/internal/analytics"
	"github.com/modakita/go-fashion-storefront/internal/cart"
	"github.com/modakita/go-fashion-storefront/internal/catalog"
	"github.com/modakita/go-fashion-storefront/internal/config"
	"github.com/modakita/go-fashion-storefront/internal/httpx"
	"github.com/modakita/go-fashion-storefront/internal/inventory"
	kafkax "github.com/modakita/go-fashion-storefront/internal/kafka"
	"github.com/modakita/go-fashion-storefront/internal/logx"
	"github.com/modakita/go-fashion-storefront/internal/orders"
	"github.com/modakita/go-fashion-storefront/internal/plugin"
	"github.com/modakita/go-fashion-storefront/internal/postgres"
	"github.com/modakita/go-fashion-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logx.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("db migrate")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(log, cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCancelled := kafkax.NewProducer(log, cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pStockLow := kafkax.NewProducer(log, cfg.KafkaBrokers, orders.TopicStockLow, 1024)
	pStockAdj := kafkax.NewProducer(log, cfg.KafkaBrokers, orders.TopicStockAdjusted, 1024)
	producers := []*kafkax.Producer{pCreated, pCancelled, pStockLow, pStockAdj}
	for _, p := range producers {
		p.Start(ctx)
	}

	// Repos & stores
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	cartStore := &cart.Store{Redis: rdb}

	// Plugin registry: inventory is critical on order creation, everything
	// else is best-effort.
	registry := plugin.NewRegistry(log, plugin.Options{
		Critical:    []plugin.Hook{plugin.HookOrderCreate},
		HookTimeout: 5 * time.Second,
	})
	invPlugin := &inventory.Plugin{
		Log: log,
		Policy: inventory.Config{
			Enabled:            cfg.Inventory.Enabled,
			LowStockThreshold:  cfg.Inventory.LowStockThreshold,
			PreventOverselling: cfg.Inventory.PreventOverselling,
			NotifyOnLowStock:   cfg.Inventory.NotifyOnLowStock,
		},
		Store:        catalogRepo,
		Orders:       orderRepo,
		LowEvents:    pStockLow,
		AdjustEvents: pStockAdj,
		Service:      cfg.ServiceName,
	}
	registry.Register(invPlugin)
	registry.Register(&analytics.Plugin{Log: log, Redis: rdb})
	registry.InitializeAll(ctx)

	checkout := &orders.CheckoutService{
		Log:             log,
		Store:           orderRepo,
		Cart:            cartStore,
		Hooks:           registry,
		CreatedEvents:   pCreated,
		CancelledEvents: pCancelled,
		Service:         cfg.ServiceName,
	}

	// HTTP
	router := httpx.NewRouter()
	(&httpx.ProductsHandler{Catalog: catalogRepo, Inventory: invPlugin}).Register(router)
	(&httpx.CartHandler{Cart: cartStore, Catalog: catalogRepo}).Register(router)
	(&httpx.OrdersHandler{Checkout: checkout, Repo: orderRepo, Redis: rdb}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // close inbox -> flush & close writer
	}
	cancel() // stop producer loops
	for _, p := range producers {
		p.WaitClosed() // drain
	}
}
