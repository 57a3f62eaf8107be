package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/modakita/go-fashion-storefront/internal/config"
	kafkax "github.com/modakita/go-fashion-storefront/internal/kafka"
	"github.com/modakita/go-fashion-storefront/internal/logx"
	"github.com/modakita/go-fashion-storefront/internal/notifier"
	"github.com/modakita/go-fashion-storefront/internal/orders"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{Log: log, Redis: rdb}

	group := getenv("NOTIFIER_GROUP", "stock-notifier")
	workers := atoi(os.Getenv("NOTIFIER_WORKERS"), 4)
	cons := kafkax.NewConsumer(log, cfg.KafkaBrokers, group, orders.TopicStockLow, workers)

	go func() {
		log.WithFields(logrus.Fields{
			"group": group, "topic": orders.TopicStockLow, "workers": workers,
		}).Info("stock notifier started")
		if err := cons.Start(ctx, svc.HandleStockLow); err != nil {
			log.WithError(err).Error("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down notifier...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
