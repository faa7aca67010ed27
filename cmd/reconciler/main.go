package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logx.New(cfg.LogLevel, cfg.ServiceName+"-reconciler")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	// Redis (dedup pakai event_id)
	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		lg.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	rec := &inventory.Reconciler{
		Incidents: &orders.Repo{DB: db},
		Dedup:     &redisx.Deduper{R: rdb, Service: cfg.ReconcilerGroup},
		Log:       lg,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicStockCompensationFailed, cfg.ReconcilerWorkers, lg)
	lg.Info("reconciler started",
		zap.String("group", cfg.ReconcilerGroup),
		zap.String("topic", orders.TopicStockCompensationFailed),
		zap.Int("workers", cfg.ReconcilerWorkers))
	if err := cons.Start(ctx, rec.HandleCompensationFailed); err != nil && ctx.Err() == nil {
		lg.Error("consumer exit", zap.Error(err))
	}
	lg.Info("reconciler stopped")
}
