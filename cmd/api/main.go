package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-orders/internal/booking"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

const shutdownTimeout = 20 * time.Second

// backend is everything the API needs from a store driver.
type backend interface {
	orders.Store
	orders.Reader
	orders.Admin
	orders.IncidentStore
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, lg *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis cuma shortcut; kalau down tetap jalan tanpa cache.
	var cache httpx.Cache
	if rdb, err := redisx.New(ctx, cfg.RedisAddr); err != nil {
		lg.Warn("redis unavailable, running without cache", zap.Error(err))
	} else {
		defer rdb.Close()
		cache = &redisx.OrderCache{R: rdb}
	}

	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, lg)
	compensation := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockCompensationFailed, 64, lg)
	placed.Start()
	compensation.Start()
	// jalan setelah g.Wait(); Publish yang telat cuma di-drop
	defer func() {
		placed.Close() // tutup inbox -> flush & close writer
		compensation.Close()
		placed.WaitClosed()
		compensation.WaitClosed()
	}()

	svc := checkout.NewService(store,
		checkout.WithGenerator(booking.New(booking.WithPrefix(cfg.BookingPrefix))),
		checkout.WithEvents(&orders.Publisher{Placed: placed, Compensation: compensation, Service: cfg.ServiceName}),
		checkout.WithInventory(inventory.NewService(lg.Named("inventory"))),
		checkout.WithLogger(lg.Named("checkout")),
		checkout.WithMaxAttempts(cfg.BookingMaxAttempts),
	)

	router := httpx.NewRouter(lg.Named("http"))
	(&httpx.OrdersHandler{
		Checkout:  svc,
		Reader:    store,
		Admin:     store,
		Incidents: store,
		Cache:     cache,
		Log:       lg,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		// lebih lama dari timeout handler (chi 15s) supaya request in-flight sempat selesai
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, lg *zap.Logger) (backend, func(), error) {
	if cfg.StoreDriver == "memory" {
		st := memstore.New()
		for _, p := range demoProducts {
			st.AddProduct(p)
		}
		st.AddPromoCode(orders.PromoCode{Code: "HEMAT50", DiscountAmount: 50000})
		lg.Warn("using in-memory store, data is lost on exit")
		return st, func() {}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &orders.Repo{DB: db}, db.Close, nil
}

var demoProducts = []orders.Product{
	{SKU: "SNK-RUN-01", Name: "Runner Sneaker", Price: 450000, Stock: 25, Sizes: []string{"39", "40", "41", "42", "43"}},
	{SKU: "TEE-BSC-01", Name: "Basic Tee", Price: 99000, Stock: 100, Sizes: []string{"S", "M", "L", "XL"}},
	{SKU: "CAP-01", Name: "Cap", Price: 75000, Stock: 40},
}
