// Package main boots the Order Checkout Service HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/cache"
	"github.com/fairyhunter13/order-checkout-service/internal/checkout"
	"github.com/fairyhunter13/order-checkout-service/internal/config"
	"github.com/fairyhunter13/order-checkout-service/internal/events"
	httpapi "github.com/fairyhunter13/order-checkout-service/internal/http"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/orders"
	"github.com/fairyhunter13/order-checkout-service/internal/queue"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/fairyhunter13/order-checkout-service/internal/store/mongostore"
	"github.com/fairyhunter13/order-checkout-service/internal/store/pgstore"
)

func main() {
	cfg := config.Load()
	obs.InitLoggerLevel(cfg.LogLevel)
	obs.Logger.Info("service_starting", "store_backend", cfg.StoreBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootCtx, cancelBoot := context.WithTimeout(ctx, 30*time.Second)
	backend, err := openBackend(bootCtx, cfg)
	if err != nil {
		cancelBoot()
		obs.Logger.Error("store_open_failed", "backend", cfg.StoreBackend, "error", err.Error())
		os.Exit(1)
	}
	if cfg.CatalogSeedFile != "" {
		n, err := store.LoadSeedFile(bootCtx, backend, cfg.CatalogSeedFile)
		if err != nil {
			cancelBoot()
			obs.Logger.Error("catalog_seed_failed", "file", cfg.CatalogSeedFile, "loaded", n, "error", err.Error())
			os.Exit(1)
		}
		obs.Logger.Info("catalog_seeded", "file", cfg.CatalogSeedFile, "products", n)
	}
	orderCache := openCache(bootCtx, cfg)
	cancelBoot()

	metrics := obs.NewMetrics()
	pub := openPublisher(cfg)
	relay := queue.NewManager(queue.Settings{
		Workers:     cfg.RelayWorkers,
		MaxAttempts: cfg.RelayMaxAttempts,
	}, queue.New(cfg.RelayBuffer), pub, metrics)
	relay.Start(ctx)

	eng := checkout.New(backend,
		checkout.WithMaxAttempts(cfg.CheckoutMaxAttempts),
		checkout.WithBackoff(cfg.CheckoutBackoff),
		checkout.WithMetrics(metrics),
	)
	query := orders.NewQuery(backend, orderCache, metrics)

	app := httpapi.NewApp(cfg, backend, eng, query, relay, metrics)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	st := relay.Stats()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", st.BacklogSize, "worker_count", st.WorkerCount)

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := relay.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	relay.Stop()

	if err := pub.Close(); err != nil {
		obs.Logger.Warn("publisher_close_error", "error", err.Error())
	}
	if err := orderCache.Close(); err != nil {
		obs.Logger.Warn("cache_close_error", "error", err.Error())
	}
	if err := backend.Close(ctxSrv); err != nil {
		obs.Logger.Warn("store_close_error", "error", err.Error())
	}
	obs.Logger.Info("service_stopped")
}

func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required for the mongo backend")
		}
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.BackendPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
		return pgstore.Open(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// openCache falls back to no caching when Redis is not configured or unreachable.
func openCache(ctx context.Context, cfg config.Config) cache.OrderCache {
	if cfg.RedisAddr == "" {
		return cache.Noop{}
	}
	c, err := cache.Dial(ctx, cfg.RedisAddr, cfg.OrderCacheTTL)
	if err != nil {
		obs.Logger.Warn("order_cache_disabled", "addr", cfg.RedisAddr, "error", err.Error())
		return cache.Noop{}
	}
	obs.Logger.Info("order_cache_enabled", "addr", cfg.RedisAddr, "ttl_sec", cfg.OrderCacheTTL.Seconds())
	return c
}

func openPublisher(cfg config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.LogPublisher{}
	}
	obs.Logger.Info("kafka_publisher_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, events.BreakerSettings{
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		OpenTimeout: cfg.BreakerOpenTimeout,
	})
}
