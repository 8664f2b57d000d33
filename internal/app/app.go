package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fulfillment"
	"github.com/xenking/gmarket/internal/domain/inventory"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/domain/txn"
	"github.com/xenking/gmarket/internal/events"
	"github.com/xenking/gmarket/internal/handler"
	"github.com/xenking/gmarket/internal/seed"
	"github.com/xenking/gmarket/internal/storage/memory"
	"github.com/xenking/gmarket/internal/storage/postgres"
	"github.com/xenking/gmarket/internal/storage/redis"
	"github.com/xenking/gmarket/pkg/health"
	"github.com/xenking/gmarket/pkg/httpmiddleware"
)

// backend is the set of repositories one storage driver provides.
type backend struct {
	tx        txn.Transactor
	products  product.Repository
	stock     inventory.Store
	carts     cart.Repository
	orders    order.Repository
	payments  payment.Repository
	shipments shipping.Repository
	couriers  shipping.CourierRepository
	apikeys   auth.Repository
	seed      seed.Target
}

func memoryBackend() backend {
	store := memory.New()
	return backend{
		tx:        store,
		products:  store.Products(),
		stock:     store.Products(),
		carts:     store.Carts(),
		orders:    store.Orders(),
		payments:  store.Payments(),
		shipments: store.Shipments(),
		couriers:  store.Shipments(),
		apikeys:   store.APIKeys(),
		seed:      seed.MemoryTarget(store),
	}
}

func postgresBackend(db *postgres.DB) backend {
	products := postgres.NewProductRepository(db)
	shipments := postgres.NewShipmentRepository(db)
	return backend{
		tx:        db,
		products:  products,
		stock:     products,
		carts:     postgres.NewCartRepository(db),
		orders:    postgres.NewOrderRepository(db),
		payments:  postgres.NewPaymentRepository(db),
		shipments: shipments,
		couriers:  shipments,
		apikeys:   postgres.NewAPIKeyRepository(db),
		seed:      seed.PostgresTarget(db),
	}
}

func newPublisher(lg *zap.Logger, cfg EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case EventsKafka:
		return events.NewKafkaPublisher(cfg.Brokers, cfg.TopicPrefix), nil
	case EventsAMQP:
		p, err := events.DialAMQP(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			return nil, errors.Wrap(err, "dial amqp")
		}
		return p, nil
	case EventsLog:
		return events.NewLogPublisher(lg.Named("events")), nil
	default:
		return events.Nop{}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("events", cfg.Events.Driver),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var be backend
	switch cfg.Storage {
	case StorageMemory:
		be = memoryBackend()
	default:
		// PostgreSQL pool + migrations.
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.Ping(pool))
		be = postgresBackend(postgres.New(pool))
	}

	if cfg.SeedFile != "" {
		fixture, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return errors.Wrap(err, "load seed")
		}
		if _, err := seed.Apply(ctx, lg.Named("seed"), be.seed, fixture, []byte(cfg.APIKeyPepper)); err != nil {
			return errors.Wrap(err, "apply seed")
		}
	}

	publisher, err := newPublisher(lg, cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Error("Close event publisher", zap.Error(err))
		}
	}()

	// Domain services.
	ledger := inventory.NewLedger(be.stock)
	orderService, err := order.NewService(be.tx, be.products, ledger, be.carts, be.orders,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	coordinator, err := fulfillment.NewCoordinator(be.tx, be.orders, ledger, be.payments, be.shipments,
		fulfillment.WithTracerProvider(m.TracerProvider()),
		fulfillment.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create fulfillment coordinator")
	}

	handlerOpts := []handler.Option{handler.WithPublisher(publisher)}
	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		idem := redis.NewIdempotencyStore(rdb, cfg.Redis.TTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.Ping(idem))
		handlerOpts = append(handlerOpts, handler.WithIdempotency(idem))
	}

	// HTTP handlers.
	h := handler.NewHandler(handler.Services{
		Products:    be.products,
		Carts:       cart.NewService(be.carts, be.products, ledger),
		Orders:      orderService,
		Fulfillment: coordinator,
		Payments:    payment.NewService(be.tx, be.orders, be.payments),
		Shipping:    shipping.NewService(be.tx, be.orders, be.shipments, be.couriers),
	},
		handler.NewSecurityHandler(be.apikeys, []byte(cfg.APIKeyPepper)),
		handlerOpts...,
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.APIKeyOrIP(handler.APIKeyHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("gmarket-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
