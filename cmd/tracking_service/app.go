package trackingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"mech-dispatch/internal/general/config"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/general/postgres"
	"mech-dispatch/internal/general/rabbitmq"
	"mech-dispatch/internal/general/redisstore"
	"mech-dispatch/internal/general/websocket"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/software/feed"
	"mech-dispatch/internal/software/tracking/handler"
	"mech-dispatch/internal/software/tracking/service"
)

// Run wires the tracking service and blocks until ctx is cancelled.
func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for the tracking service with a static request ID for startup logs
	logger := logger.New("tracking-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool (location history, active-job lookups)
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to Redis (hot location store)
	rdb, err := redisstore.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer rdb.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos
	uow := postgres.NewUnitOfWork(pool)
	bookingRepo := postgres.NewBookingRepo()
	histRepo := postgres.NewLocationHistoryRepo()
	locRepo := redisstore.NewMechanicLocationRepo(rdb)

	// in-process feeds
	locationHub := hub.NewLocationHub()
	bookingHub := hub.NewBookingHub()

	// position sources are backed by device pushes over the websocket
	provider := service.NewDeviceSourceProvider()

	// set up the tracking service
	svc := service.NewTrackingService(
		logger, provider, uow, locRepo, histRepo, bookingRepo, pub, locationHub,
		cfg.SampleInterval(), cfg.PositionTimeout(),
	)

	// bridge booking changes into the local hub so mechanics connected here
	// still receive their job queue
	bookingConsumer := feed.NewBookingFeedConsumer(logger, rmq, bookingHub,
		contracts.QueueBookingStatus, "tracking-service-bookings", prefetch)
	go bookingConsumer.Run(ctx)

	// set up the websocket gateway
	gateway := websocket.NewGateway(logger, jwtManager, svc, bookingHub, locationHub)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewTrackingHTTPHandler(svc, locRepo, logger, jwtManager, gateway)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.TrackingServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Tracking Service started on port %d", cfg.Services.TrackingServicePort),
		map[string]any{"port": cfg.Services.TrackingServicePort, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.TrackingServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
