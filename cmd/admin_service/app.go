package adminservice

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
	"mech-dispatch/internal/software/admin/handler"
	"mech-dispatch/internal/software/admin/service"
	"mech-dispatch/internal/software/feed"
)

// Run wires the admin service and blocks until ctx is cancelled.
func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for the admin service with a static request ID for startup logs
	logger := logger.New("admin-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool (booking counts)
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to Redis (online mechanic set)
	rdb, err := redisstore.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer rdb.Close()

	// connect to RabbitMQ (realtime dispatch board feed)
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos
	uow := postgres.NewUnitOfWork(pool)
	bookingRepo := postgres.NewBookingRepo()
	locRepo := redisstore.NewMechanicLocationRepo(rdb)

	// bridge mechanic positions into the local hub for the dispatch board
	locationHub := hub.NewLocationHub()
	locConsumer := feed.NewLocationFeedConsumer(logger, rmq, locationHub,
		contracts.QueueLocationUpdatesDispatch, "admin-service-locations", prefetch)
	go locConsumer.Run(ctx)

	// set up the admin service
	svc := service.NewAdminService(logger, uow, bookingRepo, locRepo)

	// set up the websocket gateway (dispatch board only)
	gateway := websocket.NewGateway(logger, jwtManager, nil, nil, locationHub)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewAdminHTTPHandler(svc, logger, jwtManager, gateway)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.AdminServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Admin Service started on port %d", cfg.Services.AdminServicePort),
		map[string]any{"port": cfg.Services.AdminServicePort, "max_concurrent": maxConcurrent},
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
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.AdminServicePort})
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
