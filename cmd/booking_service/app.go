package bookingservice

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
	"mech-dispatch/internal/general/websocket"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/software/booking/handler"
	"mech-dispatch/internal/software/booking/service"
	"mech-dispatch/internal/software/feed"
)

// Run wires the booking service and blocks until ctx is cancelled.
func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for the booking service with a static request ID for startup logs
	logger := logger.New("booking-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

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
	eventRepo := postgres.NewBookingEventRepo()

	// in-process change feeds
	bookingHub := hub.NewBookingHub()
	locationHub := hub.NewLocationHub()

	// set up the booking service
	svc := service.NewBookingService(logger, uow, bookingRepo, eventRepo, pub, bookingHub)

	// ETA engine follows EN_ROUTE bookings and keeps their ETA fresh
	engine := service.NewETAEngine(logger, svc, bookingHub, locationHub, cfg.ETARefreshInterval(), cfg.Tracking.AvgSpeedKmh)
	engine.Start(ctx)
	defer engine.Stop()

	// bridge mechanic positions published by the tracking service into the
	// local location hub (feeds the ETA engine and customer sockets)
	locConsumer := feed.NewLocationFeedConsumer(logger, rmq, locationHub,
		contracts.QueueLocationUpdatesBooking, "booking-service-locations", prefetch)
	go locConsumer.Run(ctx)

	// set up the websocket gateway (no tracking sessions in this service)
	gateway := websocket.NewGateway(logger, jwtManager, nil, bookingHub, locationHub)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewBookingHTTPHandler(svc, logger, jwtManager, gateway)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.BookingServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Booking Service started on port %d", cfg.Services.BookingServicePort),
		map[string]any{"port": cfg.Services.BookingServicePort, "max_concurrent": maxConcurrent},
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
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.BookingServicePort})
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
