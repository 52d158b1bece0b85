package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/messaging/kafka"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/outbox"
	"restaurant-orders/internal/realtime"
	"restaurant-orders/internal/services/inventory"
	"restaurant-orders/internal/services/notification"
	"restaurant-orders/internal/services/order"
	"restaurant-orders/internal/services/tracking"
	"restaurant-orders/migrations"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	mode       string
	port       int
	migrations string
}

func main() {
	var (
		mode           = flag.String("mode", "", "Service mode (order-service, outbox-relay, inventory-worker, notification-subscriber, realtime-gateway)")
		port           = flag.Int("port", 0, "HTTP port, overrides http.port")
		configPath     = flag.String("config", "config.yaml", "Path to the YAML config file")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations; embedded migrations are used when empty")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.NewWithWriter(*mode, os.Stdout, cfg.Log.Level)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.HTTP.Port,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{mode: *mode, port: cfg.HTTP.Port, migrations: *migrationsPath}

	var run func(context.Context, *config.Config, *logger.Logger, options) error
	switch *mode {
	case "order-service":
		run = runOrderService
	case "outbox-relay":
		run = runOutboxRelay
	case "inventory-worker":
		run = runInventoryWorker
	case "notification-subscriber":
		run = runNotificationSubscriber
	case "realtime-gateway":
		run = runRealtimeGateway
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

func newMetrics(mode string) *metrics.Metrics {
	return metrics.New(strings.ReplaceAll(mode, "-", "_"), nil)
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func connectDB(ctx context.Context, cfg *config.Config, log *logger.Logger, opts options) (*database.DB, error) {
	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(ctx, migrationsFS(opts.migrations)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("redis_connected", "Connected to Redis", "", map[string]interface{}{"addr": cfg.Redis.Addr})
	return client, nil
}

// eventPublisher picks the bus the outbox relay writes to
func eventPublisher(cfg *config.Config, pub *messaging.Publisher) (outbox.EventPublisher, func(), error) {
	if cfg.Outbox.Bus != "kafka" {
		return pub, func() {}, nil
	}
	kp, err := kafka.NewEventPublisher(kafka.NewClient(cfg.Kafka.Brokers), cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	return kp, func() { kp.Close() }, nil
}

// runOrderService serves the order API and relays the outbox in the same process
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, opts options) error {
	requestID := logger.GenerateRequestID()
	m := newMetrics(opts.mode)

	db, err := connectDB(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()
	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)
	publisher := messaging.NewPublisher(conn, log)

	var rdb *redis.Client
	if cfg.Order.Sequencer == "redis" || cfg.Realtime.Transport == "redis" {
		if rdb, err = connectRedis(ctx, cfg, log); err != nil {
			return err
		}
		defer rdb.Close()
	}

	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	hub.OnDrop(func(string) { m.RealtimeDropped.Inc() })

	fanout := realtime.MultiPublisher{hub}
	switch cfg.Realtime.Transport {
	case "redis":
		fanout = append(fanout, realtime.NewRedisPublisher(rdb))
	case "rabbitmq":
		fanout = append(fanout, realtime.NewAMQPPublisher(publisher))
	}
	broadcaster := realtime.NewBroadcaster(fanout, publisher, m, log)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	var seq order.Sequencer = order.NewPostgresSequencer(db.Pool)
	if cfg.Order.Sequencer == "redis" {
		seq = order.NewRedisSequencer(rdb, log)
	}

	service := order.NewService(
		order.NewPostgresRepository(db.Pool),
		order.NewPostgresCatalog(db.Pool),
		order.NewNumberGenerator(seq, loc),
		broadcaster, m, log,
		order.Options{NumberAttempts: cfg.Order.NumberAttempts},
	)
	handler := order.NewHandler(service, db, m, log, cfg.HTTP.RequestTimeout)

	router := handler.Routes()
	router.Handle("/metrics", metrics.Handler())
	router.Handle("/api/realtime/stream", realtime.NewStreamHandler(hub, log))

	events, closeEvents, err := eventPublisher(cfg, publisher)
	if err != nil {
		return err
	}
	defer closeEvents()
	relay := outbox.NewRelay(outbox.NewPostgresStore(db.Pool), events, m, log, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(ctx, router, opts.port, log) })
	g.Go(func() error { return relay.Run(ctx) })
	return g.Wait()
}

// runOutboxRelay only relays committed events, for deployments that scale it separately
func runOutboxRelay(ctx context.Context, cfg *config.Config, log *logger.Logger, opts options) error {
	m := newMetrics(opts.mode)

	db, err := connectDB(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	var publisher *messaging.Publisher
	if cfg.Outbox.Bus == "rabbitmq" {
		conn, err := messaging.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()
		publisher = messaging.NewPublisher(conn, log)
	}

	events, closeEvents, err := eventPublisher(cfg, publisher)
	if err != nil {
		return err
	}
	defer closeEvents()

	relay := outbox.NewRelay(outbox.NewPostgresStore(db.Pool), events, m, log, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(ctx) })
	g.Go(func() error { return serveMetrics(ctx, opts.port, log) })
	return g.Wait()
}

// runInventoryWorker deducts stock for completed orders
func runInventoryWorker(ctx context.Context, cfg *config.Config, log *logger.Logger, opts options) error {
	m := newMetrics(opts.mode)

	db, err := connectDB(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()
	alerts := messaging.NewPublisher(conn, log)

	var consumer inventory.Consumer = messaging.NewConsumer(conn, log, messaging.QueueInventoryDeduction, "inventory-worker", cfg.RabbitMQ.Prefetch)
	if cfg.Outbox.Bus == "kafka" {
		kc, err := kafka.NewConsumer(kafka.NewClient(cfg.Kafka.Brokers), cfg.Kafka.Topic, cfg.Kafka.GroupID, messaging.RoutingKeyOrderCompleted, log)
		if err != nil {
			return err
		}
		consumer = kc
	}

	worker := inventory.NewWorker(consumer, inventory.NewPostgresStore(db.Pool), alerts, m, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(ctx) })
	g.Go(func() error { return serveMetrics(ctx, opts.port, log) })
	return g.Wait()
}

// runNotificationSubscriber prints operator alerts
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, _ options) error {
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.QueueAlerts, "notification-subscriber", cfg.RabbitMQ.Prefetch)
	return notification.NewSubscriber(consumer, log).Start(ctx)
}

// runRealtimeGateway bridges the shared realtime transport into a local hub and
// serves the SSE stream plus the state clients resync from
func runRealtimeGateway(ctx context.Context, cfg *config.Config, log *logger.Logger, opts options) error {
	m := newMetrics(opts.mode)

	db, err := connectDB(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	hub.OnDrop(func(string) { m.RealtimeDropped.Inc() })

	var bridge func(ctx context.Context) error
	switch cfg.Realtime.Transport {
	case "redis":
		rdb, err := connectRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bridge = func(ctx context.Context) error { return realtime.BridgeRedis(ctx, rdb, hub, log) }
	case "rabbitmq":
		conn, err := messaging.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()
		bridge = func(ctx context.Context) error { return realtime.BridgeAMQP(ctx, conn, hub, log) }
	default:
		return fmt.Errorf("realtime-gateway needs realtime.transport redis or rabbitmq, got %q", cfg.Realtime.Transport)
	}

	router := chi.NewRouter()
	tracking.NewHandler(tracking.NewService(order.NewPostgresRepository(db.Pool), db, log), log).RegisterRoutes(router)
	router.Handle("/api/realtime/stream", m.Instrument("realtime_stream", realtime.NewStreamHandler(hub, log)))
	router.Handle("/metrics", metrics.Handler())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge(ctx) })
	g.Go(func() error { return serveHTTP(ctx, router, opts.port, log) })
	return g.Wait()
}

func serveMetrics(ctx context.Context, port int, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return serveHTTP(ctx, mux, port, log)
}

// serveHTTP runs the server until ctx is cancelled, then shuts it down gracefully
func serveHTTP(ctx context.Context, handler http.Handler, port int, log *logger.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_started", fmt.Sprintf("HTTP server started on port %d", port), "", map[string]interface{}{
			"port": port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("graceful_shutdown", "Shutting down HTTP server", "", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
