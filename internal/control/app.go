// Package control wires storage, transport, intake and background
// workers into one runnable dispatcher application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/pushgate/internal/consumer"
	"github.com/vietddude/pushgate/internal/core/config"
	"github.com/vietddude/pushgate/internal/core/domain"
	"github.com/vietddude/pushgate/internal/dispatch"
	"github.com/vietddude/pushgate/internal/health"
	redisclient "github.com/vietddude/pushgate/internal/infra/redis"
	"github.com/vietddude/pushgate/internal/infra/storage"
	"github.com/vietddude/pushgate/internal/infra/storage/memory"
	"github.com/vietddude/pushgate/internal/infra/storage/postgres"
	"github.com/vietddude/pushgate/internal/metrics"
	"github.com/vietddude/pushgate/internal/sweeper"
	"github.com/vietddude/pushgate/internal/transport"
	"github.com/vietddude/pushgate/internal/transport/expo"
	"github.com/vietddude/pushgate/internal/transport/fcm"
)

// App is the main application struct that manages the dispatcher lifecycle.
type App struct {
	cfg          config.AppConfig
	engine       *dispatch.Engine
	endpoints    storage.EndpointStore
	dispatchLog  storage.DispatchLogStore
	sweeper      *sweeper.Sweeper
	queue        *consumer.Consumer
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// App serves the intake queue directly.
var _ consumer.Service = (*App)(nil)

// NewTransport builds the push provider named by the configuration.
func NewTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Provider {
	case "", "fcm":
		return fcm.New(cfg.FCM), nil
	case "expo":
		return expo.New(cfg.Expo), nil
	default:
		return nil, fmt.Errorf("unknown transport provider: %q", cfg.Provider)
	}
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg config.AppConfig) (*App, error) {

	// 1. Initialize Storage
	var endpoints storage.EndpointStore
	var dispatchLog storage.DispatchLogStore
	var db *postgres.DB

	if cfg.Database.URL != "" {
		backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
		err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
			var err error
			db, err = postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				slog.Warn("Database not reachable, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}

		endpoints = postgres.NewEndpointRepo(db)
		dispatchLog = postgres.NewDispatchRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		endpoints = memory.NewEndpointRepo(store)
		dispatchLog = memory.NewDispatchRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Redis device mirror
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, device mirror disabled", "error", err)
			redisClient = nil
		} else {
			endpoints = storage.NewMirroredEndpoints(endpoints, redisclient.NewDeviceMirror(redisClient))
			slog.Info("Device mirror enabled")
		}
	}

	// 3. Initialize Transport and Engine
	t, err := NewTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	engine := dispatch.NewEngine(endpoints, t, cfg.Dispatch)

	// 4. Initialize Intake Queue
	var queue *consumer.Consumer
	if cfg.Broker.URL != "" {
		queue, err = consumer.Dial(context.Background(), cfg.Broker)
		if err != nil {
			return nil, fmt.Errorf("failed to init broker: %w", err)
		}
	}

	// 5. Initialize Health Monitor
	healthMon := health.NewMonitor()
	if db != nil {
		healthMon.Register("database", health.StatusCritical, db.Health)
	}
	if redisClient != nil {
		healthMon.Register("redis", health.StatusDegraded, redisClient.Health)
	}
	if queue != nil {
		healthMon.Register("broker", health.StatusDegraded, queue.Health)
	}

	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		engine:       engine,
		endpoints:    endpoints,
		dispatchLog:  dispatchLog,
		sweeper:      sweeper.New(cfg.Sweeper, endpoints, t),
		queue:        queue,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Start starts the app and all its components.
func (a *App) Start(ctx context.Context) error {
	// Start Ops Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Stale Endpoint Sweeper
	go a.sweeper.Start(ctx)

	// Start Intake Consumer
	if a.queue != nil {
		handler := consumer.NewEnvelopeHandler(a, a.cfg.Broker.MaxDeliveries)
		go func() {
			if err := a.queue.Start(ctx, handler.Handle); err != nil {
				a.log.Error("Intake consumer failed", "error", err)
			}
		}()
	}

	return nil
}

// Stop stops the app.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping pushgate...")

	// Close Broker
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.Warn("Failed to close broker connection", "error", err)
		}
	}

	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close Database
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Ops Server
	return a.healthServer.Stop(ctx)
}

// Dispatch delivers one notification and records the outcome in the
// dispatch log. The log write is best-effort and survives cancellation
// of the dispatch itself.
func (a *App) Dispatch(ctx context.Context, n *domain.Notification) (*domain.DispatchResult, error) {
	res, err := a.engine.Dispatch(ctx, n)
	if res != nil {
		rec := domain.NewDispatchRecord(n, res)
		if recErr := a.dispatchLog.Record(context.WithoutCancel(ctx), rec); recErr != nil {
			a.log.Warn("Failed to record dispatch", "notification", n.ID, "error", recErr)
		}
	}
	return res, err
}

// Register stores or rotates one device registration.
func (a *App) Register(ctx context.Context, ep domain.Endpoint) error {
	if ep.OwnerID == "" || ep.DeviceID == "" || ep.Token == "" {
		return errors.New("registration requires owner, device and token")
	}
	if ep.Platform == "" {
		ep.Platform = domain.PlatformOther
	}
	if ep.LastConfirmedAt.IsZero() {
		ep.LastConfirmedAt = time.Now().UTC()
	}

	if err := a.endpoints.Upsert(ctx, ep); err != nil {
		metrics.EndpointOps.WithLabelValues("register", "error").Inc()
		return fmt.Errorf("failed to register endpoint: %w", err)
	}

	metrics.EndpointOps.WithLabelValues("register", "ok").Inc()
	a.log.Info("Registered endpoint",
		"owner", ep.OwnerID,
		"device", ep.DeviceID,
		"platform", ep.Platform)
	return nil
}

// Unregister removes the registration matching the exact
// (owner, device, token) tuple. Removing a rotated or absent
// registration is a no-op.
func (a *App) Unregister(ctx context.Context, ownerID, deviceID, token string) error {
	if ownerID == "" || deviceID == "" {
		return errors.New("unregistration requires owner and device")
	}

	if err := a.endpoints.Delete(ctx, ownerID, deviceID, token); err != nil {
		metrics.EndpointOps.WithLabelValues("unregister", "error").Inc()
		return fmt.Errorf("failed to unregister endpoint: %w", err)
	}

	metrics.EndpointOps.WithLabelValues("unregister", "ok").Inc()
	a.log.Info("Unregistered endpoint", "owner", ownerID, "device", deviceID)
	return nil
}

// Sweep runs one stale-endpoint validation pass.
func (a *App) Sweep(ctx context.Context) (checked, removed int, err error) {
	return a.sweeper.Sweep(ctx)
}

// Endpoints exposes the endpoint store for operational commands.
func (a *App) Endpoints() storage.EndpointStore { return a.endpoints }

// DispatchLog exposes the dispatch log for operational commands.
func (a *App) DispatchLog() storage.DispatchLogStore { return a.dispatchLog }
