package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/synthetic-users-api/internal/api"
	v1 "github.com/stacklok/synthetic-users-api/internal/api/v1"
	"github.com/stacklok/synthetic-users-api/internal/config"
	"github.com/stacklok/synthetic-users-api/internal/dataset"
	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/service"
	"github.com/stacklok/synthetic-users-api/internal/service/inmemory"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// UsersAppOptions is a function that configures the users app builder
type UsersAppOptions func(*usersAppConfig) error

// usersAppConfig holds the builder state
type usersAppConfig struct {
	config *config.Config

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// generator replaces the record factory built from the dataset config
	generator      dataset.Generator
	datasetOptions []dataset.Option
	telemetry      *telemetry.Telemetry
	newTelemetry   func(context.Context, ...telemetry.Option) (*telemetry.Telemetry, error)
}

func baseConfig(opts ...UsersAppOptions) (*usersAppConfig, error) {
	cfg := &usersAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		newTelemetry:   telemetry.New,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		cfg.config = config.Default()
	}

	return cfg, nil
}

// NewUsersApp creates a new application with the given options.
// The dataset slots are allocated here so that a size the process cannot hold
// fails before the server starts listening.
func NewUsersApp(
	ctx context.Context,
	opts ...UsersAppOptions,
) (*UsersApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ownsTelemetry := cfg.telemetry == nil
	if ownsTelemetry {
		cfg.telemetry, err = cfg.newTelemetry(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Providers created here are flushed and shut down if a later step fails
	shutdownTelemetry := func() {
		if !ownsTelemetry {
			return
		}
		if err := cfg.telemetry.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down telemetry", "error", err)
		}
	}

	store, err := buildDataset(cfg)
	if err != nil {
		shutdownTelemetry()
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}

	userService, err := buildServiceComponents(cfg, store)
	if err != nil {
		_ = store.Close()
		shutdownTelemetry()
		return nil, fmt.Errorf("failed to build service components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, userService)
	if err != nil {
		_ = store.Close()
		shutdownTelemetry()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &UsersApp{
		config: cfg.config,
		components: &AppComponents{
			Dataset:     store,
			UserService: userService,
			Telemetry:   cfg.telemetry,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout applied by the default middlewares
func WithRequestTimeout(d time.Duration) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		cfg.requestTimeout = d
		// The write deadline must outlast the handler timeout so the 503 can be written
		if cfg.writeTimeout <= d {
			cfg.writeTimeout = d + 5*time.Second
		}
		return nil
	}
}

// WithGenerator replaces the record factory
func WithGenerator(gen dataset.Generator) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.generator = gen
		return nil
	}
}

// WithDatasetOptions appends options to those derived from the dataset config
func WithDatasetOptions(opts ...dataset.Option) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.datasetOptions = append(cfg.datasetOptions, opts...)
		return nil
	}
}

// WithTelemetry sets an already initialized telemetry instance.
// The app shuts it down on Stop.
func WithTelemetry(t *telemetry.Telemetry) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildDataset creates the record factory and allocates the dataset store
func buildDataset(b *usersAppConfig) (*dataset.Store, error) {
	dc := b.config.Dataset
	slog.Info("Initializing dataset",
		"size", dc.Size,
		"policy", dc.Policy,
		"startup", dc.Startup,
		"name_source", dc.NameSource)

	gen := b.generator
	if gen == nil {
		names, err := record.NewNameSource(dc.NameSource, dc.Seed)
		if err != nil {
			return nil, err
		}
		gen = record.NewFactory(dc.Seed, record.WithNameSource(names))
	}

	opts := append([]dataset.Option{
		dataset.WithChunkSize(dc.ChunkSize),
		dataset.WithPolicy(dataset.Policy(dc.Policy)),
		dataset.WithMetrics(b.telemetry.DatasetMetrics()),
	}, b.datasetOptions...)

	store, err := dataset.New(gen, dc.Size, opts...)
	if err != nil {
		return nil, err
	}

	if err := b.telemetry.ObserveDataset(store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to observe dataset: %w", err)
	}
	return store, nil
}

func buildServiceComponents(
	b *usersAppConfig,
	store *dataset.Store,
) (service.UserService, error) {
	slog.Info("Initializing service components")

	qc := b.config.Query
	svc, err := inmemory.New(store,
		inmemory.WithDefaultLimit(qc.DefaultLimit),
		inmemory.WithMaxLimit(qc.MaxLimit),
		inmemory.WithMaxConcurrentScans(qc.MaxConcurrentScans),
		inmemory.WithQueryMetrics(b.telemetry.QueryMetrics()),
		inmemory.WithTracer(b.telemetry.Tracer(inmemory.ServiceTracerName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user service: %w", err)
	}

	slog.Info("Service components initialized successfully")
	return svc, nil
}

func buildHTTPServer(
	_ context.Context,
	b *usersAppConfig,
	svc service.UserService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		metricsMiddleware,
	}, b.middlewares...)

	router := api.NewServer(svc,
		api.WithMiddlewares(b.middlewares...),
		api.WithCORS(b.config.CORS.AllowedOrigins, b.config.CORS.MaxAge),
		api.WithRouterOptions(
			v1.WithParamPolicy(v1.ParamPolicy(b.config.Query.ParamPolicy)),
			v1.WithMaxLimit(b.config.Query.MaxLimit),
		),
		api.WithMetricsHandler(b.telemetry.MetricsHandler()),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
