package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the providers, the users API instruments built on them, and their shutdown
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	registry       *prometheus.Registry

	dataset *DatasetMetrics
	query   *QueryMetrics

	// shutdowns run last to first
	shutdowns []func(context.Context) error
}

// Option is a function that configures the telemetry setup
type Option func(*telemetryConfig)

type telemetryConfig struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(tc *telemetryConfig) {
		tc.config = cfg
	}
}

// New builds the providers and the dataset and query instruments.
// Without an enabled configuration every provider is a no-op, yet the instruments are
// still valid so callers never branch on whether telemetry is on.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	tc := &telemetryConfig{}
	for _, opt := range opts {
		opt(tc)
	}

	cfg := tc.config
	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		cfg = nil
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	t := &Telemetry{}
	if err := t.init(ctx, cfg); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) init(ctx context.Context, cfg *Config) error {
	if cfg != nil {
		slog.Info("Initializing telemetry",
			"service_name", cfg.GetServiceName(),
			"service_version", cfg.GetServiceVersion())
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	t.tracerProvider = tp
	if sdkTP, ok := tp.(*sdktrace.TracerProvider); ok {
		t.onShutdown("tracer provider", sdkTP.Shutdown)
	}

	meterOpts := []MeterProviderOption{}
	if cfg != nil {
		meterOpts = append(meterOpts,
			WithMeterServiceName(cfg.GetServiceName()),
			WithMeterServiceVersion(cfg.GetServiceVersion()),
			WithMetricsConfig(cfg.Metrics),
			WithMeterEndpoint(cfg.GetEndpoint()),
			WithMeterInsecure(cfg.Insecure))

		if cfg.PrometheusEnabled() {
			t.registry = prometheus.NewRegistry()
			t.registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			meterOpts = append(meterOpts, WithPrometheusRegisterer(t.registry))
		}
	}

	mp, err := NewMeterProvider(ctx, meterOpts...)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	t.meterProvider = mp
	if sdkMP, ok := mp.(*sdkmetric.MeterProvider); ok {
		t.onShutdown("meter provider", sdkMP.Shutdown)
	}

	if t.dataset, err = NewDatasetMetrics(mp); err != nil {
		return fmt.Errorf("failed to create dataset metrics: %w", err)
	}
	if t.query, err = NewQueryMetrics(mp); err != nil {
		return fmt.Errorf("failed to create query metrics: %w", err)
	}

	if cfg != nil {
		slog.Info("Telemetry initialized successfully", "prometheus", t.registry != nil)
	}
	return nil
}

func (t *Telemetry) onShutdown(what string, fn func(context.Context) error) {
	t.shutdowns = append(t.shutdowns, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("failed to shutdown %s: %w", what, err)
		}
		return nil
	})
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Tracer returns a named tracer from the tracer provider
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// DatasetMetrics returns the instruments recorded by the dataset generator
func (t *Telemetry) DatasetMetrics() *DatasetMetrics {
	return t.dataset
}

// QueryMetrics returns the instruments recorded by the user service
func (t *Telemetry) QueryMetrics() *QueryMetrics {
	return t.query
}

// DatasetProgress is what the dataset gauges read on every collection
type DatasetProgress interface {
	Generated() int
	Size() int
	IsComplete() bool
}

// ObserveDataset exports the size, pending slots and completeness of the dataset.
// The gauges are read at collection time, so a scrape during generation sees live progress.
// The callback is unregistered on Shutdown.
func (t *Telemetry) ObserveDataset(p DatasetProgress) error {
	meter := t.meterProvider.Meter(DatasetMetricsMeterName)

	size, err := meter.Int64ObservableGauge("users_api_dataset_size",
		metric.WithDescription("Configured number of users"),
		metric.WithUnit("{record}"))
	if err != nil {
		return err
	}
	pending, err := meter.Int64ObservableGauge("users_api_dataset_pending_records",
		metric.WithDescription("Dataset slots not yet populated"),
		metric.WithUnit("{record}"))
	if err != nil {
		return err
	}
	complete, err := meter.Int64ObservableGauge("users_api_dataset_complete",
		metric.WithDescription("1 once every dataset slot is populated, 0 before"))
	if err != nil {
		return err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		total := int64(p.Size())
		o.ObserveInt64(size, total)
		o.ObserveInt64(pending, total-int64(p.Generated()))
		var done int64
		if p.IsComplete() {
			done = 1
		}
		o.ObserveInt64(complete, done)
		return nil
	}, size, pending, complete)
	if err != nil {
		return fmt.Errorf("failed to register dataset gauges: %w", err)
	}

	t.shutdowns = append(t.shutdowns, func(context.Context) error {
		return reg.Unregister()
	})
	return nil
}

// MetricsHandler serves the Prometheus exposition format.
// It returns nil when the prometheus exporter is not enabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		EnableOpenMetrics: true,
	})
}

// Shutdown unregisters the dataset gauges, then flushes and stops the providers.
// Calling it again is a no-op.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if len(t.shutdowns) == 0 {
		return nil
	}
	slog.Info("Shutting down telemetry")

	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
