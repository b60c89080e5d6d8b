// Package telemetry provides OpenTelemetry instrumentation for the users API server.
// Traces are exported over OTLP; metrics go to OTLP, a Prometheus scrape endpoint, or both.
package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "users-api"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the default trace sampling rate (5%)
	DefaultSampling = 0.05

	// ExporterOTLP pushes metrics to the OTLP endpoint
	ExporterOTLP = "otlp"
	// ExporterPrometheus serves metrics for scraping on /metrics
	ExporterPrometheus = "prometheus"
)

// Config represents the root telemetry configuration
type Config struct {
	// Enabled controls whether telemetry is enabled globally
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to "users-api"
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the application version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP/HTTP collector as "host:port"
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure allows plain HTTP to the collector
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig defines tracing-specific configuration
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the trace sampling ratio in [0, 1]; 0 means DefaultSampling
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig defines metrics-specific configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporters lists where metrics go: "otlp", "prometheus". Empty means otlp only.
	Exporters []string `yaml:"exporters,omitempty"`

	// Interval is the OTLP push interval; 0 means DefaultMetricsInterval
	Interval time.Duration `yaml:"interval,omitempty"`
}

// GetServiceName returns the service name, using default if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version, using "unknown" if not specified
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the endpoint, using default if not specified
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio, DefaultSampling when unset
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetExporters returns the configured metric exporters, otlp when none are listed
func (c *MetricsConfig) GetExporters() []string {
	if len(c.Exporters) == 0 {
		return []string{ExporterOTLP}
	}
	return c.Exporters
}

// GetInterval returns the OTLP push interval
func (c *MetricsConfig) GetInterval() time.Duration {
	if c.Interval <= 0 {
		return DefaultMetricsInterval
	}
	return c.Interval
}

// PrometheusEnabled reports whether the Prometheus scrape endpoint should be served
func (c *Config) PrometheusEnabled() bool {
	if c == nil || !c.Enabled || c.Metrics == nil || !c.Metrics.Enabled {
		return false
	}
	return slices.Contains(c.Metrics.GetExporters(), ExporterPrometheus)
}

// Validate validates the telemetry configuration
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error

	if c.Tracing != nil {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Validate validates the tracing configuration
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}

	return nil
}

// Validate validates the metrics configuration
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	seen := map[string]bool{}
	for _, e := range c.Exporters {
		switch e {
		case ExporterOTLP, ExporterPrometheus:
		default:
			errs = append(errs, fmt.Errorf("unknown exporter %q, expected %s or %s", e, ExporterOTLP, ExporterPrometheus))
		}
		if seen[e] {
			errs = append(errs, fmt.Errorf("exporter %q listed more than once", e))
		}
		seen[e] = true
	}

	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}

	return errors.Join(errs...)
}
