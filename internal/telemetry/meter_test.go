package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMeterProvider(t *testing.T) {
	t.Parallel()

	t.Run("no-op without config", func(t *testing.T) {
		t.Parallel()

		mp, err := NewMeterProvider(context.Background())
		require.NoError(t, err)
		assert.IsType(t, noop.MeterProvider{}, mp)
	})

	t.Run("no-op when disabled", func(t *testing.T) {
		t.Parallel()

		mp, err := NewMeterProvider(context.Background(), WithMetricsConfig(&MetricsConfig{Enabled: false}))
		require.NoError(t, err)
		assert.IsType(t, noop.MeterProvider{}, mp)
	})

	t.Run("otlp exporter", func(t *testing.T) {
		t.Parallel()

		mp, err := NewMeterProvider(context.Background(),
			WithMeterServiceName("users-api-test"),
			WithMeterServiceVersion("v0.0.1"),
			WithMetricsConfig(&MetricsConfig{Enabled: true}),
			WithMeterEndpoint("localhost:4318"),
			WithMeterInsecure(true),
		)
		require.NoError(t, err)

		sdkMP, ok := mp.(*sdkmetric.MeterProvider)
		require.True(t, ok)
		_ = sdkMP.Shutdown(context.Background())
	})

	t.Run("prometheus exporter registers on the registry", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		mp, err := NewMeterProvider(context.Background(),
			WithMetricsConfig(&MetricsConfig{Enabled: true, Exporters: []string{ExporterPrometheus}}),
			WithPrometheusRegisterer(reg),
		)
		require.NoError(t, err)
		defer func() { _ = mp.(*sdkmetric.MeterProvider).Shutdown(context.Background()) }()

		counter, err := mp.Meter("test").Int64Counter("users_api_test_events")
		require.NoError(t, err)
		counter.Add(context.Background(), 3)

		families, err := reg.Gather()
		require.NoError(t, err)

		var found bool
		for _, f := range families {
			if f.GetName() == "users_api_test_events_total" {
				found = true
				require.Len(t, f.GetMetric(), 1)
				assert.Equal(t, 3.0, f.GetMetric()[0].GetCounter().GetValue())
			}
		}
		assert.True(t, found, "counter should be exposed to prometheus")
	})

	t.Run("prometheus exporter without registerer", func(t *testing.T) {
		t.Parallel()

		_, err := NewMeterProvider(context.Background(),
			WithMetricsConfig(&MetricsConfig{Enabled: true, Exporters: []string{ExporterPrometheus}}),
		)
		require.ErrorIs(t, err, ErrPrometheusRegistererRequired)
	})

	t.Run("unknown exporter", func(t *testing.T) {
		t.Parallel()

		_, err := NewMeterProvider(context.Background(),
			WithMetricsConfig(&MetricsConfig{Enabled: true, Exporters: []string{"statsd"}}),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown metrics exporter")
	})
}
