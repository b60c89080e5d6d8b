package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/stacklok/synthetic-users-api/internal/config"
	"github.com/stacklok/synthetic-users-api/internal/dataset"
	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

// createTestConfig returns a valid configuration with a small dataset
func createTestConfig(size int) *config.Config {
	cfg := config.Default()
	cfg.Dataset.Size = size
	cfg.Dataset.ChunkSize = 10
	cfg.Dataset.Seed = 7
	return cfg
}

// scoreGenerator gives record i the i-th score and plain ids otherwise
type scoreGenerator struct {
	scores []float64
}

func (g scoreGenerator) Generate(id int64) record.Record {
	return record.Record{
		ID:    id,
		Name:  "User",
		Email: fmt.Sprintf("user.%d@example.com", id),
		Score: g.scores[id-1],
	}
}

func newTestApp(t *testing.T, opts ...UsersAppOptions) *UsersApp {
	t.Helper()
	app, err := NewUsersApp(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.components.Dataset.Close() })
	return app
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080"},
		{name: "ephemeral port", addr: ":0"},
		{name: "localhost", addr: "localhost:9090"},
		{name: "ipv4 host", addr: "127.0.0.1:8080"},
		{name: "empty", addr: "", wantErr: true},
		{name: "missing port", addr: "127.0.0.1:", wantErr: true},
		{name: "no colon", addr: "8080", wantErr: true},
		{name: "port out of range", addr: ":99999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &usersAppConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestWithRequestTimeout(t *testing.T) {
	t.Parallel()

	cfg, err := baseConfig(WithRequestTimeout(20 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.requestTimeout)
	assert.Greater(t, cfg.writeTimeout, cfg.requestTimeout)

	_, err = baseConfig(WithRequestTimeout(0))
	require.Error(t, err)
}

func TestBaseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := baseConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, cfg.address)
	assert.Equal(t, config.Default(), cfg.config)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)
}

func TestNewUsersApp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		opts          []UsersAppOptions
		errorContains string
	}{
		{
			name: "small dataset",
			opts: []UsersAppOptions{WithConfig(createTestConfig(50)), WithAddress(":0")},
		},
		{
			name: "faker names",
			opts: []UsersAppOptions{WithConfig(func() *config.Config {
				cfg := createTestConfig(20)
				cfg.Dataset.NameSource = config.NameSourceFaker
				return cfg
			}())},
		},
		{
			name: "invalid configuration",
			opts: []UsersAppOptions{WithConfig(func() *config.Config {
				cfg := createTestConfig(50)
				cfg.Dataset.Policy = "sometimes"
				return cfg
			}())},
			errorContains: "invalid configuration",
		},
		{
			name:          "invalid address",
			opts:          []UsersAppOptions{WithConfig(createTestConfig(50)), WithAddress("nope")},
			errorContains: "failed to build base configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, err := NewUsersApp(context.Background(), tt.opts...)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = app.components.Dataset.Close() })

			components := app.GetComponents()
			require.NotNil(t, components.Dataset)
			require.NotNil(t, components.UserService)
			require.NotNil(t, components.Telemetry)
			assert.Equal(t, app.GetConfig().Dataset.Size, components.Dataset.Size())
			assert.Zero(t, components.Dataset.Runs(), "lazy startup must not generate during construction")
		})
	}
}

func TestNewUsersApp_ServesSortedPage(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(5)
	cfg.Dataset.Policy = config.PolicyBlocking

	app := newTestApp(t,
		WithConfig(cfg),
		WithGenerator(scoreGenerator{scores: []float64{10, 30, 20, 30, 5}}),
	)
	handler := app.GetHTTPServer().Handler

	rr := get(t, handler, "/api/users?sort_by=score&sort_order=asc&limit=3")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Equal(t, []any{float64(5), float64(1), float64(3)}, gjson.Get(body, "items.#.id").Value())
	assert.Equal(t, int64(5), gjson.Get(body, "total").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "total_expected").Int())
	assert.True(t, gjson.Get(body, "complete").Bool())

	rr = get(t, handler, "/health")
	assert.Equal(t, "ready", gjson.Get(rr.Body.String(), "status").String())

	rr = get(t, handler, "/api/users/4")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 30.0, gjson.Get(rr.Body.String(), "score").Float(), 0.001)
}

func TestNewUsersApp_StrictParameters(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(10)
	cfg.Query.ParamPolicy = config.ParamPolicyStrict
	cfg.Query.MaxLimit = 5
	cfg.Query.DefaultLimit = 5

	app := newTestApp(t, WithConfig(cfg))
	handler := app.GetHTTPServer().Handler

	rr := get(t, handler, "/api/users?limit=6")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, app.components.Dataset.Runs(), "a rejected request must not start generation")

	rr = get(t, handler, "/api/users?sort_by=height")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, gjson.Get(rr.Body.String(), "error").String(), "sort_by")
}

func TestNewUsersApp_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(10)
	cfg.Telemetry = &telemetry.Config{
		Enabled: true,
		Metrics: &telemetry.MetricsConfig{Enabled: true, Exporters: []string{telemetry.ExporterPrometheus}},
	}

	app := newTestApp(t, WithConfig(cfg))
	t.Cleanup(func() { _ = app.components.Telemetry.Shutdown(context.Background()) })
	handler := app.GetHTTPServer().Handler

	rr := get(t, handler, "/api/users/count")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":10}`, rr.Body.String())

	rr = get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "users_api_http_requests_total")
	assert.Contains(t, body, "users_api_dataset_size")
	assert.Contains(t, body, "users_api_dataset_pending_records")
	assert.Contains(t, body, "users_api_dataset_complete")
}

// recordingTelemetry wraps telemetry.New and keeps the instance it built
func recordingTelemetry(created **telemetry.Telemetry) UsersAppOptions {
	return func(cfg *usersAppConfig) error {
		cfg.newTelemetry = func(ctx context.Context, opts ...telemetry.Option) (*telemetry.Telemetry, error) {
			tel, err := telemetry.New(ctx, opts...)
			*created = tel
			return tel, err
		}
		return nil
	}
}

func tracingConfig(size int) *config.Config {
	cfg := createTestConfig(size)
	cfg.Telemetry = &telemetry.Config{
		Enabled:  true,
		Insecure: true,
		Tracing:  &telemetry.TracingConfig{Enabled: true, Sampling: 1},
	}
	return cfg
}

func TestNewUsersApp_FailureShutsDownOwnedTelemetry(t *testing.T) {
	t.Parallel()

	var created *telemetry.Telemetry
	_, err := NewUsersApp(context.Background(),
		WithConfig(tracingConfig(10)),
		recordingTelemetry(&created),
		WithDatasetOptions(dataset.WithPolicy("sometimes")),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build dataset")
	require.NotNil(t, created)

	// A shut down SDK provider hands out non-recording spans
	_, span := created.Tracer("users-test").Start(context.Background(), "after-failure")
	assert.False(t, span.IsRecording())
}

func TestNewUsersApp_FailureKeepsInjectedTelemetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := tracingConfig(10)
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	_, err = NewUsersApp(ctx,
		WithConfig(cfg),
		WithTelemetry(tel),
		WithDatasetOptions(dataset.WithPolicy("sometimes")),
	)
	require.Error(t, err)

	// The span is never ended so nothing is exported on cleanup
	_, span := tel.Tracer("users-test").Start(ctx, "after-failure")
	assert.True(t, span.IsRecording())
}

func TestBuildHTTPServer(t *testing.T) {
	t.Parallel()

	tel, err := telemetry.New(context.Background())
	require.NoError(t, err)

	b, err := baseConfig(WithConfig(createTestConfig(10)), WithAddress("127.0.0.1:0"), WithTelemetry(tel))
	require.NoError(t, err)

	server, err := buildHTTPServer(context.Background(), b, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", server.Addr)
	assert.Equal(t, defaultReadTimeout, server.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, server.WriteTimeout)
	assert.Equal(t, defaultIdleTimeout, server.IdleTimeout)
	// tracing + metrics + the five defaults
	assert.Len(t, b.middlewares, 7)
}
