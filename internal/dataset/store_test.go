package dataset

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

// countingGenerator records how often each id was generated
type countingGenerator struct {
	calls atomic.Int64
	seen  sync.Map
}

func (g *countingGenerator) Generate(id int64) record.Record {
	g.calls.Add(1)
	if prev, loaded := g.seen.LoadOrStore(id, 1); loaded {
		g.seen.Store(id, prev.(int)+1)
	}
	return record.Record{ID: id, Name: "user", Phone: "+10000000000", Email: "user@example.com"}
}

// gatedGenerator blocks before generating ids above release until the gate opens
type gatedGenerator struct {
	release int64
	gate    chan struct{}
	reached chan struct{}
	once    sync.Once
}

func newGatedGenerator(release int64) *gatedGenerator {
	return &gatedGenerator{
		release: release,
		gate:    make(chan struct{}),
		reached: make(chan struct{}),
	}
}

func (g *gatedGenerator) Generate(id int64) record.Record {
	if id > g.release {
		g.once.Do(func() { close(g.reached) })
		<-g.gate
	}
	return record.Record{ID: id}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		gen           Generator
		size          int
		opts          []Option
		errorContains string
	}{
		{name: "valid store", gen: &countingGenerator{}, size: 10},
		{name: "nil generator", gen: nil, size: 10, errorContains: "generator is required"},
		{name: "zero size", gen: &countingGenerator{}, size: 0, errorContains: "invalid dataset size"},
		{name: "negative size", gen: &countingGenerator{}, size: -5, errorContains: "invalid dataset size"},
		{
			name:          "unknown policy",
			gen:           &countingGenerator{},
			size:          10,
			opts:          []Option{WithPolicy("eventually")},
			errorContains: "unknown generation policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, err := New(tt.gen, tt.size, tt.opts...)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, store)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, StateNotStarted, store.State())
			assert.Equal(t, tt.size, store.Size())
			assert.Equal(t, 0, store.Generated())
			assert.Empty(t, store.CurrentView())
			assert.Equal(t, PolicyBackground, store.Policy())
		})
	}
}

func TestStore_EnsureGeneration_ExactlyOnce(t *testing.T) {
	t.Parallel()

	for _, policy := range []Policy{PolicyBackground, PolicyBlocking} {
		t.Run(string(policy), func(t *testing.T) {
			t.Parallel()

			const size = 10_000
			const callers = 32

			gen := &countingGenerator{}
			store, err := New(gen, size, WithPolicy(policy), WithChunkSize(1000))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			var wg sync.WaitGroup
			start := make(chan struct{})
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					assert.NoError(t, store.EnsureGeneration(context.Background()))
				}()
			}
			close(start)
			wg.Wait()

			select {
			case <-store.Done():
			case <-time.After(10 * time.Second):
				t.Fatal("generation did not complete")
			}

			assert.Equal(t, int64(1), store.Runs())
			assert.Equal(t, int64(size), gen.calls.Load())
			assert.Equal(t, size, store.Generated())
			assert.Len(t, store.CurrentView(), size)
			assert.True(t, store.IsComplete())

			gen.seen.Range(func(_, v any) bool {
				assert.Equal(t, 1, v.(int))
				return true
			})

			// Later calls are no-ops
			require.NoError(t, store.EnsureGeneration(context.Background()))
			assert.Equal(t, int64(1), store.Runs())
		})
	}
}

func TestStore_BlockingPolicyWaitsForCompletion(t *testing.T) {
	t.Parallel()

	store, err := New(&countingGenerator{}, 5000, WithPolicy(PolicyBlocking), WithChunkSize(100))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureGeneration(context.Background()))
	assert.True(t, store.IsComplete())
	assert.Equal(t, 5000, store.Generated())
}

func TestStore_BlockingPolicyHonoursContext(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator(10)
	store, err := New(gen, 100, WithPolicy(PolicyBlocking), WithChunkSize(5))
	require.NoError(t, err)
	t.Cleanup(func() {
		close(gen.gate)
		_ = store.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = store.EnsureGeneration(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateInProgress, store.State())
}

func TestStore_PartialViewDuringGeneration(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator(20)
	store, err := New(gen, 100, WithChunkSize(10))
	require.NoError(t, err)

	require.NoError(t, store.EnsureGeneration(context.Background()))
	<-gen.reached

	view := store.CurrentView()
	assert.Len(t, view, 20)
	for i, rec := range view {
		assert.Equal(t, int64(i+1), rec.ID)
	}
	assert.Equal(t, StateInProgress, store.State())
	assert.False(t, store.IsComplete())

	_, ok := store.Get(21)
	assert.False(t, ok)
	rec, ok := store.Get(20)
	require.True(t, ok)
	assert.Equal(t, int64(20), rec.ID)

	close(gen.gate)
	<-store.Done()
	assert.Len(t, store.CurrentView(), 100)
	require.NoError(t, store.Close())
}

func TestStore_StopRollsBackAndResumes(t *testing.T) {
	t.Parallel()

	gen := newGatedGenerator(30)
	store, err := New(gen, 100, WithChunkSize(10))
	require.NoError(t, err)

	require.NoError(t, store.EnsureGeneration(context.Background()))
	<-gen.reached

	// Cancel while the run is parked inside chunk [30, 40), then let that chunk finish
	exited := store.interrupt()
	require.NotNil(t, exited)
	close(gen.gate)
	<-exited

	assert.Equal(t, StateNotStarted, store.State())
	assert.Equal(t, 40, store.Generated())
	assert.Equal(t, int64(1), store.Runs())
	store.Stop()

	// The published prefix survives the interruption
	for i, rec := range store.CurrentView() {
		assert.Equal(t, int64(i+1), rec.ID)
	}

	require.NoError(t, store.EnsureGeneration(context.Background()))
	<-store.Done()
	assert.Equal(t, int64(2), store.Runs())
	assert.Equal(t, 100, store.Generated())
	for i, rec := range store.CurrentView() {
		require.Equal(t, int64(i+1), rec.ID)
	}
	require.NoError(t, store.Close())
}

func TestStore_StopWhileCallersRace(t *testing.T) {
	t.Parallel()

	store, err := New(&countingGenerator{}, 20_000, WithChunkSize(100))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = store.EnsureGeneration(context.Background())
				view := store.CurrentView()
				if n := len(view); n > 0 && view[n-1].ID != int64(n) {
					t.Errorf("slot %d holds id %d", n, view[n-1].ID)
					return
				}
			}
		}()
	}

	for range 5 {
		store.Stop()
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	require.NoError(t, store.EnsureGeneration(context.Background()))
	select {
	case <-store.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("dataset did not complete after the racing stops")
	}
	assert.Equal(t, 20_000, store.Generated())
	assert.GreaterOrEqual(t, store.Runs(), int64(1))
	for i, rec := range store.CurrentView() {
		require.Equal(t, int64(i+1), rec.ID)
	}
	require.NoError(t, store.Close())
}

func TestStore_StopBeforeAnyRun(t *testing.T) {
	t.Parallel()

	store, err := New(&countingGenerator{}, 10)
	require.NoError(t, err)

	assert.Nil(t, store.interrupt())
	store.Stop()
	assert.Equal(t, StateNotStarted, store.State())
	assert.Equal(t, int64(0), store.Runs())
}

func TestStore_Close(t *testing.T) {
	t.Parallel()

	store, err := New(&countingGenerator{}, 10)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.EnsureGeneration(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int64(0), store.Runs())
}

func TestStore_CurrentViewIsCapped(t *testing.T) {
	t.Parallel()

	store, err := New(&countingGenerator{}, 10, WithPolicy(PolicyBlocking))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureGeneration(context.Background()))

	view := store.CurrentView()
	assert.Equal(t, len(view), cap(view))
}

func TestStore_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := telemetry.NewDatasetMetrics(mp)
	require.NoError(t, err)

	store, err := New(&countingGenerator{}, 250, WithPolicy(PolicyBlocking), WithChunkSize(100), WithMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureGeneration(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != telemetry.DatasetMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = true
			if gauge, ok := m.Data.(metricdata.Gauge[int64]); ok {
				require.NotEmpty(t, gauge.DataPoints)
				assert.Equal(t, int64(250), gauge.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["users_api_dataset_records_generated"])
	assert.True(t, found["users_api_dataset_generation_duration_seconds"])
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NotStarted", StateNotStarted.String())
	assert.Equal(t, "InProgress", StateInProgress.String())
	assert.Equal(t, "Complete", StateComplete.String())
	assert.Equal(t, "State(9)", State(9).String())
}
