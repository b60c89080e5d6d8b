// Package telemetry provides OpenTelemetry instrumentation for the users API server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DatasetMetricsMeterName is the name used for the dataset metrics meter
	DatasetMetricsMeterName = "github.com/stacklok/synthetic-users-api/dataset"

	// QueryMetricsMeterName is the name used for the query metrics meter
	QueryMetricsMeterName = "github.com/stacklok/synthetic-users-api/query"
)

// DatasetMetrics holds the OpenTelemetry instruments for dataset generation
type DatasetMetrics struct {
	recordsGenerated   metric.Int64Gauge
	generationDuration metric.Float64Histogram
}

// NewDatasetMetrics creates a new DatasetMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewDatasetMetrics(provider metric.MeterProvider) (*DatasetMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DatasetMetricsMeterName)

	recordsGenerated, err := meter.Int64Gauge(
		"users_api_dataset_records_generated",
		metric.WithDescription("Number of dataset slots populated so far"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"users_api_dataset_generation_duration_seconds",
		metric.WithDescription("Duration of dataset generation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &DatasetMetrics{
		recordsGenerated:   recordsGenerated,
		generationDuration: generationDuration,
	}, nil
}

// RecordGenerated records the current number of populated slots
func (m *DatasetMetrics) RecordGenerated(ctx context.Context, count int64) {
	if m == nil || m.recordsGenerated == nil {
		return
	}

	m.recordsGenerated.Record(ctx, count)
}

// RecordGenerationDuration records how long a generation run took and whether it completed
func (m *DatasetMetrics) RecordGenerationDuration(ctx context.Context, duration time.Duration, completed bool) {
	if m == nil || m.generationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("completed", completed),
	}

	m.generationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// QueryMetrics holds the OpenTelemetry instruments for list queries
type QueryMetrics struct {
	queryDuration  metric.Float64Histogram
	matchedRecords metric.Int64Histogram
}

// NewQueryMetrics creates a new QueryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewQueryMetrics(provider metric.MeterProvider) (*QueryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(QueryMetricsMeterName)

	queryDuration, err := meter.Float64Histogram(
		"users_api_query_duration_seconds",
		metric.WithDescription("Duration of filter, sort and paginate passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	matchedRecords, err := meter.Int64Histogram(
		"users_api_query_matched_records",
		metric.WithDescription("Number of records matching a query before pagination"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(0, 1, 10, 100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		return nil, err
	}

	return &QueryMetrics{
		queryDuration:  queryDuration,
		matchedRecords: matchedRecords,
	}, nil
}

// RecordQuery records the duration and match count of one query
func (m *QueryMetrics) RecordQuery(ctx context.Context, duration time.Duration, searched bool, sortBy string, matched int) {
	if m == nil || m.queryDuration == nil {
		return
	}

	if sortBy == "" {
		sortBy = "none"
	}

	attrs := metric.WithAttributes(
		attribute.Bool("search", searched),
		attribute.String("sort_by", sortBy),
	)

	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
	m.matchedRecords.Record(ctx, int64(matched), attrs)
}
