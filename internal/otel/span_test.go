package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpan(t *testing.T, fn func(ctx context.Context, tracer trace.Tracer)) tracetest.SpanStub {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	fn(context.Background(), tp.Tracer("users-test"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func attrs(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartSpan_NilTracerKeepsParent(t *testing.T) {
	t.Parallel()

	span := recordSpan(t, func(ctx context.Context, tracer trace.Tracer) {
		ctx, parent := tracer.Start(ctx, "GET /api/users")
		childCtx, child := StartSpan(ctx, nil, "UserService.ListUsers")

		assert.Equal(t, parent.SpanContext(), child.SpanContext())
		assert.Equal(t, ctx, childCtx)
		parent.End()
	})
	assert.Equal(t, "GET /api/users", span.Name)

	_, orphan := StartSpan(context.Background(), nil, "UserService.GetUser")
	assert.False(t, orphan.SpanContext().IsValid())
	assert.NotPanics(t, func() { orphan.End() })
}

func TestListUsersSpanAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		page        int
		limit       int
		search      bool
		sortBy      string
		returned    int
		matched     int
		scanned     int
		wantSortBy  string
		wantPartial bool
	}{
		{
			name: "search over a partial dataset", page: 2, limit: 30, search: true,
			returned: 30, matched: 120, scanned: 500,
			wantSortBy: "none", wantPartial: true,
		},
		{
			name: "sorted page over the complete dataset", page: 1, limit: 3, sortBy: "score",
			returned: 3, matched: 1000, scanned: 1000,
			wantSortBy: "score",
		},
		{
			name: "page past the end", page: 99, limit: 10,
			returned: 0, matched: 1000, scanned: 1000,
			wantSortBy: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			span := recordSpan(t, func(ctx context.Context, tracer trace.Tracer) {
				_, s := StartSpan(ctx, tracer, "UserService.ListUsers",
					trace.WithAttributes(QueryAttributes(tt.page, tt.limit, tt.search, tt.sortBy, "asc")...))
				s.SetAttributes(ResultAttributes(tt.returned, tt.matched, tt.scanned, 1000)...)
				s.End()
			})

			got := attrs(span)
			assert.Equal(t, int64(tt.page), got[AttrPage].AsInt64())
			assert.Equal(t, int64(tt.limit), got[AttrPageSize].AsInt64())
			assert.Equal(t, tt.search, got[AttrHasSearch].AsBool())
			assert.Equal(t, tt.wantSortBy, got[AttrSortBy].AsString())
			assert.Equal(t, "asc", got[AttrSortOrder].AsString())
			assert.Equal(t, int64(tt.returned), got[AttrResultCount].AsInt64())
			assert.Equal(t, int64(tt.matched), got[AttrMatchedCount].AsInt64())
			assert.Equal(t, int64(tt.scanned), got[AttrDatasetFilled].AsInt64())
			assert.Equal(t, tt.wantPartial, got[AttrDatasetPartial].AsBool())
			assert.Equal(t, codes.Unset, span.Status.Code)
		})
	}
}

func TestRecordErrorAndRejection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		record     func(trace.Span, error)
		err        error
		wantStatus codes.Code
		wantEvent  string
	}{
		{name: "scan slot unavailable", record: RecordError, err: errors.New("too many concurrent scans"),
			wantStatus: codes.Error, wantEvent: "exception"},
		{name: "invalid limit", record: RecordRejection, err: errors.New("invalid limit: must be between 1 and 1000"),
			wantStatus: codes.Unset, wantEvent: EventRejected},
		{name: "nil error is ignored", record: RecordError, wantStatus: codes.Unset},
		{name: "nil rejection is ignored", record: RecordRejection, wantStatus: codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			span := recordSpan(t, func(ctx context.Context, tracer trace.Tracer) {
				_, s := tracer.Start(ctx, "UserService.ListUsers")
				tt.record(s, tt.err)
				s.End()
			})

			assert.Equal(t, tt.wantStatus, span.Status.Code)
			if tt.wantEvent == "" {
				assert.Empty(t, span.Events)
				return
			}
			require.Len(t, span.Events, 1)
			assert.Equal(t, tt.wantEvent, span.Events[0].Name)
			if tt.wantStatus == codes.Error {
				assert.Equal(t, "operation failed", span.Status.Description)
			}
		})
	}

	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("boom"))
		RecordRejection(nil, errors.New("boom"))
	})
}
