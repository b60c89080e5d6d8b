// Package otel provides the span helpers and attribute keys used by the user service.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on user service spans
const (
	AttrUserID         = attribute.Key("user.id")
	AttrPage           = attribute.Key("pagination.page")
	AttrPageSize       = attribute.Key("pagination.limit")
	AttrHasSearch      = attribute.Key("query.has_search")
	AttrSortBy         = attribute.Key("query.sort_by")
	AttrSortOrder      = attribute.Key("query.sort_order")
	AttrResultCount    = attribute.Key("result.count")
	AttrMatchedCount   = attribute.Key("result.matched")
	AttrDatasetFilled  = attribute.Key("dataset.generated")
	AttrDatasetPartial = attribute.Key("dataset.partial")
	AttrRejectReason   = attribute.Key("rejection.reason")
)

// EventRejected is added to a span when the request input was refused
const EventRejected = "request.rejected"

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// QueryAttributes describes a list request once defaults are applied.
// An empty sortBy is reported as "none".
func QueryAttributes(page, limit int, search bool, sortBy, order string) []attribute.KeyValue {
	if sortBy == "" {
		sortBy = "none"
	}
	return []attribute.KeyValue{
		AttrPage.Int(page),
		AttrPageSize.Int(limit),
		AttrHasSearch.Bool(search),
		AttrSortBy.String(sortBy),
		AttrSortOrder.String(order),
	}
}

// ResultAttributes describes a served page: how many records it holds, how many matched,
// and how much of the expected dataset the query could see.
func ResultAttributes(returned, matched, scanned, expected int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrResultCount.Int(returned),
		AttrMatchedCount.Int(matched),
		AttrDatasetFilled.Int(scanned),
		AttrDatasetPartial.Bool(scanned < expected),
	}
}

// RecordError marks the span failed. The status description stays generic and the
// error itself is attached as an exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// RecordRejection notes a request refused because of its input.
// The status stays Unset, matching how 4xx responses are traced.
func RecordRejection(span trace.Span, err error) {
	if err != nil && span != nil {
		span.AddEvent(EventRejected, trace.WithAttributes(AttrRejectReason.String(err.Error())))
	}
}
