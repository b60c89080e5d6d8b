// Package inmemory provides an in-memory implementation of the UserService interface
package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/stacklok/synthetic-users-api/internal/otel"
	"github.com/stacklok/synthetic-users-api/internal/query"
	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/service"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

// ServiceTracerName is the name used for the in-memory service tracer
const ServiceTracerName = "github.com/stacklok/synthetic-users-api/service/inmemory"

// DefaultMaxConcurrentScans bounds how many full scans run at once
const DefaultMaxConcurrentScans = 4

// Dataset is the read side of the record store the service queries
type Dataset interface {
	EnsureGeneration(ctx context.Context) error
	CurrentView() []record.Record
	Get(id int64) (record.Record, bool)
	IsComplete() bool
	Generated() int
	Size() int
}

// userSvc implements the UserService interface
type userSvc struct {
	dataset      Dataset
	defaultLimit int
	maxLimit     int
	scans        *semaphore.Weighted
	metrics      *telemetry.QueryMetrics
	tracer       trace.Tracer
}

var _ service.UserService = (*userSvc)(nil)

type options struct {
	defaultLimit int
	maxLimit     int
	maxScans     int64
	metrics      *telemetry.QueryMetrics
	tracer       trace.Tracer
}

// Option is a functional option for configuring the userSvc
type Option func(*options) error

// WithDefaultLimit sets the page size used when a request does not give one
func WithDefaultLimit(limit int) Option {
	return func(o *options) error {
		if limit <= 0 {
			return fmt.Errorf("default limit must be greater than zero, got %d", limit)
		}
		o.defaultLimit = limit
		return nil
	}
}

// WithMaxLimit sets the largest page size accepted
func WithMaxLimit(limit int) Option {
	return func(o *options) error {
		if limit <= 0 {
			return fmt.Errorf("max limit must be greater than zero, got %d", limit)
		}
		o.maxLimit = limit
		return nil
	}
}

// WithMaxConcurrentScans bounds how many search or sort passes may run at once
func WithMaxConcurrentScans(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent scans must be greater than zero, got %d", n)
		}
		o.maxScans = int64(n)
		return nil
	}
}

// WithQueryMetrics sets the query metrics recorder. Nil disables query metrics.
func WithQueryMetrics(m *telemetry.QueryMetrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the service.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// New creates a new user service backed by the given dataset
func New(dataset Dataset, opts ...Option) (service.UserService, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset is required")
	}

	o := &options{
		defaultLimit: query.DefaultLimit,
		maxLimit:     query.DefaultMaxLimit,
		maxScans:     DefaultMaxConcurrentScans,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.defaultLimit > o.maxLimit {
		return nil, fmt.Errorf("default limit %d exceeds max limit %d", o.defaultLimit, o.maxLimit)
	}

	return &userSvc{
		dataset:      dataset,
		defaultLimit: o.defaultLimit,
		maxLimit:     o.maxLimit,
		scans:        semaphore.NewWeighted(o.maxScans),
		metrics:      o.metrics,
		tracer:       o.tracer,
	}, nil
}

// CheckReadiness returns ErrNotReady until the dataset is complete
func (s *userSvc) CheckReadiness(_ context.Context) error {
	if !s.dataset.IsComplete() {
		return service.ErrNotReady
	}
	return nil
}

// Readiness reports the generation progress
func (s *userSvc) Readiness(_ context.Context) service.Readiness {
	status := service.StatusGenerating
	if s.dataset.IsComplete() {
		status = service.StatusReady
	}
	return service.Readiness{
		Status:        status,
		TotalExpected: s.dataset.Size(),
		Generated:     s.dataset.Generated(),
	}
}

// Count returns the configured dataset size
func (s *userSvc) Count(_ context.Context) int {
	return s.dataset.Size()
}

// ListUsers ensures generation has started, then filters, sorts and paginates the populated records
func (s *userSvc) ListUsers(ctx context.Context, opts ...service.Option) (*service.ListUsersResult, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "UserService.ListUsers")
	defer span.End()

	listOpts := &service.ListUsersOptions{}
	for _, opt := range opts {
		if err := opt(listOpts); err != nil {
			otel.RecordRejection(span, err)
			return nil, err
		}
	}

	q := s.buildQuery(listOpts)
	if err := q.Validate(s.maxLimit); err != nil {
		otel.RecordRejection(span, err)
		return nil, err
	}

	searched := strings.TrimSpace(q.Search) != ""
	span.SetAttributes(otel.QueryAttributes(q.Page, q.Limit, searched, string(q.SortBy), string(q.Order))...)

	if err := s.dataset.EnsureGeneration(ctx); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to prepare dataset: %w", err)
	}

	if q.NeedsScan() {
		if err := s.scans.Acquire(ctx, 1); err != nil {
			err = fmt.Errorf("%w: %w", service.ErrBusy, err)
			otel.RecordError(span, err)
			return nil, err
		}
		defer s.scans.Release(1)
	}

	// Completeness is read before the view so a complete result is never reported for a partial view
	complete := s.dataset.IsComplete()
	view := s.dataset.CurrentView()

	start := time.Now()
	res := query.Execute(view, q)
	elapsed := time.Since(start)

	s.metrics.RecordQuery(ctx, elapsed, searched, string(q.SortBy), res.Total)
	span.SetAttributes(otel.ResultAttributes(len(res.Items), res.Total, len(view), s.dataset.Size())...)

	if elapsed > time.Second {
		slog.Debug("Slow user query",
			"search", searched,
			"sort_by", q.SortBy,
			"matched", res.Total,
			"scanned", len(view),
			"duration", elapsed)
	}

	return &service.ListUsersResult{
		Page:          q.Page,
		Limit:         q.Limit,
		Total:         res.Total,
		TotalExpected: s.dataset.Size(),
		Complete:      complete,
		Items:         res.Items,
	}, nil
}

// GetUser returns the user with the given id once its slot is populated
func (s *userSvc) GetUser(ctx context.Context, id int64) (*record.Record, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "UserService.GetUser",
		trace.WithAttributes(otel.AttrUserID.Int64(id)))
	defer span.End()

	if err := s.dataset.EnsureGeneration(ctx); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to prepare dataset: %w", err)
	}

	rec, ok := s.dataset.Get(id)
	if !ok {
		err := fmt.Errorf("%w: %d", service.ErrUserNotFound, id)
		otel.RecordRejection(span, err)
		return nil, err
	}
	return &rec, nil
}

func (s *userSvc) buildQuery(o *service.ListUsersOptions) query.Query {
	q := query.Query{
		Page:   o.Page,
		Limit:  o.Limit,
		Search: o.Search,
		SortBy: o.SortBy,
		Order:  o.Order,
	}
	if q.Page == 0 {
		q.Page = query.DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = s.defaultLimit
	}
	if q.Order == "" {
		q.Order = query.Asc
	}
	return q
}
