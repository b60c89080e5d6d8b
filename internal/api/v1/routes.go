// Package v1 provides the users API endpoints.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/synthetic-users-api/internal/api/common"
	"github.com/stacklok/synthetic-users-api/internal/query"
	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/service"
)

// Routes handles HTTP requests for the users endpoints.
type Routes struct {
	service service.UserService
	params  paramParser
}

// RouterOption configures the users routes
type RouterOption func(*Routes)

// WithParamPolicy sets how malformed list parameters are treated
func WithParamPolicy(policy ParamPolicy) RouterOption {
	return func(r *Routes) {
		r.params.policy = policy
	}
}

// WithMaxLimit sets the largest page size accepted from clients.
// It must match the service's bound.
func WithMaxLimit(limit int) RouterOption {
	return func(r *Routes) {
		r.params.maxLimit = limit
	}
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc service.UserService, opts ...RouterOption) *Routes {
	routes := &Routes{
		service: svc,
		params: paramParser{
			policy:   ParamPolicyPermissive,
			maxLimit: query.DefaultMaxLimit,
		},
	}
	for _, opt := range opts {
		opt(routes)
	}
	return routes
}

// Router creates and configures the HTTP router for the users endpoints.
func Router(svc service.UserService, opts ...RouterOption) http.Handler {
	routes := NewRoutes(svc, opts...)

	r := chi.NewRouter()

	r.Get("/users", routes.listUsers)
	r.Get("/users/count", routes.countUsers)
	r.Get("/users/{id}", routes.getUser)

	return r
}

// listUsers handles GET /api/users
//
// @Summary		List users
// @Description	Get one page of users, optionally filtered and sorted
// @Tags		users
// @Produce		json
// @Param		page		query	int		false	"1-based page number"	default(1)
// @Param		limit		query	int		false	"Page size"	default(30)
// @Param		search		query	string	false	"Case-insensitive substring of name, email or phone"
// @Param		sort_by		query	string	false	"Sort key"	Enums(id,score,lastActivityAt,name,email,phone,addedBy)
// @Param		sort_order	query	string	false	"Sort direction"	Enums(asc,desc)	default(asc)
// @Success		200	{object}	ListUsersResponse
// @Failure		400	{object}	common.ErrorResponse
// @Failure		503	{object}	common.ErrorResponse
// @Router		/api/users [get]
func (routes *Routes) listUsers(w http.ResponseWriter, r *http.Request) {
	opts, err := routes.params.parse(r.URL.Query())
	if err != nil {
		writeServiceError(w, err, "Failed to list users")
		return
	}

	result, err := routes.service.ListUsers(r.Context(), opts...)
	if err != nil {
		writeServiceError(w, err, "Failed to list users")
		return
	}

	items := result.Items
	if items == nil {
		items = []record.Record{}
	}

	common.WriteJSONResponse(w, ListUsersResponse{
		Page:          result.Page,
		Limit:         result.Limit,
		Total:         result.Total,
		TotalExpected: result.TotalExpected,
		Complete:      result.Complete,
		Items:         items,
	}, http.StatusOK)
}

// countUsers handles GET /api/users/count
//
// @Summary		Count users
// @Description	Get the configured dataset size, independent of generation progress
// @Tags		users
// @Produce		json
// @Success		200	{object}	CountResponse
// @Router		/api/users/count [get]
func (routes *Routes) countUsers(w http.ResponseWriter, r *http.Request) {
	common.WriteJSONResponse(w, CountResponse{Total: routes.service.Count(r.Context())}, http.StatusOK)
}

// getUser handles GET /api/users/{id}
//
// @Summary		Get user
// @Description	Get a single user by id
// @Tags		users
// @Produce		json
// @Param		id	path	int	true	"User id"
// @Success		200	{object}	record.Record
// @Failure		400	{object}	common.ErrorResponse
// @Failure		404	{object}	common.ErrorResponse
// @Router		/api/users/{id} [get]
func (routes *Routes) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetIDURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := routes.service.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get user")
		return
	}

	common.WriteJSONResponse(w, user, http.StatusOK)
}

// writeServiceError maps service errors to status codes. Unknown errors are
// logged and reported with the generic message.
func writeServiceError(w http.ResponseWriter, err error, message string) {
	var validationErr *query.ValidationError
	switch {
	case errors.As(err, &validationErr):
		common.WriteErrorResponse(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrUserNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrBusy):
		w.Header().Set("Retry-After", "1")
		common.WriteErrorResponse(w, service.ErrBusy.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error(message, "error", err)
		common.WriteErrorResponse(w, message, http.StatusInternalServerError)
	}
}
