package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/synthetic-users-api/internal/api/common"
	"github.com/stacklok/synthetic-users-api/internal/service"
	"github.com/stacklok/synthetic-users-api/internal/versions"
)

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.UserService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler(svc))
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests. It always answers 200 and
// reports generation progress.
//
// @Summary		Health check
// @Description	Report dataset generation status
// @Tags			system
// @Produce		json
// @Success		200	{object}	HealthResponse
// @Router			/health [get]
func healthHandler(svc service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := svc.Readiness(r.Context())
		common.WriteJSONResponse(w, HealthResponse{
			Status:        string(readiness.Status),
			TotalExpected: readiness.TotalExpected,
			Generated:     readiness.Generated,
		}, http.StatusOK)
	}
}

// readinessHandler handles readiness check requests
//
// @Summary		Readiness check
// @Description	Check whether every user has been generated
// @Tags			system
// @Produce		json
// @Success		200	{object}	ReadinessResponse
// @Failure		503	{object}	common.ErrorResponse
// @Router			/readiness [get]
func readinessHandler(svc service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			slog.Debug("Readiness check failed", "error", err)
			common.WriteErrorResponse(w, "UserService not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}

		common.WriteJSONResponse(w, ReadinessResponse{Status: string(service.StatusReady)}, http.StatusOK)
	}
}

// versionHandler handles version information requests
//
// @Summary		Version information
// @Description	Get version information about the users API
// @Tags			system
// @Produce		json
// @Success		200	{object}	versions.VersionInfo
// @Router			/version [get]
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
