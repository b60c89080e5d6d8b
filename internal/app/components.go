package app

import (
	"github.com/stacklok/synthetic-users-api/internal/dataset"
	"github.com/stacklok/synthetic-users-api/internal/service"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Dataset owns the generated users
	Dataset *dataset.Store

	// UserService provides the query logic
	UserService service.UserService

	// Telemetry holds the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
