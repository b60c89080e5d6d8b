package v1

import (
	"github.com/stacklok/synthetic-users-api/internal/record"
)

// ListUsersResponse is the body of GET /api/users
type ListUsersResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	// Total counts the records matching the search among those generated so far
	Total int `json:"total"`
	// TotalExpected is the configured dataset size
	TotalExpected int             `json:"total_expected"`
	Complete      bool            `json:"complete"`
	Items         []record.Record `json:"items"`
}

// CountResponse is the body of GET /api/users/count
type CountResponse struct {
	Total int `json:"total"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string `json:"status" example:"generating"`
	TotalExpected int    `json:"total_expected" example:"1000000"`
	Generated     int    `json:"generated" example:"250000"`
}

// ReadinessResponse is the body of a successful GET /readiness
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
}
