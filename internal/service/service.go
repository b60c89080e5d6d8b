// Package service provides the business logic for the synthetic users API
package service

import (
	"context"
	"errors"

	"github.com/stacklok/synthetic-users-api/internal/record"
)

var (
	// ErrUserNotFound is returned when a user id is outside the populated dataset
	ErrUserNotFound = errors.New("user not found")
	// ErrNotReady is returned by CheckReadiness while the dataset is still being generated
	ErrNotReady = errors.New("dataset generation in progress")
	// ErrBusy is returned when no scan slot became free before the request ended
	ErrBusy = errors.New("too many concurrent scans")
)

// ReadinessStatus is the externally visible generation status
type ReadinessStatus string

const (
	// StatusGenerating is reported until every record exists
	StatusGenerating ReadinessStatus = "generating"
	// StatusReady is reported once generation completed
	StatusReady ReadinessStatus = "ready"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go UserService

// UserService defines the interface for user queries
type UserService interface {
	// CheckReadiness returns ErrNotReady until the dataset is complete
	CheckReadiness(ctx context.Context) error

	// Readiness returns the generation status of the dataset
	Readiness(ctx context.Context) Readiness

	// Count returns the configured dataset size regardless of generation progress
	Count(ctx context.Context) int

	// ListUsers returns one page of users matching the options
	ListUsers(ctx context.Context, opts ...Option) (*ListUsersResult, error)

	// GetUser returns a single user by id
	GetUser(ctx context.Context, id int64) (*record.Record, error)
}

// Readiness describes how far dataset generation has progressed
type Readiness struct {
	Status        ReadinessStatus
	TotalExpected int
	Generated     int
}

// ListUsersResult is one page of users
type ListUsersResult struct {
	Page          int
	Limit         int
	Total         int
	TotalExpected int
	Complete      bool
	Items         []record.Record
}
