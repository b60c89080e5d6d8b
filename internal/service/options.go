package service

import (
	"fmt"

	"github.com/stacklok/synthetic-users-api/internal/query"
)

// Option is a function that sets an option for the ListUsers operation
type Option func(*ListUsersOptions) error

// ListUsersOptions is the options for the ListUsers operation.
// Zero values are replaced by the service defaults.
type ListUsersOptions struct {
	Page   int
	Limit  int
	Search string
	SortBy query.SortKey
	Order  query.Direction
}

// WithPage sets the 1-based page number
func WithPage(page int) Option {
	return func(o *ListUsersOptions) error {
		if page < 1 {
			return &query.ValidationError{Field: "page", Message: fmt.Sprintf("must be at least 1, got %d", page)}
		}
		o.Page = page
		return nil
	}
}

// WithLimit sets the page size. The upper bound is checked by the service.
func WithLimit(limit int) Option {
	return func(o *ListUsersOptions) error {
		if limit < 1 {
			return &query.ValidationError{Field: "limit", Message: fmt.Sprintf("must be at least 1, got %d", limit)}
		}
		o.Limit = limit
		return nil
	}
}

// WithSearch sets the case-insensitive search text
func WithSearch(search string) Option {
	return func(o *ListUsersOptions) error {
		o.Search = search
		return nil
	}
}

// WithSortBy sets the sort key
func WithSortBy(key query.SortKey) Option {
	return func(o *ListUsersOptions) error {
		if _, err := query.ParseSortKey(string(key)); err != nil {
			return err
		}
		o.SortBy = key
		return nil
	}
}

// WithSortOrder sets the sort direction
func WithSortOrder(dir query.Direction) Option {
	return func(o *ListUsersOptions) error {
		parsed, err := query.ParseDirection(string(dir))
		if err != nil {
			return err
		}
		o.Order = parsed
		return nil
	}
}
