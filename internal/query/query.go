// Package query filters, sorts and paginates a read-only view of user records.
package query

import (
	"fmt"
	"strings"
)

const (
	// DefaultPage is the first page
	DefaultPage = 1
	// DefaultLimit is the page size used when none is given
	DefaultLimit = 30
	// DefaultMaxLimit is the largest page size accepted when none is configured
	DefaultMaxLimit = 1000
)

// SortKey names the record field a result is ordered by
type SortKey string

// Supported sort keys. SortNone leaves results in id order.
const (
	SortNone           SortKey = ""
	SortID             SortKey = "id"
	SortScore          SortKey = "score"
	SortLastActivityAt SortKey = "lastActivityAt"
	SortName           SortKey = "name"
	SortEmail          SortKey = "email"
	SortPhone          SortKey = "phone"
	SortAddedBy        SortKey = "addedBy"
)

var sortKeys = []SortKey{
	SortID, SortScore, SortLastActivityAt, SortName, SortEmail, SortPhone, SortAddedBy,
}

// Direction is the sort direction
type Direction string

// Supported directions
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ValidationError describes a query parameter that cannot be served
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseSortKey matches s against the supported sort keys. The empty string is SortNone.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortNone, nil
	}
	for _, k := range sortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return SortNone, &ValidationError{
		Field:   "sort_by",
		Message: fmt.Sprintf("unsupported sort key %q, expected one of %s", s, SortKeyNames()),
	}
}

// SortKeyNames returns the supported sort keys as a comma separated list
func SortKeyNames() string {
	names := make([]string, len(sortKeys))
	for i, k := range sortKeys {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// ParseDirection parses asc or desc, case-insensitively. The empty string is Asc.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", string(Asc):
		return Asc, nil
	case string(Desc):
		return Desc, nil
	default:
		return Asc, &ValidationError{
			Field:   "sort_order",
			Message: fmt.Sprintf("unsupported sort order %q, expected asc or desc", s),
		}
	}
}

// Query describes one list request
type Query struct {
	Page   int
	Limit  int
	Search string
	SortBy SortKey
	Order  Direction
}

// Validate checks the query against the page size bound
func (q Query) Validate(maxLimit int) error {
	if q.Page < 1 {
		return &ValidationError{Field: "page", Message: "must be at least 1"}
	}
	if q.Limit < 1 || q.Limit > maxLimit {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxLimit)}
	}
	if _, err := ParseSortKey(string(q.SortBy)); err != nil {
		return err
	}
	if _, err := ParseDirection(string(q.Order)); err != nil {
		return err
	}
	return nil
}

// NeedsScan reports whether executing the query touches every record in the view
func (q Query) NeedsScan() bool {
	return strings.TrimSpace(q.Search) != "" || q.SortBy != SortNone
}
