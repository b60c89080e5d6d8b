// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetIDURLParam extracts a positive integer id from the named URL parameter.
// Validation rules:
// - Must not be empty after trimming whitespace
// - Must be a base-10 integer of at least 1
func GetIDURLParam(r *http.Request, paramName string) (int64, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return 0, fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	if strings.TrimSpace(decoded) == "" {
		return 0, fmt.Errorf("%s cannot be empty", paramName)
	}

	id, err := strconv.ParseInt(decoded, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", paramName)
	}
	if id < 1 {
		return 0, fmt.Errorf("%s must be at least 1", paramName)
	}

	return id, nil
}
