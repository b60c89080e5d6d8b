package v1

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stacklok/synthetic-users-api/internal/query"
	"github.com/stacklok/synthetic-users-api/internal/service"
)

// ParamPolicy decides what happens to malformed list parameters
type ParamPolicy string

const (
	// ParamPolicyPermissive drops malformed parameters so the service defaults apply
	ParamPolicyPermissive ParamPolicy = "permissive"
	// ParamPolicyStrict rejects malformed parameters with 400
	ParamPolicyStrict ParamPolicy = "strict"
)

// paramParser turns list query parameters into service options.
// Every parameter goes through the same policy.
type paramParser struct {
	policy   ParamPolicy
	maxLimit int
}

func (p paramParser) parse(values url.Values) ([]service.Option, error) {
	var opts []service.Option

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			if err := p.reject("page", "must be an integer"); err != nil {
				return nil, err
			}
		case page < 1:
			if err := p.reject("page", fmt.Sprintf("must be at least 1, got %d", page)); err != nil {
				return nil, err
			}
		default:
			opts = append(opts, service.WithPage(page))
		}
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			if err := p.reject("limit", "must be an integer"); err != nil {
				return nil, err
			}
		case limit < 1 || limit > p.maxLimit:
			msg := fmt.Sprintf("must be between 1 and %d, got %d", p.maxLimit, limit)
			if err := p.reject("limit", msg); err != nil {
				return nil, err
			}
		default:
			opts = append(opts, service.WithLimit(limit))
		}
	}

	if search := values.Get("search"); search != "" {
		opts = append(opts, service.WithSearch(search))
	}

	if raw := values.Get("sort_by"); raw != "" {
		key, err := query.ParseSortKey(raw)
		if err != nil {
			if p.policy == ParamPolicyStrict {
				return nil, err
			}
		} else {
			opts = append(opts, service.WithSortBy(key))
		}
	}

	if raw := values.Get("sort_order"); raw != "" {
		dir, err := query.ParseDirection(strings.TrimSpace(raw))
		if err != nil {
			if p.policy == ParamPolicyStrict {
				return nil, err
			}
		} else {
			opts = append(opts, service.WithSortOrder(dir))
		}
	}

	return opts, nil
}

// reject returns the validation error under the strict policy and nil otherwise
func (p paramParser) reject(field, msg string) error {
	if p.policy != ParamPolicyStrict {
		return nil
	}
	return &query.ValidationError{Field: field, Message: msg}
}
