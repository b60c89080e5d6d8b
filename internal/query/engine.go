package query

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/stacklok/synthetic-users-api/internal/record"
)

// Result is one page of a query
type Result struct {
	Items []record.Record
	// Total is the number of records matching the query before pagination
	Total int
}

// Execute filters, sorts and paginates view. The view is never modified.
// Page and Limit below 1 are treated as 1.
func Execute(view []record.Record, q Query) Result {
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	if needle == "" && q.SortBy == SortNone {
		return Result{Items: page(view, q.Page, q.Limit), Total: len(view)}
	}

	matched := filter(view, needle)
	if q.SortBy != SortNone {
		sortRecords(matched, q.SortBy, q.Order)
	}

	start, end := bounds(len(matched), q.Page, q.Limit)
	items := make([]record.Record, 0, end-start)
	for _, r := range matched[start:end] {
		items = append(items, *r)
	}
	return Result{Items: items, Total: len(matched)}
}

// filter returns pointers to the records matching needle, in view order.
// An empty needle matches everything.
func filter(view []record.Record, needle string) []*record.Record {
	if needle == "" {
		out := make([]*record.Record, len(view))
		for i := range view {
			out[i] = &view[i]
		}
		return out
	}

	var out []*record.Record
	for i := range view {
		r := &view[i]
		if containsFold(r.Name, needle) || containsFold(r.Email, needle) || containsFold(r.Phone, needle) {
			out = append(out, r)
		}
	}
	return out
}

func page(view []record.Record, p, limit int) []record.Record {
	start, end := bounds(len(view), p, limit)
	items := make([]record.Record, end-start)
	copy(items, view[start:end])
	return items
}

// bounds returns the clamped [start, end) window of page p
func bounds(n, p, limit int) (int, int) {
	p = max(p, 1)
	limit = max(limit, 1)
	// Compare page indexes so (p-1)*limit is only computed when it fits in [0, n)
	if n == 0 || p-1 > (n-1)/limit {
		return n, n
	}
	start := (p - 1) * limit
	return start, min(start+limit, n)
}

// sortRecords stable-sorts recs in place by key. Text keys compare case-insensitively.
func sortRecords(recs []*record.Record, key SortKey, dir Direction) {
	sign := 1
	if dir == Desc {
		sign = -1
	}

	switch key {
	case SortID:
		slices.SortStableFunc(recs, func(a, b *record.Record) int {
			return sign * cmp.Compare(a.ID, b.ID)
		})
	case SortScore:
		slices.SortStableFunc(recs, func(a, b *record.Record) int {
			return sign * cmp.Compare(a.Score, b.Score)
		})
	case SortLastActivityAt:
		slices.SortStableFunc(recs, func(a, b *record.Record) int {
			return sign * a.LastActivityAt.Compare(b.LastActivityAt)
		})
	case SortName, SortEmail, SortPhone, SortAddedBy:
		sortByText(recs, textField(key), sign)
	}
}

func textField(key SortKey) func(*record.Record) string {
	switch key {
	case SortName:
		return func(r *record.Record) string { return r.Name }
	case SortEmail:
		return func(r *record.Record) string { return r.Email }
	case SortPhone:
		return func(r *record.Record) string { return r.Phone }
	default:
		return func(r *record.Record) string { return r.AddedBy }
	}
}

type keyed struct {
	key string
	rec *record.Record
}

// sortByText lowercases each key once instead of on every comparison
func sortByText(recs []*record.Record, field func(*record.Record) string, sign int) {
	keys := make([]keyed, len(recs))
	for i, r := range recs {
		keys[i] = keyed{key: strings.ToLower(field(r)), rec: r}
	}
	slices.SortStableFunc(keys, func(a, b keyed) int {
		return sign * strings.Compare(a.key, b.key)
	})
	for i := range keys {
		recs[i] = keys[i].rec
	}
}

// containsFold reports whether lowerNeedle occurs in s ignoring case.
// lowerNeedle must already be lowercase.
func containsFold(s, lowerNeedle string) bool {
	if !isASCII(s) || !isASCII(lowerNeedle) {
		return strings.Contains(strings.ToLower(s), lowerNeedle)
	}

	n := len(lowerNeedle)
	for i := 0; i+n <= len(s); i++ {
		j := 0
		for j < n && toLowerASCII(s[i+j]) == lowerNeedle[j] {
			j++
		}
		if j == n {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func toLowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
