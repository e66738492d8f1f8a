package handlers

import (
	"net/http"
	"strconv"
)

const MaxLimit = 1000

type PaginationParams struct {
	// Limit is 0 when the caller asked for everything.
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset query parameters. Missing or
// invalid values fall back to an unbounded listing from the start.
func ParsePagination(r *http.Request) PaginationParams {
	var p PaginationParams

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			p.Limit = min(parsed, MaxLimit)
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}

	return p
}
