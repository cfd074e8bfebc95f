// internal/core/query_params.go
package core

import (
	"net/url"
	"strconv"
	"strings"
)

// Default and limit constants for pagination
const (
	DefaultLimit = 50
	MaxLimit     = 500
	DefaultOrder = "asc"
)

// ListQueryOptions holds parsed pagination and ordering parameters for row listings.
type ListQueryOptions struct {
	Limit  int
	Offset int

	SortBy    string
	SortOrder string // "asc" or "desc"
}

// ParseListQueryOptions reads limit/offset (or page/per_page) plus sort/order.
// Limits above MaxLimit are clamped rather than rejected.
func ParseListQueryOptions(queryParams url.Values) (*ListQueryOptions, error) {
	opts := &ListQueryOptions{
		Limit:     DefaultLimit,
		SortOrder: DefaultOrder,
	}

	limitKey := "limit"
	if queryParams.Get(limitKey) == "" && queryParams.Get("per_page") != "" {
		limitKey = "per_page"
	}
	if limitStr := queryParams.Get(limitKey); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, InvalidInputf("'%s' parameter must be an integer", limitKey)
		}
		if limit < 1 {
			return nil, InvalidInputf("'%s' parameter must be at least 1", limitKey)
		}
		opts.Limit = min(limit, MaxLimit)
	}

	if offsetStr := queryParams.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, InvalidInputf("'offset' parameter must be an integer")
		}
		if offset < 0 {
			return nil, InvalidInputf("'offset' parameter must be non-negative")
		}
		opts.Offset = offset
	} else if pageStr := queryParams.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return nil, InvalidInputf("'page' parameter must be a positive integer")
		}
		opts.Offset = (page - 1) * opts.Limit
	}

	if sortBy := queryParams.Get("sort"); sortBy != "" {
		if !IsValidIdentifier(sortBy) {
			return nil, InvalidInputf("'sort' parameter %q is not a valid column name", sortBy)
		}
		opts.SortBy = sortBy
	}

	if order := queryParams.Get("order"); order != "" {
		lowerOrder := strings.ToLower(order)
		if lowerOrder != "asc" && lowerOrder != "desc" {
			return nil, InvalidInputf("'order' parameter must be 'asc' or 'desc'")
		}
		opts.SortOrder = lowerOrder
	}

	return opts, nil
}

// Page returns the 1-based page number the options point at.
func (o *ListQueryOptions) Page() int {
	return o.Offset/o.Limit + 1
}
