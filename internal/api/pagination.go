package api

import (
	"net/http"
	"strconv"
)

// Listing endpoints (identities, review queue, attendance history) page with
// ?page and ?per_page. Oversized per_page values clamp rather than error.
const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams is the parsed page window of a list request.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads the page window from the query string. Missing,
// unparseable or non-positive values fall back to page=1, per_page=50;
// per_page caps at 200.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{Page: defaultPage, PerPage: defaultPerPage}
	if n, ok := queryInt(r, "page"); ok {
		p.Page = n
	}
	if n, ok := queryInt(r, "per_page"); ok {
		p.PerPage = n
		if p.PerPage > maxPerPage {
			p.PerPage = maxPerPage
		}
	}
	return p
}

func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Offset converts the page window to a database offset.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages derives the page count for a total row count.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}

// RespondPage writes a list response wrapped in pagination metadata.
func RespondPage(w http.ResponseWriter, data interface{}, p PaginationParams, total int64) {
	RespondJSON(w, http.StatusOK, PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      total,
			TotalPages: p.TotalPages(total),
		},
	})
}
