// Package pagination slices ordered listings into fixed-size windows.
package pagination

import (
	"strconv"

	"github.com/pulsefeed/pulse/internal/domain"
)

// DefaultPerPage is the listing window size used when config supplies none.
const DefaultPerPage = 10

// Page is one window of an ordered result set. Number is always within
// [1, TotalPages]; Offset/PerPage are ready to hand to a repository query.
type Page struct {
	Number     int
	PerPage    int
	TotalItems int64
	TotalPages int
	Offset     int
}

// New computes the page window for a raw page parameter taken from the
// request. Fails safe: non-numeric input clamps to page 1, numbers beyond
// the last page clamp to the last page. An empty result set still has one
// (empty) page.
func New(rawPage string, perPage int, totalItems int64) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	number, err := strconv.Atoi(rawPage)
	if err != nil || number < 1 {
		number = 1
	}

	totalPages := int((totalItems + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}
	if number > totalPages {
		number = totalPages
	}

	return Page{
		Number:     number,
		PerPage:    perPage,
		TotalItems: totalItems,
		TotalPages: totalPages,
		Offset:     (number - 1) * perPage,
	}
}

// HasNext reports whether a page after this one exists.
func (p Page) HasNext() bool { return p.Number < p.TotalPages }

// HasPrev reports whether a page before this one exists.
func (p Page) HasPrev() bool { return p.Number > 1 }

// Size returns the number of items on this page.
func (p Page) Size() int {
	remaining := p.TotalItems - int64(p.Offset)
	if remaining < 0 {
		return 0
	}
	if remaining > int64(p.PerPage) {
		return p.PerPage
	}
	return int(remaining)
}

// Meta converts the window into its response representation.
func (p Page) Meta() domain.PageMeta {
	return domain.PageMeta{
		Page:       p.Number,
		PerPage:    p.PerPage,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext(),
		HasPrev:    p.HasPrev(),
	}
}

// ParsePerPage reads an optional per-page override, keeping it within
// [1, max]. Returns fallback when raw is empty or invalid.
func ParsePerPage(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
