package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds 1-based page navigation extracted from a request.
type Params struct {
	Page     int
	PageSize int
}

// FromContext extracts page parameters from the echo context. A missing or
// invalid page means page 1; a missing page size means defaultSize.
func FromContext(c echo.Context, defaultSize int) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if size <= 0 {
		size = defaultSize
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	return Params{Page: page, PageSize: size}
}

// Offset returns the index of the first item on the page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// TotalPages returns the number of pages needed for total items. It is 0
// for an empty list.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Clamp keeps page inside [1, totalPages]. Pages past the end are not
// reachable through navigation.
func Clamp(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Slice returns the items on the given page. The result shares the
// backing array of items.
func Slice[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	p := Params{Page: Clamp(page, TotalPages(len(items), pageSize)), PageSize: pageSize}
	start := p.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Info describes the current page for a screen's navigation controls.
type Info struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

func NewInfo(page, pageSize, total int) Info {
	pages := TotalPages(total, pageSize)
	page = Clamp(page, pages)
	return Info{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  pages,
		HasNext:     page < pages,
		HasPrevious: page > 1,
	}
}
