// Package pagination holds the paging and time-window helpers shared by
// the list endpoints.
package pagination

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest holds pagination parameters parsed from query strings.
type PageRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Defaults fills in default values when page or page_size are not provided,
// and clamps page_size for callers that bypass binding.
func (p *PageRequest) Defaults() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Offset returns the SQL OFFSET for the current page.
func (p *PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageResponse wraps a paginated list of items with metadata.
type PageResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPageResponse creates a PageResponse from the given data and total count.
func NewPageResponse[T any](data []T, page, pageSize int, totalItems int64) PageResponse[T] {
	totalPages := int(math.Ceil(float64(totalItems) / float64(pageSize)))
	if data == nil {
		data = []T{}
	}
	return PageResponse[T]{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// Paginate returns a GORM scope that applies OFFSET and LIMIT for the given page request.
func Paginate(req PageRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.Offset()).Limit(req.PageSize)
	}
}

// ParseTime accepts RFC3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// TimeRange is an inclusive [From, To] window for time-series queries.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// ParseTimeRange parses an optional from/to pair. A missing bound is open:
// From defaults to the zero time and To to now. A date-only To covers the
// whole day.
func ParseTimeRange(from, to string, now time.Time) (TimeRange, error) {
	r := TimeRange{To: now}
	if from != "" {
		t, err := ParseTime(from)
		if err != nil {
			return TimeRange{}, err
		}
		r.From = t
	}
	if to != "" {
		t, err := ParseTime(to)
		if err != nil {
			return TimeRange{}, err
		}
		if _, dateErr := time.Parse(time.DateOnly, to); dateErr == nil {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		r.To = t
	}
	if r.To.Before(r.From) {
		return TimeRange{}, fmt.Errorf("from must not be after to")
	}
	return r, nil
}

// Scope returns a GORM scope restricting column to the range.
func (r TimeRange) Scope(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" >= ? AND "+column+" <= ?", r.From, r.To)
	}
}
