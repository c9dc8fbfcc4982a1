package pagination

import (
	"fmt"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Params holds the limit/offset window of one page of a full scan.
type Params struct {
	Limit  int
	Offset int
}

// New returns the first page window for the given page size, clamped to
// [1, MaxLimit]. A non-positive size selects DefaultLimit.
func New(limit int) Params {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Limit: limit}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// Next returns the window that follows p.
func (p Params) Next() Params {
	return Params{Limit: p.Limit, Offset: p.NextOffset()}
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// Last reports whether a page that returned n rows ends the scan.
func (p Params) Last(n int) bool {
	return n < p.Limit
}
