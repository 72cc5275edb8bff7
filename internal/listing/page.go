// Package listing implements the paged list contract shared by every table
// screen: the request shape, the response page with its aggregates, and the
// per-screen View that owns filter, pagination and the last good page.
package listing

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"winery/internal/core"
)

// SortStyle selects how a resource expects the sort parameter on the wire.
type SortStyle int

const (
	// SortParam encodes sort=field,dir.
	SortParam SortStyle = iota
	// SortSplit encodes sortBy=field&sortDir=dir.
	SortSplit
)

var ErrMalformed = errors.New("malformed page response")

type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads "field,dir". An empty or unknown direction means ascending.
func ParseSort(s string) Sort {
	field, dir, _ := strings.Cut(strings.TrimSpace(s), ",")
	return Sort{
		Field: strings.TrimSpace(field),
		Desc:  strings.EqualFold(strings.TrimSpace(dir), "desc"),
	}
}

func (s Sort) Direction() string {
	if s.Desc {
		return "desc"
	}
	return "asc"
}

func (s Sort) String() string {
	if s.Field == "" {
		return ""
	}
	return s.Field + "," + s.Direction()
}

// Toggle returns the sort after a click on the column header for field.
func (s Sort) Toggle(field string) Sort {
	if s.Field == field {
		return Sort{Field: field, Desc: !s.Desc}
	}
	return Sort{Field: field}
}

// Request is one page request: 0-based page index, page size and sort.
type Request struct {
	Page  int
	Size  int
	Sort  Sort
	Style SortStyle
}

// Params encodes the request part of the query string. Filters add their own.
func (r Request) Params() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(r.Page))
	if r.Size > 0 {
		v.Set("size", strconv.Itoa(r.Size))
	}
	if r.Sort.Field != "" {
		switch r.Style {
		case SortSplit:
			v.Set("sortBy", r.Sort.Field)
			v.Set("sortDir", r.Sort.Direction())
		default:
			v.Set("sort", r.Sort.String())
		}
	}
	return v
}

// Page is one page of T plus the server-computed aggregates.
type Page[T any] struct {
	Content       []T         `json:"content"`
	TotalElements int64       `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	Size          int         `json:"size"`
	Number        int         `json:"number"`
	First         bool        `json:"first"`
	Last          bool        `json:"last"`
	PageTotal     core.Totals `json:"pageTotal,omitempty"`
	GrandTotal    core.Totals `json:"grandTotal,omitempty"`
}

type wirePage[T any] struct {
	Content       []T         `json:"content"`
	TotalElements int64       `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	Size          int         `json:"size"`
	Number        *int        `json:"number"`
	CurrentPage   *int        `json:"currentPage"`
	PageTotal     core.Totals `json:"pageTotal"`
	GrandTotal    core.Totals `json:"grandTotal"`
}

// Decode parses a page body. Malformed or empty bodies yield an empty page for
// req together with ErrMalformed, so callers can log and carry on.
func Decode[T any](data []byte, req Request) (Page[T], error) {
	var w wirePage[T]
	if len(strings.TrimSpace(string(data))) == 0 {
		return Empty[T](req), ErrMalformed
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Empty[T](req), errors.Join(ErrMalformed, err)
	}
	p := Page[T]{
		Content:       w.Content,
		TotalElements: w.TotalElements,
		TotalPages:    w.TotalPages,
		Size:          w.Size,
		Number:        req.Page,
		PageTotal:     w.PageTotal,
		GrandTotal:    w.GrandTotal,
	}
	switch {
	case w.CurrentPage != nil:
		p.Number = *w.CurrentPage
	case w.Number != nil:
		p.Number = *w.Number
	}
	return p.Normalize(req), nil
}

// Empty is the zero-result page for req.
func Empty[T any](req Request) Page[T] {
	return Page[T]{Size: req.Size, Number: req.Page}.Normalize(req)
}

// Normalize repairs inconsistent counters so templates never see a nil slice,
// a negative page or a total smaller than the rows on screen.
func (p Page[T]) Normalize(req Request) Page[T] {
	if p.Content == nil {
		p.Content = []T{}
	}
	if p.Size <= 0 {
		p.Size = req.Size
	}
	if p.Size <= 0 {
		p.Size = len(p.Content)
	}
	if p.Number < 0 {
		p.Number = 0
	}
	if n := int64(len(p.Content)); p.TotalElements < n {
		p.TotalElements = n
	}
	if p.TotalPages <= 0 && p.TotalElements > 0 && p.Size > 0 {
		p.TotalPages = int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
	}
	p.First = p.Number == 0
	p.Last = p.TotalPages == 0 || p.Number >= p.TotalPages-1
	return p
}

func (p Page[T]) IsEmpty() bool { return len(p.Content) == 0 }

func (p Page[T]) HasPrev() bool { return !p.First }

func (p Page[T]) HasNext() bool { return !p.Last }

func (p Page[T]) PrevPage() int { return max(p.Number-1, 0) }

func (p Page[T]) NextPage() int { return p.Number + 1 }

// RangeStart is the 1-based index of the first row on this page, 0 when empty.
func (p Page[T]) RangeStart() int64 {
	if p.IsEmpty() {
		return 0
	}
	return int64(p.Number)*int64(p.Size) + 1
}

// RangeEnd is the 1-based index of the last row on this page.
func (p Page[T]) RangeEnd() int64 {
	if p.IsEmpty() {
		return 0
	}
	return int64(p.Number)*int64(p.Size) + int64(len(p.Content))
}

// Position is the non-generic pager view of a page.
type Position struct {
	Number        int
	TotalPages    int
	TotalElements int64
	Start         int64
	End           int64
	HasPrev       bool
	HasNext       bool
	Prev          int
	Next          int
}

func (p Page[T]) Position() Position {
	return Position{
		Number:        p.Number,
		TotalPages:    p.TotalPages,
		TotalElements: p.TotalElements,
		Start:         p.RangeStart(),
		End:           p.RangeEnd(),
		HasPrev:       p.HasPrev(),
		HasNext:       p.HasNext(),
		Prev:          p.PrevPage(),
		Next:          p.NextPage(),
	}
}

// Slice cuts a page out of an already filtered and sorted full result.
// It is what an in-process backend uses to answer a page request.
func Slice[T any](all []T, req Request) Page[T] {
	size := req.Size
	if size <= 0 {
		size = len(all)
	}
	p := Page[T]{
		TotalElements: int64(len(all)),
		Size:          size,
		Number:        max(req.Page, 0),
	}
	if size > 0 {
		start := p.Number * size
		if start < len(all) {
			end := min(start+size, len(all))
			p.Content = append([]T(nil), all[start:end]...)
		}
	}
	return p.Normalize(req)
}
