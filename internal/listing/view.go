package listing

import (
	"context"
	"errors"
	"net/url"
	"sync"
)

// ErrStale is returned by Reload when a newer reload was issued while this
// one was in flight. The result has been discarded.
var ErrStale = errors.New("stale list response discarded")

// Filter is an immutable per-screen filter with a pure mapping to query params.
type Filter interface {
	Params() url.Values
}

// Loader fetches one page for the given request and filter.
type Loader[T any, F Filter] func(ctx context.Context, req Request, f F) (Page[T], error)

// View is the state of one table screen: the active filter, the page request
// and the last page that loaded successfully.
type View[T any, F Filter] struct {
	mu     sync.Mutex
	load   Loader[T, F]
	seq    Sequencer
	req    Request
	filter F
	page   Page[T]
	loaded bool
}

// NewView creates a view starting at page 0 of req with the initial filter.
func NewView[T any, F Filter](load Loader[T, F], req Request, initial F) *View[T, F] {
	req.Page = 0
	return &View[T, F]{
		load:   load,
		req:    req,
		filter: initial,
		page:   Empty[T](req),
	}
}

func (v *View[T, F]) Filter() F {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

func (v *View[T, F]) Request() Request {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.req
}

// Page returns the last good page.
func (v *View[T, F]) Page() Page[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

// Loaded reports whether any reload has succeeded yet.
func (v *View[T, F]) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Query is the full query string the next reload will send.
func (v *View[T, F]) Query() url.Values {
	v.mu.Lock()
	defer v.mu.Unlock()
	return mergeParams(v.req.Params(), v.filter.Params())
}

// SetFilter replaces the filter and moves back to page 0.
func (v *View[T, F]) SetFilter(f F) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = f
	v.req.Page = 0
}

// Apply takes the filter and page submitted together by a table form. When the
// filter differs from the active one the page is ignored and reset to 0.
func (v *View[T, F]) Apply(f F, page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.Params().Encode() != v.filter.Params().Encode() {
		v.filter = f
		v.req.Page = 0
		return
	}
	v.req.Page = max(page, 0)
}

func (v *View[T, F]) SetPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.req.Page = max(n, 0)
}

// SetSort changes the sort order and moves back to page 0.
func (v *View[T, F]) SetSort(s Sort) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s.Field == "" {
		return
	}
	v.req.Sort = s
	v.req.Page = 0
}

// ClearFilters resets the filter to its unset value and moves to page 0.
// Calling it repeatedly leaves the same state.
func (v *View[T, F]) ClearFilters() {
	var zero F
	v.SetFilter(zero)
}

// Reload fetches the page for the current request and filter. On failure the
// previous page is kept and the error returned. If a newer reload started in
// the meantime, the response is dropped and ErrStale returned.
func (v *View[T, F]) Reload(ctx context.Context) (Page[T], error) {
	v.mu.Lock()
	req, f := v.req, v.filter
	seq := v.seq.Next()
	v.mu.Unlock()

	page, err := v.load(ctx, req, f)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.seq.IsLatest(seq) {
		return v.page, ErrStale
	}
	if err != nil {
		return v.page, err
	}
	v.page = page.Normalize(req)
	v.loaded = true
	return v.page, nil
}

func mergeParams(sets ...url.Values) url.Values {
	out := url.Values{}
	for _, set := range sets {
		for k, vs := range set {
			for _, s := range vs {
				out.Add(k, s)
			}
		}
	}
	return out
}

// Merge combines a request's params with filter params into one query.
func Merge(req Request, f Filter) url.Values {
	return mergeParams(req.Params(), f.Params())
}
