package listing

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/core"
)

type nameFilter struct {
	Name string
}

func (f nameFilter) Params() url.Values {
	v := url.Values{}
	if f.Name != "" {
		v.Set("name", f.Name)
	}
	return v
}

type recorder struct {
	mu       sync.Mutex
	requests []Request
	filters  []nameFilter
	err      error
	rows     []int
}

func (r *recorder) load(_ context.Context, req Request, f nameFilter) (Page[int], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	r.filters = append(r.filters, f)
	if r.err != nil {
		return Page[int]{}, r.err
	}
	return Slice(r.rows, req), nil
}

func (r *recorder) last() (Request, nameFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1], r.filters[len(r.filters)-1]
}

func rows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, Sort{Field: "date", Desc: true}, ParseSort("date,desc"))
	assert.Equal(t, Sort{Field: "id"}, ParseSort("id"))
	assert.Equal(t, Sort{Field: "name"}, ParseSort(" name , ASC "))
	assert.Equal(t, "", Sort{}.String())
	assert.Equal(t, Sort{Field: "date", Desc: true}, Sort{Field: "date"}.Toggle("date"))
	assert.Equal(t, Sort{Field: "name"}, Sort{Field: "date", Desc: true}.Toggle("name"))
}

func TestRequestParams(t *testing.T) {
	req := Request{Page: 2, Size: 15, Sort: Sort{Field: "date", Desc: true}}
	assert.Equal(t, "page=2&size=15&sort=date%2Cdesc", req.Params().Encode())

	req.Style = SortSplit
	assert.Equal(t, "page=2&size=15&sortBy=date&sortDir=desc", req.Params().Encode())
}

func TestDecode(t *testing.T) {
	req := Request{Page: 1, Size: 2}

	t.Run("spring page with totals", func(t *testing.T) {
		body := `{"content":[1,2],"totalElements":5,"totalPages":3,"size":2,"number":1,
			"pageTotal":{"amountPaid":3.5},"grandTotal":{"amountPaid":"10.25"}}`
		p, err := Decode[int]([]byte(body), req)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, p.Content)
		assert.Equal(t, int64(5), p.TotalElements)
		assert.False(t, p.First)
		assert.False(t, p.Last)
		assert.Equal(t, core.MustDecimal("3.50"), p.PageTotal.Get(core.TotalAmountPaid))
		assert.Equal(t, core.MustDecimal("10.25"), p.GrandTotal.Get(core.TotalAmountPaid))
		assert.True(t, p.GrandTotal.Get(core.TotalAmountDue).IsZero())
	})

	t.Run("currentPage wins over number", func(t *testing.T) {
		p, err := Decode[int]([]byte(`{"content":[],"currentPage":2,"number":0,"totalPages":3}`), req)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Number)
		assert.True(t, p.Last)
	})

	t.Run("empty and malformed bodies become empty pages", func(t *testing.T) {
		for _, body := range []string{"", "  ", "not json", `{"content":"x"}`} {
			p, err := Decode[int]([]byte(body), req)
			assert.ErrorIs(t, err, ErrMalformed, body)
			assert.NotNil(t, p.Content)
			assert.True(t, p.IsEmpty())
			assert.Equal(t, int64(0), p.TotalElements)
		}
	})

	t.Run("null content", func(t *testing.T) {
		p, err := Decode[int]([]byte(`{"content":null}`), req)
		require.NoError(t, err)
		assert.Equal(t, []int{}, p.Content)
	})
}

func TestSlice(t *testing.T) {
	all := rows(45)
	p := Slice(all, Request{Page: 2, Size: 15})
	assert.Len(t, p.Content, 15)
	assert.Equal(t, 31, p.Content[0])
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.Last)
	assert.Equal(t, int64(31), p.RangeStart())
	assert.Equal(t, int64(45), p.RangeEnd())

	beyond := Slice(all, Request{Page: 9, Size: 15})
	assert.True(t, beyond.IsEmpty())
	assert.Equal(t, int64(45), beyond.TotalElements)
}

func TestView_FilterChangeResetsPage(t *testing.T) {
	rec := &recorder{rows: rows(50)}
	v := NewView(rec.load, Request{Size: 10}, nameFilter{})
	ctx := context.Background()

	v.SetPage(3)
	_, err := v.Reload(ctx)
	require.NoError(t, err)
	req, _ := rec.last()
	assert.Equal(t, 3, req.Page)

	v.SetFilter(nameFilter{Name: "Nino"})
	_, err = v.Reload(ctx)
	require.NoError(t, err)
	req, f := rec.last()
	assert.Equal(t, 0, req.Page)
	assert.Equal(t, "Nino", f.Name)
}

func TestView_Apply(t *testing.T) {
	v := NewView((&recorder{}).load, Request{Size: 10}, nameFilter{Name: "a"})

	v.Apply(nameFilter{Name: "a"}, 4)
	assert.Equal(t, 4, v.Request().Page)

	v.Apply(nameFilter{Name: "b"}, 4)
	assert.Equal(t, 0, v.Request().Page)
	assert.Equal(t, "b", v.Filter().Name)
}

func TestView_SortResetsPage(t *testing.T) {
	v := NewView((&recorder{}).load, Request{Size: 10, Sort: Sort{Field: "id"}}, nameFilter{})
	v.SetPage(2)
	v.SetSort(Sort{Field: "name", Desc: true})
	assert.Equal(t, 0, v.Request().Page)
	assert.Equal(t, "name,desc", v.Request().Sort.String())

	v.SetPage(2)
	v.SetSort(Sort{})
	assert.Equal(t, 2, v.Request().Page)
}

func TestView_ClearFiltersIsIdempotent(t *testing.T) {
	rec := &recorder{rows: rows(5)}
	v := NewView(rec.load, Request{Size: 10}, nameFilter{Name: "x"})
	ctx := context.Background()

	v.ClearFilters()
	_, err := v.Reload(ctx)
	require.NoError(t, err)
	once := v.Query().Encode()
	onceReq, onceFilter := rec.last()

	v.ClearFilters()
	_, err = v.Reload(ctx)
	require.NoError(t, err)
	twiceReq, twiceFilter := rec.last()

	assert.Equal(t, once, v.Query().Encode())
	assert.Equal(t, onceReq, twiceReq)
	assert.Equal(t, onceFilter, twiceFilter)
	assert.Equal(t, nameFilter{}, v.Filter())
}

func TestView_FailureKeepsLastGoodPage(t *testing.T) {
	rec := &recorder{rows: rows(3)}
	v := NewView(rec.load, Request{Size: 10}, nameFilter{})
	ctx := context.Background()

	good, err := v.Reload(ctx)
	require.NoError(t, err)
	require.Len(t, good.Content, 3)

	rec.err = errors.New("boom")
	p, err := v.Reload(ctx)
	require.Error(t, err)
	assert.Equal(t, good, p)
	assert.Equal(t, good, v.Page())
	assert.True(t, v.Loaded())
}

func TestView_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex
	load := func(ctx context.Context, req Request, f nameFilter) (Page[int], error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
			return Slice([]int{1}, req), nil
		}
		return Slice([]int{2, 2}, req), nil
	}
	v := NewView(load, Request{Size: 10}, nameFilter{})

	errc := make(chan error, 1)
	go func() {
		_, err := v.Reload(context.Background())
		errc <- err
	}()
	<-started

	v.SetFilter(nameFilter{Name: "newer"})
	fresh, err := v.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, fresh.Content, 2)

	close(release)
	assert.ErrorIs(t, <-errc, ErrStale)
	assert.Len(t, v.Page().Content, 2)
}
