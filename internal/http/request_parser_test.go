package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
)

func TestParseListControls(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  ListControls
	}{
		{name: "empty", query: "", want: ListControls{}},
		{name: "page link", query: "page=3", want: ListControls{Page: 3, HasPage: true}},
		{name: "page zero", query: "page=0", want: ListControls{HasPage: true}},
		{name: "malformed page ignored", query: "page=two", want: ListControls{}},
		{name: "negative page ignored", query: "page=-1", want: ListControls{}},
		{name: "sort header", query: "sort=+name+", want: ListControls{Sort: "name"}},
		{name: "clear button", query: "clear=1", want: ListControls{Clear: true}},
		{name: "filter form", query: "apply=1&name=x&page=2", want: ListControls{Apply: true, Page: 2, HasPage: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ParseListControls(q))
		})
	}
}

func newPersonsView() *listing.View[core.Person, filter.PersonFilter] {
	load := func(context.Context, listing.Request, filter.PersonFilter) (listing.Page[core.Person], error) {
		return listing.Page[core.Person]{}, nil
	}
	return listing.NewView[core.Person, filter.PersonFilter](load, personsRequest, filter.PersonFilter{})
}

func apply(t *testing.T, v *listing.View[core.Person, filter.PersonFilter], query string) error {
	t.Helper()
	q, err := url.ParseQuery(query)
	require.NoError(t, err)
	return applyControls(v, ParseListControls(q), q, filter.ParsePersonFilter)
}

func TestApplyControls_FilterResetsPage(t *testing.T) {
	v := newPersonsView()

	require.NoError(t, apply(t, v, "page=4"))
	assert.Equal(t, 4, v.Request().Page)

	require.NoError(t, apply(t, v, "apply=1&name=nino&page=4"))
	assert.Equal(t, "nino", v.Filter().Name)
	assert.Equal(t, 0, v.Request().Page, "a changed filter starts from the first page")

	require.NoError(t, apply(t, v, "apply=1&name=nino&page=2"))
	assert.Equal(t, 2, v.Request().Page, "the same filter keeps the submitted page")
}

func TestApplyControls_SortToggles(t *testing.T) {
	v := newPersonsView()
	require.NoError(t, apply(t, v, "page=3"))

	require.NoError(t, apply(t, v, "sort=name"))
	assert.Equal(t, listing.Sort{Field: "name"}, v.Request().Sort)
	assert.Equal(t, 0, v.Request().Page)

	require.NoError(t, apply(t, v, "sort=name"))
	assert.Equal(t, listing.Sort{Field: "name", Desc: true}, v.Request().Sort)
}

func TestApplyControls_ClearWinsOverFilter(t *testing.T) {
	v := newPersonsView()
	require.NoError(t, apply(t, v, "apply=1&name=nino"))

	require.NoError(t, apply(t, v, "clear=1&apply=1&name=levan"))
	assert.Equal(t, filter.PersonFilter{}, v.Filter())
}

func TestApplyControls_InvalidFilterLeavesViewUntouched(t *testing.T) {
	v := newPersonsView()
	require.NoError(t, apply(t, v, "apply=1&name=nino"))

	err := apply(t, v, "apply=1&name=levan&active=maybe")
	require.ErrorIs(t, err, filter.ErrInvalidFilter)
	assert.Equal(t, "nino", v.Filter().Name)
}

func TestApplyControls_FilterFieldsNeedTheApplyFlag(t *testing.T) {
	v := newPersonsView()

	require.NoError(t, apply(t, v, "name=nino"))
	assert.Empty(t, v.Filter().Name)
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "42", want: 42},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/persons/x/edit", nil)
			r.SetPathValue("id", tt.raw)
			got, err := pathID(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadID)
				assert.Equal(t, http.StatusBadRequest, statusFor(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trims spaces", "  Harvest  ", "Harvest"},
		{"drops control characters", "Bar\x00rel\x07", "Barrel"},
		{"keeps tabs and newlines", "line one\nline\ttwo", "line one\nline\ttwo"},
		{"keeps unicode", "გიორგი", "გიორგი"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeInput(tt.input))
		})
	}
}

func TestParseFormOrFail_LeavesPasswordsAlone(t *testing.T) {
	body := url.Values{"username": {"  admin "}, "password": {" secret\x01 "}}.Encode()
	r := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	require.Nil(t, ParseFormOrFail(r))
	assert.Equal(t, "admin", r.PostFormValue("username"))
	assert.Equal(t, " secret\x01 ", r.PostFormValue("password"))
}

func TestIsHTMXAndConfirmed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/persons/1/delete", strings.NewReader("confirm=yes"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.False(t, isHTMX(r))
	assert.True(t, confirmed(r))

	r = httptest.NewRequest(http.MethodPost, "/persons/1/delete", strings.NewReader("confirm=no"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("HX-Request", "true")
	assert.True(t, isHTMX(r))
	assert.False(t, confirmed(r))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", core.ErrForbidden, http.StatusForbidden},
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"bad filter", filter.ErrInvalidFilter, http.StatusBadRequest},
		{"api conflict", &core.APIError{Status: http.StatusConflict, Message: "in use"}, http.StatusConflict},
		{"api failure", &core.APIError{Status: http.StatusInternalServerError}, http.StatusBadGateway},
		{"anything else", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
