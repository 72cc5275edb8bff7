package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/winery"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api/v1", 5*time.Second, nil, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadScheme(t *testing.T) {
	_, err := NewClient("ftp://example.com/api/v1", time.Second, nil, nil)
	assert.Error(t, err)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"content":[],"totalElements":0,"totalPages":0,"currentPage":0,"size":15}`))
	})

	ctx := winery.WithToken(context.Background(), "tok-123")
	req := listing.Request{Size: 15, Sort: listing.Sort{Field: "date", Desc: true}}
	f := filter.EntryFilter{DateFrom: core.NewDate(2025, 3, 1), PersonIDs: []int64{1, 2}}
	page, err := c.ListEntries(ctx, req, f)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/api/v1/entries", gotPath)
	assert.Contains(t, gotQuery, "person.in=1%2C2")
	assert.Contains(t, gotQuery, "dateFrom=2025-03-01")
	assert.Contains(t, gotQuery, "sort=date%2Cdesc")
	assert.True(t, page.IsEmpty())
	assert.True(t, page.GrandTotal.Get(core.TotalAmountPaid).IsZero())
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`["ALL","ERROR"]`))
	})
	levels, err := c.LogLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ALL", "ERROR"}, levels)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, core.ErrUnauthorized) }},
		{http.StatusForbidden, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, core.ErrForbidden) }},
		{http.StatusNotFound, `{"status":404,"message":"Person not found with id: 9"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.Equal(t, "Person not found with id: 9", core.UserMessage(err))
		}},
		{http.StatusConflict, `{"message":"Cannot delete the last active admin user"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, core.ErrConflict)
		}},
		{http.StatusBadRequest, `{"name":"must not be blank","color":"bad"}`, func(t *testing.T, err error) {
			var apiErr *core.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "color: bad; name: must not be blank", apiErr.Message)
		}},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.GetPerson(context.Background(), 9)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_MalformedPageIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>proxy error</html>`))
	})
	page, err := c.ListPersons(context.Background(), listing.Request{Size: 10}, filter.PersonFilter{})
	require.NoError(t, err)
	assert.True(t, page.IsEmpty())
	assert.NotNil(t, page.Content)
}

func TestClient_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var creds core.Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "admin", creds.Username)
			json.NewEncoder(w).Encode(core.AuthResponse{AccessToken: "a", RefreshToken: "r", Username: "admin", Role: core.RoleAdmin})
		})
		resp, err := c.Login(context.Background(), core.Credentials{Username: "admin", Password: "admin"})
		require.NoError(t, err)
		assert.Equal(t, core.Identity{Username: "admin", Role: core.RoleAdmin}, resp.Identity())
	})

	t.Run("bad request means invalid credentials", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := c.Login(context.Background(), core.Credentials{Username: "admin", Password: "nope"})
		assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	})
}

func TestClient_RefreshSendsRawToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "refresh-abc", string(body))
		assert.Equal(t, "/api/v1/auth/refresh", r.URL.Path)
		w.Write([]byte(`{"accessToken":"new","refreshToken":"refresh-def","username":"admin","role":"ADMIN"}`))
	})
	resp, err := c.Refresh(context.Background(), "refresh-abc")
	require.NoError(t, err)
	assert.Equal(t, "new", resp.AccessToken)
}

func TestClient_ListAllWalksPages(t *testing.T) {
	var pages []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		assert.Equal(t, "id", r.URL.Query().Get("sortBy"))
		if page == "0" {
			w.Write([]byte(`{"content":[{"id":1,"username":"a","role":"ADMIN","active":true}],"totalElements":2,"totalPages":2,"currentPage":0,"size":1}`))
			return
		}
		w.Write([]byte(`{"content":[{"id":2,"username":"b","role":"USER","active":true}],"totalElements":2,"totalPages":2,"currentPage":1,"size":1}`))
	})
	users, err := c.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, []string{"0", "1"}, pages)
	assert.Equal(t, 1, core.CountActiveAdmins(users))
}

func TestClient_ListAllStopsAtTheReportedPageCount(t *testing.T) {
	requests := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Always claims to be the first page.
		w.Write([]byte(`{"content":[{"id":1,"username":"a","role":"ADMIN","active":true}],"totalElements":3,"totalPages":3,"currentPage":0,"size":1}`))
	})
	users, err := c.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
	assert.Equal(t, 3, requests)
}

func TestClient_ListAllGivesUpOnEndlessPaging(t *testing.T) {
	requests := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"content":[{"id":1,"username":"a","role":"ADMIN","active":true}],"totalElements":1000000,"totalPages":1000000,"currentPage":0,"size":1}`))
	})
	_, err := c.ListAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, maxUserPages, requests)
}

func TestClient_Summary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-03-01", q.Get("fromDate"))
		assert.Equal(t, "2025-03-31", q.Get("toDate"))
		assert.False(t, q.Has("personId"))
		w.Write([]byte(`{"fromDate":"2025-03-01","toDate":"2025-03-31","totalAmountPaid":100.5,"totalEntries":1}`))
	})
	sum, err := c.Summary(context.Background(), winery.SummaryQuery{FromDate: core.NewDate(2025, 3, 1), ToDate: core.NewDate(2025, 3, 31)})
	require.NoError(t, err)
	assert.Equal(t, core.MustDecimal("100.50"), sum.TotalAmountPaid)
	assert.Equal(t, int64(1), sum.TotalEntries)
}
