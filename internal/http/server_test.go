package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"winery/internal/core"
	"winery/internal/poll"
	"winery/internal/session"
	"winery/internal/winery"
	"winery/internal/winery/memory"
)

type consoleFixture struct {
	api    *memory.API
	server *Server
}

func newConsole(t *testing.T) *consoleFixture {
	t.Helper()
	api := memory.New(memory.WithPasswordCost(bcrypt.MinCost))
	sessions := session.NewManager(session.NewMemoryStore(), api, time.Hour, nil)
	srv, err := NewServer(":0", Config{}, Deps{API: api, Sessions: sessions})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &consoleFixture{api: api, server: srv}
}

type request struct {
	method string
	path   string
	form   url.Values
	cookie *http.Cookie
	htmx   bool
}

func (f *consoleFixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	if req.method == "" {
		req.method = http.MethodGet
	}
	var r *http.Request
	if req.form != nil {
		r = httptest.NewRequest(req.method, req.path, strings.NewReader(req.form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(req.method, req.path, nil)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}
	if req.htmx {
		r.Header.Set("HX-Request", "true")
	}
	rr := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rr, r)
	return rr
}

// login signs in and returns the session cookie.
func (f *consoleFixture) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	rr := f.do(t, request{
		method: http.MethodPost,
		path:   "/login",
		form:   url.Values{"username": {username}, "password": {password}},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	require.Equal(t, "/dashboard", rr.Header().Get("Location"))
	for _, c := range rr.Result().Cookies() {
		if c.Name == DefaultConfig().CookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	raw := rr.Header().Get("HX-Trigger")
	if raw == "" {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestGuard_AnonymousIsSentToLogin(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{path: "/persons"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = f.do(t, request{path: "/persons", htmx: true})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("HX-Redirect"))
	assert.Zero(t, f.api.Calls("ListPersons"))
}

func TestGuard_AdminRoutesRejectUsersWithoutCallingTheAPI(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "user", "user")
	before := f.api.TotalCalls()

	for _, path := range []string{"/users", "/audit", "/logs", "/users/1/edit", "/audit/persons/1"} {
		rr := f.do(t, request{path: path, cookie: cookie})
		assert.Equal(t, http.StatusSeeOther, rr.Code, path)
		assert.Equal(t, "/dashboard", rr.Header().Get("Location"), path)
	}
	assert.Equal(t, before, f.api.TotalCalls())
}

func TestLogin_Page(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{path: "/login"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="username"`)

	cookie := f.login(t, "admin", "admin")
	rr = f.do(t, request{path: "/login", cookie: cookie})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{
		method: http.MethodPost,
		path:   "/login",
		form:   url.Values{"username": {"admin"}, "password": {"wrong"}},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid username or password")

	rr = f.do(t, request{
		method: http.MethodPost,
		path:   "/login",
		form:   url.Values{"username": {"admin"}},
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Username and password are required")
	assert.Contains(t, triggers(t, rr), "show-notification")
}

func TestLogout_DropsTheSession(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{method: http.MethodPost, path: "/logout", cookie: cookie})
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	rr = f.do(t, request{path: "/dashboard", cookie: cookie})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestDashboard_Renders(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/dashboard", cookie: cookie})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Month summary")
	assert.Contains(t, body, "Active persons")
	assert.Contains(t, body, `<a href="/users"`, "admins see the admin navigation")
}

func TestDashboard_LoadsEveryTileOnce(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "user", "user")
	ops := []string{"Summary", "ListEntries", "ListEvents", "ListPersons"}
	before := make(map[string]int, len(ops))
	for _, op := range ops {
		before[op] = f.api.Calls(op)
	}

	rr := f.do(t, request{path: "/dashboard", cookie: cookie})
	require.Equal(t, http.StatusOK, rr.Code)
	for _, op := range ops {
		assert.Equal(t, before[op]+1, f.api.Calls(op), op)
	}
	body := rr.Body.String()
	assert.Contains(t, body, `<p class="big">3</p>`, "three seeded persons are active")
	assert.NotContains(t, body, `class="error"`)
}

func TestPersons_FilterSurvivesReload(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons", cookie: cookie})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Giorgi Beridze")
	assert.Contains(t, rr.Body.String(), `id="persons"`)

	rr = f.do(t, request{path: "/persons?apply=1&name=nino", cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Nino Kapanadze")
	assert.NotContains(t, rr.Body.String(), "Giorgi Beridze")
	assert.NotContains(t, rr.Body.String(), "<html", "HTMX requests only get the table")

	// A bare reload keeps the filter.
	rr = f.do(t, request{path: "/persons", cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "Giorgi Beridze")

	rr = f.do(t, request{path: "/persons?clear=1", cookie: cookie, htmx: true})
	assert.Contains(t, rr.Body.String(), "Giorgi Beridze")
}

func TestPersons_InvalidFilterIsRejected(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons?apply=1&active=maybe", cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, triggers(t, rr), "show-notification")
}

func TestPersons_CreateValidatesAndReloads(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons/new", cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "New person")

	rr = f.do(t, request{
		method: http.MethodPost,
		path:   "/persons",
		form:   url.Values{"name": {""}},
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cannot be blank")
	assert.NotContains(t, triggers(t, rr), "persons:reload")

	rr = f.do(t, request{
		method: http.MethodPost,
		path:   "/persons",
		form:   url.Values{"name": {"Tamar Lomidze"}, "active": {"false", "true"}},
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	tr := triggers(t, rr)
	assert.Contains(t, tr, "persons:reload")
	assert.Contains(t, tr, "dialog:close")
	assert.Empty(t, rr.Body.String())

	rr = f.do(t, request{path: "/persons?apply=1&name=tamar", cookie: cookie, htmx: true})
	assert.Contains(t, rr.Body.String(), "Tamar Lomidze")
}

func TestPersons_UpdateThroughPut(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons/1/edit", cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Edit person")
	assert.Contains(t, rr.Body.String(), `hx-put="/persons/1"`)

	rr = f.do(t, request{
		method: http.MethodPut,
		path:   "/persons/1",
		form:   url.Values{"name": {"Giorgi B."}, "active": {"true"}},
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, triggers(t, rr), "persons:reload")
}

func TestPersons_DeleteNeedsConfirmation(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons/1/delete", cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Delete Giorgi Beridze?")

	rr = f.do(t, request{method: http.MethodPost, path: "/persons/1/delete", form: url.Values{}, cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, request{method: http.MethodPost, path: "/persons/1/delete", form: url.Values{"confirm": {"yes"}}, cookie: cookie, htmx: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, triggers(t, rr), "persons:reload")

	rr = f.do(t, request{path: "/persons/1/edit", cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPersons_BadIDIsRejected(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons/abc/edit", cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid record id")
}

func TestWrites_UsersAreRedirectedWithoutCallingTheAPI(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "user", "user")
	before := f.api.TotalCalls()

	writes := []request{
		{method: http.MethodGet, path: "/persons/new"},
		{method: http.MethodGet, path: "/persons/1/edit"},
		{method: http.MethodPost, path: "/categories", form: url.Values{"name": {"Tasting"}, "color": {"#112233"}}},
		{method: http.MethodPost, path: "/persons/1/archive"},
		{method: http.MethodGet, path: "/entries/new"},
		{method: http.MethodPost, path: "/events/preview", form: url.Values{"lunchRate": {"25"}}},
		{method: http.MethodGet, path: "/events/1/delete"},
	}
	for _, req := range writes {
		req.cookie = cookie
		req.htmx = true
		rr := f.do(t, req)
		assert.Equal(t, http.StatusOK, rr.Code, req.path)
		assert.Equal(t, "/dashboard", rr.Header().Get("HX-Redirect"), req.path)
	}
	assert.Equal(t, before, f.api.TotalCalls())

	// The session survives the refusal.
	rr := f.do(t, request{path: "/categories", cookie: cookie})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLists_UsersSeeNoWriteActions(t *testing.T) {
	f := newConsole(t)
	user := f.login(t, "user", "user")
	admin := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/persons", cookie: user})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Nino Kapanadze")
	assert.NotContains(t, body, `hx-get="/persons/new"`)
	assert.NotContains(t, body, `hx-get="/persons/1/edit"`)
	assert.NotContains(t, body, `hx-post="/persons/1/archive"`)
	assert.NotContains(t, body, `hx-get="/persons/1/delete"`)

	rr = f.do(t, request{path: "/categories", cookie: user})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `hx-get="/categories/new"`)

	rr = f.do(t, request{path: "/persons", cookie: admin})
	require.Equal(t, http.StatusOK, rr.Code)
	body = rr.Body.String()
	assert.Contains(t, body, `hx-get="/persons/new"`)
	assert.Contains(t, body, `hx-get="/persons/1/edit"`)
}

func TestLists_FiltersReloadOnChange(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	for _, path := range []string{"/persons", "/categories", "/entries", "/events"} {
		rr := f.do(t, request{path: path, cookie: cookie})
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), `hx-trigger="change, submit"`, path)
	}
	rr := f.do(t, request{path: "/persons", cookie: cookie})
	assert.Contains(t, rr.Body.String(), `hx-trigger="keyup changed delay:400ms"`)
}

func TestEvents_EmptyPeriodStillShowsTotals(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{
		path:   "/events?apply=1&dateFrom=1990-01-01&dateTo=1990-01-31",
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "No events in this period.")
	assert.Contains(t, body, "<tfoot>")
	assert.Contains(t, body, "0.00")
}

func TestEntries_EmptyPeriodStillShowsTotals(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{
		path:   "/entries?apply=1&dateFrom=1990-01-01&dateTo=1990-01-31",
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<tfoot>")
	assert.Contains(t, rr.Body.String(), "0.00")
}

func TestRejectedToken_LogsOut(t *testing.T) {
	f := newConsole(t)
	userCookie := f.login(t, "user", "user")

	admin, err := f.api.Login(context.Background(), core.Credentials{Username: "admin", Password: "admin"})
	require.NoError(t, err)
	_, err = f.api.DeactivateUser(winery.WithToken(context.Background(), admin.AccessToken), 2)
	require.NoError(t, err)

	rr := f.do(t, request{path: "/persons", cookie: userCookie, htmx: true})
	assert.Equal(t, "/login", rr.Header().Get("HX-Redirect"))

	rr = f.do(t, request{path: "/dashboard", cookie: userCookie})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestUsers_LastAdminCannotBeDeleted(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/users", cookie: cookie})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Last active admin")

	rr = f.do(t, request{method: http.MethodPost, path: "/users/1/delete", form: url.Values{"confirm": {"yes"}}, cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "last active admin")
}

func TestEvents_PreviewComputesTotals(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{
		method: http.MethodPost,
		path:   "/events/preview",
		form: url.Values{
			"adultLunchGuests":   {"4"},
			"lunchRate":          {"25"},
			"adultTastingGuests": {"2"},
			"tastingRate":        {"15"},
		},
		cookie: cookie,
		htmx:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "100.00")
	assert.Contains(t, rr.Body.String(), "130.00")
}

func TestAuditTrail_RejectsUnknownTables(t *testing.T) {
	f := newConsole(t)
	cookie := f.login(t, "admin", "admin")

	rr := f.do(t, request{path: "/audit/secrets/1", cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, request{path: "/audit/persons/1", cookie: cookie, htmx: true})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "History of persons #1")
}

func TestPreferences_WorkWithoutLogin(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{method: http.MethodPost, path: "/prefs/theme", form: url.Values{"theme": {"dark"}}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	rr = f.do(t, request{path: "/login", cookie: cookies[0]})
	assert.Contains(t, rr.Body.String(), `data-theme="dark"`)

	rr = f.do(t, request{method: http.MethodPost, path: "/prefs/theme", form: url.Values{"theme": {"neon"}}, cookie: cookies[0]})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, request{method: http.MethodPost, path: "/prefs/language", form: url.Values{"language": {"ka"}}, cookie: cookies[0], htmx: true})
	assert.Equal(t, "true", rr.Header().Get("HX-Refresh"))
	rr = f.do(t, request{path: "/login", cookie: cookies[0]})
	assert.Contains(t, rr.Body.String(), `lang="ka"`)
}

func TestHealthAndReadiness(t *testing.T) {
	f := newConsole(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(t, request{path: path})
		require.Equal(t, http.StatusOK, rr.Code, path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.NotEmpty(t, body["status"])
	}
}

func TestUnknownPathsLandOnTheDashboard(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{path: "/no/such/page"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
}

func TestSecurityHeadersAreSet(t *testing.T) {
	f := newConsole(t)

	rr := f.do(t, request{path: "/login"})
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestLogsStream_StopsPollingWhenTheClientLeaves(t *testing.T) {
	api := memory.New(memory.WithPasswordCost(bcrypt.MinCost))
	sessions := session.NewManager(session.NewMemoryStore(), api, time.Hour, nil)
	srv, err := NewServer(":0", Config{LogsRefresh: 10 * time.Millisecond}, Deps{API: api, Sessions: sessions})
	require.NoError(t, err)
	f := &consoleFixture{api: api, server: srv}
	cookie := f.login(t, "admin", "admin")
	baseline := poll.Active()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/logs/stream", nil).WithContext(ctx)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Handler.ServeHTTP(rr, req)
	}()

	require.Eventually(t, func() bool { return poll.Active() > baseline }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return api.Calls("ListLogs") > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not return after the client left")
	}
	assert.Equal(t, baseline, poll.Active())
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
}
