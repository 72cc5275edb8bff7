package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/winery"
)

var _ winery.API = (*Client)(nil)

func idPath(resource string, id int64, suffix ...string) string {
	p := "/" + resource + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// Login posts credentials. 400 and 401 from the auth endpoint both mean the
// credentials were rejected.
func (c *Client) Login(ctx context.Context, creds core.Credentials) (core.AuthResponse, error) {
	var out core.AuthResponse
	err := c.sendJSON(ctx, http.MethodPost, "/auth/login", creds, &out)
	if err != nil {
		return core.AuthResponse{}, authError(err)
	}
	if out.AccessToken == "" {
		return core.AuthResponse{}, fmt.Errorf("login: %w", core.ErrInvalidCredentials)
	}
	return out, nil
}

// Refresh exchanges the raw refresh token, sent as the request body.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.AuthResponse, error) {
	var out core.AuthResponse
	err := c.sendJSON(ctx, http.MethodPost, "/auth/refresh", rawBody(refreshToken), &out)
	if err != nil {
		return core.AuthResponse{}, authError(err)
	}
	return out, nil
}

func authError(err error) error {
	var apiErr *core.APIError
	if errors.Is(err, core.ErrUnauthorized) || (errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest) {
		return core.ErrInvalidCredentials
	}
	return err
}

func (c *Client) ListPersons(ctx context.Context, req listing.Request, f filter.PersonFilter) (listing.Page[core.Person], error) {
	return getPage[core.Person](ctx, c, "/"+core.ResourcePersons, req, listing.Merge(req, f))
}

func (c *Client) GetPerson(ctx context.Context, id int64) (core.Person, error) {
	return get[core.Person](ctx, c, idPath(core.ResourcePersons, id), nil)
}

func (c *Client) CreatePerson(ctx context.Context, p core.Person) (core.Person, error) {
	return send[core.Person](ctx, c, http.MethodPost, "/"+core.ResourcePersons, p)
}

func (c *Client) UpdatePerson(ctx context.Context, id int64, p core.Person) (core.Person, error) {
	return send[core.Person](ctx, c, http.MethodPut, idPath(core.ResourcePersons, id), p)
}

func (c *Client) ArchivePerson(ctx context.Context, id int64) (core.Person, error) {
	return send[core.Person](ctx, c, http.MethodPut, idPath(core.ResourcePersons, id, "archive"), nil)
}

func (c *Client) DeletePerson(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, idPath(core.ResourcePersons, id), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context, req listing.Request, f filter.CategoryFilter) (listing.Page[core.Category], error) {
	return getPage[core.Category](ctx, c, "/"+core.ResourceCategories, req, listing.Merge(req, f))
}

func (c *Client) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return get[core.Category](ctx, c, idPath(core.ResourceCategories, id), nil)
}

func (c *Client) CreateCategory(ctx context.Context, cat core.Category) (core.Category, error) {
	return send[core.Category](ctx, c, http.MethodPost, "/"+core.ResourceCategories, cat)
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, cat core.Category) (core.Category, error) {
	return send[core.Category](ctx, c, http.MethodPut, idPath(core.ResourceCategories, id), cat)
}

func (c *Client) ArchiveCategory(ctx context.Context, id int64) (core.Category, error) {
	return send[core.Category](ctx, c, http.MethodPut, idPath(core.ResourceCategories, id, "archive"), nil)
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, idPath(core.ResourceCategories, id), nil, nil)
}

func (c *Client) ListEntries(ctx context.Context, req listing.Request, f filter.EntryFilter) (listing.Page[core.Entry], error) {
	return getPage[core.Entry](ctx, c, "/"+core.ResourceEntries, req, listing.Merge(req, f))
}

func (c *Client) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return get[core.Entry](ctx, c, idPath(core.ResourceEntries, id), nil)
}

func (c *Client) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	return send[core.Entry](ctx, c, http.MethodPost, "/"+core.ResourceEntries, e)
}

func (c *Client) UpdateEntry(ctx context.Context, id int64, e core.Entry) (core.Entry, error) {
	return send[core.Entry](ctx, c, http.MethodPut, idPath(core.ResourceEntries, id), e)
}

func (c *Client) DeleteEntry(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, idPath(core.ResourceEntries, id), nil, nil)
}

func (c *Client) ListEvents(ctx context.Context, req listing.Request, f filter.EventFilter) (listing.Page[core.Event], error) {
	return getPage[core.Event](ctx, c, "/"+core.ResourceEvents, req, listing.Merge(req, f))
}

func (c *Client) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	return get[core.Event](ctx, c, idPath(core.ResourceEvents, id), nil)
}

func (c *Client) CreateEvent(ctx context.Context, e core.Event) (core.Event, error) {
	return send[core.Event](ctx, c, http.MethodPost, "/"+core.ResourceEvents, e)
}

func (c *Client) UpdateEvent(ctx context.Context, id int64, e core.Event) (core.Event, error) {
	return send[core.Event](ctx, c, http.MethodPut, idPath(core.ResourceEvents, id), e)
}

func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, idPath(core.ResourceEvents, id), nil, nil)
}

func (c *Client) ListUsers(ctx context.Context, req listing.Request, f filter.UserFilter) (listing.Page[core.User], error) {
	req.Style = listing.SortSplit
	return getPage[core.User](ctx, c, "/"+core.ResourceUsers, req, listing.Merge(req, f))
}

// maxUserPages bounds ListAll against a server whose paging never ends.
const maxUserPages = 100

// ListAll walks every page of /users. The walk follows the page indexes it
// requested, so a server that keeps echoing the same page still terminates.
func (c *Client) ListAll(ctx context.Context) ([]core.User, error) {
	const size = 100
	req := listing.Request{Size: size, Sort: listing.Sort{Field: "id"}, Style: listing.SortSplit}
	var all []core.User
	for ; req.Page < maxUserPages; req.Page++ {
		page, err := c.ListUsers(ctx, req, filter.UserFilter{})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Content...)
		if page.Last || page.IsEmpty() || req.Page+1 >= page.TotalPages {
			return all, nil
		}
	}
	return nil, fmt.Errorf("list users: more than %d pages", maxUserPages)
}

func (c *Client) GetUser(ctx context.Context, id int64) (core.User, error) {
	return get[core.User](ctx, c, idPath(core.ResourceUsers, id), nil)
}

func (c *Client) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	return send[core.User](ctx, c, http.MethodPost, "/"+core.ResourceUsers, u)
}

func (c *Client) UpdateUser(ctx context.Context, id int64, u core.User) (core.User, error) {
	return send[core.User](ctx, c, http.MethodPut, idPath(core.ResourceUsers, id), u)
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, idPath(core.ResourceUsers, id), nil, nil)
}

func (c *Client) ActivateUser(ctx context.Context, id int64) (core.User, error) {
	return send[core.User](ctx, c, http.MethodPatch, idPath(core.ResourceUsers, id, "activate"), nil)
}

func (c *Client) DeactivateUser(ctx context.Context, id int64) (core.User, error) {
	return send[core.User](ctx, c, http.MethodPatch, idPath(core.ResourceUsers, id, "deactivate"), nil)
}

func (c *Client) ListAudit(ctx context.Context, req listing.Request, f filter.AuditFilter) (listing.Page[core.AuditLog], error) {
	req.Style = listing.SortSplit
	return getPage[core.AuditLog](ctx, c, "/audit", req, listing.Merge(req, f))
}

func (c *Client) EntityAudit(ctx context.Context, tableName string, recordID int64, req listing.Request) (listing.Page[core.AuditLog], error) {
	path := "/audit/entity/" + url.PathEscape(tableName) + "/" + strconv.FormatInt(recordID, 10)
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(req.Size))
	return getPage[core.AuditLog](ctx, c, path, req, q)
}

func (c *Client) ListLogs(ctx context.Context, f filter.LogFilter) (core.LogPage, error) {
	var out core.LogPage
	if err := c.getJSON(ctx, "/logs", f.Params(), &out); err != nil {
		return core.LogPage{}, err
	}
	if out.Logs == nil {
		out.Logs = []core.LogEntry{}
	}
	return out, nil
}

func (c *Client) LogStats(ctx context.Context) (core.LogStats, error) {
	return get[core.LogStats](ctx, c, "/logs/stats", nil)
}

func (c *Client) LogLevels(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, c, "/logs/levels", nil)
}

func (c *Client) Summary(ctx context.Context, q winery.SummaryQuery) (core.ReportSummary, error) {
	v := url.Values{}
	v.Set("fromDate", q.FromDate.String())
	v.Set("toDate", q.ToDate.String())
	if q.PersonID > 0 {
		v.Set("personId", strconv.FormatInt(q.PersonID, 10))
	}
	if q.CategoryID > 0 {
		v.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}
	return get[core.ReportSummary](ctx, c, "/reports/summary", v)
}
