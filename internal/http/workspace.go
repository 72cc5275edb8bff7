package http

import (
	"context"
	"time"

	"winery/internal/cache"
	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/winery"
)

// Default page requests per screen.
var (
	personsRequest    = listing.Request{Size: 10, Sort: listing.Sort{Field: "id"}}
	categoriesRequest = listing.Request{Size: 10, Sort: listing.Sort{Field: "id"}}
	entriesRequest    = listing.Request{Size: 15, Sort: listing.Sort{Field: "date", Desc: true}}
	eventsRequest     = listing.Request{Size: 10, Sort: listing.Sort{Field: "visitDate", Desc: true}}
	usersRequest      = listing.Request{Size: 10, Sort: listing.Sort{Field: "username"}, Style: listing.SortSplit}
	auditRequest      = listing.Request{Size: 20, Sort: listing.Sort{Field: "changedAt", Desc: true}, Style: listing.SortSplit}
	logsRequest       = listing.Request{Size: filter.DefaultLogLimit}
)

// workspace is the table state of one browser session. It survives
// navigation between screens so returning to a table shows the same filter
// and page.
type workspace struct {
	persons    *listing.View[core.Person, filter.PersonFilter]
	categories *listing.View[core.Category, filter.CategoryFilter]
	entries    *listing.View[core.Entry, filter.EntryFilter]
	events     *listing.View[core.Event, filter.EventFilter]
	users      *listing.View[core.User, filter.UserFilter]
	audit      *listing.View[core.AuditLog, filter.AuditFilter]
	logs       *listing.View[core.LogEntry, filter.LogFilter]
}

func newWorkspace(api winery.API, now time.Time) *workspace {
	return &workspace{
		persons:    listing.NewView[core.Person, filter.PersonFilter](api.ListPersons, personsRequest, filter.PersonFilter{}),
		categories: listing.NewView[core.Category, filter.CategoryFilter](api.ListCategories, categoriesRequest, filter.CategoryFilter{}),
		entries:    listing.NewView[core.Entry, filter.EntryFilter](api.ListEntries, entriesRequest, filter.EntryMonth(now)),
		events:     listing.NewView[core.Event, filter.EventFilter](api.ListEvents, eventsRequest, filter.EventMonth(now)),
		users:      listing.NewView[core.User, filter.UserFilter](api.ListUsers, usersRequest, filter.UserFilter{}),
		audit:      listing.NewView[core.AuditLog, filter.AuditFilter](api.ListAudit, auditRequest, filter.AuditMonth(now)),
		logs:       listing.NewView[core.LogEntry, filter.LogFilter](logLoader(api), logsRequest, filter.LogFilter{}),
	}
}

// logLoader adapts the unpaged logs endpoint to a single-page list.
func logLoader(api winery.LogAPI) listing.Loader[core.LogEntry, filter.LogFilter] {
	return func(ctx context.Context, req listing.Request, f filter.LogFilter) (listing.Page[core.LogEntry], error) {
		lp, err := api.ListLogs(ctx, f)
		if err != nil {
			return listing.Page[core.LogEntry]{}, err
		}
		return listing.Page[core.LogEntry]{
			Content:       lp.Logs,
			TotalElements: int64(len(lp.Logs)),
			Size:          f.EffectiveLimit(),
		}, nil
	}
}

// workspaces hands out one workspace per session id and forgets it after the
// session idle timeout.
type workspaces struct {
	store  *cache.LRUCache[*workspace]
	loader *cache.Loader[*workspace]
}

func newWorkspaces(api winery.API, maxSessions int, idle time.Duration, now func() time.Time) *workspaces {
	store := cache.NewLRUCache[*workspace](maxSessions, idle,
		cache.WithSlidingExpiry[*workspace](),
		cache.WithClock[*workspace](now),
	)
	return &workspaces{
		store: store,
		loader: cache.NewLoader[*workspace](store, func(_ context.Context, _ string) (*workspace, error) {
			return newWorkspace(api, now()), nil
		}),
	}
}

func (w *workspaces) get(ctx context.Context, sessionID string) (*workspace, error) {
	return w.loader.Get(ctx, sessionID)
}

// drop forgets the workspace of a session that logged out.
func (w *workspaces) drop(sessionID string) {
	w.loader.Invalidate(sessionID)
}
