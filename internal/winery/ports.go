// Package winery defines the ports the console uses to talk to the winery
// REST API. Adapters live in the rest and memory subpackages.
package winery

import (
	"context"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
)

type ctxKey struct{}

// WithToken returns ctx carrying the bearer token for outgoing API calls.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

// TokenFrom returns the bearer token carried by ctx, or "".
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxKey{}).(string)
	return token
}

type AuthAPI interface {
	Login(ctx context.Context, creds core.Credentials) (core.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (core.AuthResponse, error)
}

type PersonAPI interface {
	ListPersons(ctx context.Context, req listing.Request, f filter.PersonFilter) (listing.Page[core.Person], error)
	GetPerson(ctx context.Context, id int64) (core.Person, error)
	CreatePerson(ctx context.Context, p core.Person) (core.Person, error)
	UpdatePerson(ctx context.Context, id int64, p core.Person) (core.Person, error)
	ArchivePerson(ctx context.Context, id int64) (core.Person, error)
	DeletePerson(ctx context.Context, id int64) error
}

type CategoryAPI interface {
	ListCategories(ctx context.Context, req listing.Request, f filter.CategoryFilter) (listing.Page[core.Category], error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, id int64, c core.Category) (core.Category, error)
	ArchiveCategory(ctx context.Context, id int64) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type EntryAPI interface {
	ListEntries(ctx context.Context, req listing.Request, f filter.EntryFilter) (listing.Page[core.Entry], error)
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error)
	UpdateEntry(ctx context.Context, id int64, e core.Entry) (core.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

type EventAPI interface {
	ListEvents(ctx context.Context, req listing.Request, f filter.EventFilter) (listing.Page[core.Event], error)
	GetEvent(ctx context.Context, id int64) (core.Event, error)
	CreateEvent(ctx context.Context, e core.Event) (core.Event, error)
	UpdateEvent(ctx context.Context, id int64, e core.Event) (core.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

type UserAPI interface {
	ListUsers(ctx context.Context, req listing.Request, f filter.UserFilter) (listing.Page[core.User], error)
	// ListAll returns every user, across all pages.
	ListAll(ctx context.Context) ([]core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	UpdateUser(ctx context.Context, id int64, u core.User) (core.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ActivateUser(ctx context.Context, id int64) (core.User, error)
	DeactivateUser(ctx context.Context, id int64) (core.User, error)
}

type AuditAPI interface {
	ListAudit(ctx context.Context, req listing.Request, f filter.AuditFilter) (listing.Page[core.AuditLog], error)
	EntityAudit(ctx context.Context, tableName string, recordID int64, req listing.Request) (listing.Page[core.AuditLog], error)
}

type LogAPI interface {
	ListLogs(ctx context.Context, f filter.LogFilter) (core.LogPage, error)
	LogStats(ctx context.Context) (core.LogStats, error)
	LogLevels(ctx context.Context) ([]string, error)
}

type ReportAPI interface {
	Summary(ctx context.Context, q SummaryQuery) (core.ReportSummary, error)
}

// SummaryQuery selects the period and optional person/category of a report.
type SummaryQuery struct {
	FromDate   core.Date
	ToDate     core.Date
	PersonID   int64
	CategoryID int64
}

// API is everything the console consumes.
type API interface {
	AuthAPI
	PersonAPI
	CategoryAPI
	EntryAPI
	EventAPI
	UserAPI
	AuditAPI
	LogAPI
	ReportAPI
}
