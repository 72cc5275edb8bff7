// Package filter holds the per-screen filter structs. Each is an immutable
// value with a pure mapping to the query parameters the REST API expects.
package filter

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"winery/internal/core"
)

// LevelAll selects every log level.
const LevelAll = "ALL"

// DefaultLogLimit is the number of log lines requested when none is chosen.
const DefaultLogLimit = 100

var ErrInvalidFilter = errors.New("invalid filter")

// CurrentMonth returns the first and last calendar day of now's month.
func CurrentMonth(now time.Time) (from, to core.Date) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return core.DateOf(first), core.DateOf(last)
}

type EntryFilter struct {
	DateFrom    core.Date
	DateTo      core.Date
	PersonIDs   []int64
	CategoryIDs []int64
}

// EntryMonth is the default Entries filter: the month containing now.
func EntryMonth(now time.Time) EntryFilter {
	from, to := CurrentMonth(now)
	return EntryFilter{DateFrom: from, DateTo: to}
}

func (f EntryFilter) Params() url.Values {
	v := url.Values{}
	setDate(v, "dateFrom", f.DateFrom)
	setDate(v, "dateTo", f.DateTo)
	setIDs(v, "person.in", f.PersonIDs)
	setIDs(v, "category.in", f.CategoryIDs)
	return v
}

func (f EntryFilter) IsZero() bool {
	return f.DateFrom.IsZero() && f.DateTo.IsZero() && len(f.PersonIDs) == 0 && len(f.CategoryIDs) == 0
}

// Contains reports whether e matches the filter. Used by in-process backends.
func (f EntryFilter) Contains(e core.Entry) bool {
	if !inRange(e.Date, f.DateFrom, f.DateTo) {
		return false
	}
	if len(f.PersonIDs) > 0 && !slices.Contains(f.PersonIDs, e.PersonID) {
		return false
	}
	if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, e.CategoryID) {
		return false
	}
	return true
}

type EventFilter struct {
	DateFrom      core.Date
	DateTo        core.Date
	Company       string
	ContactName   string
	SpecialPrice  *bool
	Masterclass   *bool
	InvoiceIssued *bool
}

func EventMonth(now time.Time) EventFilter {
	from, to := CurrentMonth(now)
	return EventFilter{DateFrom: from, DateTo: to}
}

func (f EventFilter) Params() url.Values {
	v := url.Values{}
	setDate(v, "dateFrom", f.DateFrom)
	setDate(v, "dateTo", f.DateTo)
	setText(v, "company", f.Company)
	setText(v, "contactName", f.ContactName)
	setBool(v, "specialPrice", f.SpecialPrice)
	setBool(v, "masterclass", f.Masterclass)
	setBool(v, "invoiceIssued", f.InvoiceIssued)
	return v
}

func (f EventFilter) Contains(e core.Event) bool {
	if !inRange(e.VisitDate, f.DateFrom, f.DateTo) {
		return false
	}
	if !containsFold(e.Company, f.Company) || !containsFold(e.ContactName, f.ContactName) {
		return false
	}
	return boolMatches(f.SpecialPrice, e.SpecialPriceEnabled) &&
		boolMatches(f.Masterclass, e.Masterclass) &&
		boolMatches(f.InvoiceIssued, e.InvoiceIssued)
}

type AuditFilter struct {
	TableName string
	RecordID  int64
	ChangedBy string
	StartDate core.Date
	EndDate   core.Date
}

func AuditMonth(now time.Time) AuditFilter {
	from, to := CurrentMonth(now)
	return AuditFilter{StartDate: from, EndDate: to}
}

// Params sends the date range as local date-times covering whole days.
func (f AuditFilter) Params() url.Values {
	v := url.Values{}
	setText(v, "tableName", f.TableName)
	if f.RecordID > 0 {
		v.Set("recordId", strconv.FormatInt(f.RecordID, 10))
	}
	setText(v, "changedBy", f.ChangedBy)
	if !f.StartDate.IsZero() {
		v.Set("startDate", f.StartDate.String()+"T00:00:00")
	}
	if !f.EndDate.IsZero() {
		v.Set("endDate", f.EndDate.String()+"T23:59:59")
	}
	return v
}

func (f AuditFilter) Contains(a core.AuditLog) bool {
	if f.TableName != "" && !strings.EqualFold(a.TableName, f.TableName) {
		return false
	}
	if f.RecordID > 0 && a.RecordID != f.RecordID {
		return false
	}
	if !containsFold(a.ChangedBy, f.ChangedBy) {
		return false
	}
	return inRange(core.DateOf(a.ChangedAt.Time), f.StartDate, f.EndDate)
}

type PersonFilter struct {
	Name   string
	Active *bool
}

func (f PersonFilter) Params() url.Values {
	v := url.Values{}
	setText(v, "name", f.Name)
	setBool(v, "active", f.Active)
	return v
}

func (f PersonFilter) Contains(p core.Person) bool {
	return containsFold(p.Name, f.Name) && boolMatches(f.Active, p.Active)
}

type CategoryFilter struct {
	Name   string
	Active *bool
}

func (f CategoryFilter) Params() url.Values {
	v := url.Values{}
	setText(v, "name", f.Name)
	setBool(v, "active", f.Active)
	return v
}

func (f CategoryFilter) Contains(c core.Category) bool {
	return containsFold(c.Name, f.Name) && boolMatches(f.Active, c.Active)
}

type UserFilter struct {
	Username string
	Role     core.Role
	Active   *bool
}

func (f UserFilter) Params() url.Values {
	v := url.Values{}
	setText(v, "username", f.Username)
	setText(v, "role", string(f.Role))
	setBool(v, "active", f.Active)
	return v
}

func (f UserFilter) Contains(u core.User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	return containsFold(u.Username, f.Username) && boolMatches(f.Active, u.Active)
}

// LogFilter is the Logs screen filter. The zero value means every level,
// no search and the default limit.
type LogFilter struct {
	Level  string
	Search string
	Limit  int
}

func (f LogFilter) EffectiveLevel() string {
	if f.Level == "" {
		return LevelAll
	}
	return f.Level
}

func (f LogFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLogLimit
	}
	return f.Limit
}

// Params always sends level and limit, since the API defaults level to INFO.
func (f LogFilter) Params() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(f.EffectiveLimit()))
	v.Set("level", f.EffectiveLevel())
	setText(v, "search", f.Search)
	return v
}

func (f LogFilter) Contains(e core.LogEntry) bool {
	if lvl := f.EffectiveLevel(); lvl != LevelAll && string(e.Level) != lvl {
		return false
	}
	search := strings.TrimSpace(f.Search)
	return search == "" || containsFold(e.Message, search) || containsFold(e.Logger, search)
}

// LogLimits are the choices offered by the Logs screen.
func LogLimits() []int {
	return []int{50, 100, 200, 500}
}

// ParseEntryFilter reads a submitted Entries filter form.
func ParseEntryFilter(v url.Values) (EntryFilter, error) {
	var f EntryFilter
	var errs []error
	f.DateFrom = parseDate(v, "dateFrom", &errs)
	f.DateTo = parseDate(v, "dateTo", &errs)
	f.PersonIDs = parseIDs(v, "person", &errs)
	f.CategoryIDs = parseIDs(v, "category", &errs)
	return f, joinErrs(errs)
}

func ParseEventFilter(v url.Values) (EventFilter, error) {
	var f EventFilter
	var errs []error
	f.DateFrom = parseDate(v, "dateFrom", &errs)
	f.DateTo = parseDate(v, "dateTo", &errs)
	f.Company = strings.TrimSpace(v.Get("company"))
	f.ContactName = strings.TrimSpace(v.Get("contactName"))
	f.SpecialPrice = parseBool(v, "specialPrice", &errs)
	f.Masterclass = parseBool(v, "masterclass", &errs)
	f.InvoiceIssued = parseBool(v, "invoiceIssued", &errs)
	return f, joinErrs(errs)
}

func ParseAuditFilter(v url.Values) (AuditFilter, error) {
	var f AuditFilter
	var errs []error
	f.TableName = strings.TrimSpace(v.Get("tableName"))
	if s := strings.TrimSpace(v.Get("recordId")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 0 {
			errs = append(errs, fmt.Errorf("%w: recordId %q", ErrInvalidFilter, s))
		} else {
			f.RecordID = id
		}
	}
	f.ChangedBy = strings.TrimSpace(v.Get("changedBy"))
	f.StartDate = parseDate(v, "startDate", &errs)
	f.EndDate = parseDate(v, "endDate", &errs)
	return f, joinErrs(errs)
}

func ParsePersonFilter(v url.Values) (PersonFilter, error) {
	var errs []error
	f := PersonFilter{Name: strings.TrimSpace(v.Get("name")), Active: parseBool(v, "active", &errs)}
	return f, joinErrs(errs)
}

func ParseCategoryFilter(v url.Values) (CategoryFilter, error) {
	var errs []error
	f := CategoryFilter{Name: strings.TrimSpace(v.Get("name")), Active: parseBool(v, "active", &errs)}
	return f, joinErrs(errs)
}

func ParseUserFilter(v url.Values) (UserFilter, error) {
	var errs []error
	f := UserFilter{
		Username: strings.TrimSpace(v.Get("username")),
		Role:     core.Role(strings.ToUpper(strings.TrimSpace(v.Get("role")))),
		Active:   parseBool(v, "active", &errs),
	}
	if f.Role != "" && !f.Role.IsValid() {
		errs = append(errs, fmt.Errorf("%w: role %q", ErrInvalidFilter, f.Role))
		f.Role = ""
	}
	return f, joinErrs(errs)
}

func ParseLogFilter(v url.Values) (LogFilter, error) {
	var errs []error
	f := LogFilter{
		Level:  strings.ToUpper(strings.TrimSpace(v.Get("level"))),
		Search: strings.TrimSpace(v.Get("search")),
	}
	if f.Level == LevelAll {
		f.Level = ""
	}
	if f.Level != "" && !core.LogLevel(f.Level).IsValid() {
		errs = append(errs, fmt.Errorf("%w: level %q", ErrInvalidFilter, f.Level))
		f.Level = ""
	}
	if s := strings.TrimSpace(v.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%w: limit %q", ErrInvalidFilter, s))
		} else if n != DefaultLogLimit {
			f.Limit = n
		}
	}
	return f, joinErrs(errs)
}

func setDate(v url.Values, key string, d core.Date) {
	if !d.IsZero() {
		v.Set(key, d.String())
	}
}

func setText(v url.Values, key, s string) {
	if s = strings.TrimSpace(s); s != "" {
		v.Set(key, s)
	}
}

func setBool(v url.Values, key string, b *bool) {
	if b != nil {
		v.Set(key, strconv.FormatBool(*b))
	}
}

func setIDs(v url.Values, key string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	v.Set(key, strings.Join(parts, ","))
}

func parseDate(v url.Values, key string, errs *[]error) core.Date {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, s))
	}
	return d
}

func parseBool(v url.Values, key string, errs *[]error) *bool {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, s))
		return nil
	}
	return &b
}

// parseIDs accepts repeated keys as well as comma-joined values.
func parseIDs(v url.Values, key string, errs *[]error) []int64 {
	var ids []int64
	for _, raw := range v[key] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				*errs = append(*errs, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, s))
				continue
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func inRange(d, from, to core.Date) bool {
	if !from.IsZero() && d.Before(from.Time) {
		return false
	}
	if !to.IsZero() && d.After(to.Time) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	sub = strings.TrimSpace(sub)
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func boolMatches(want *bool, got bool) bool {
	return want == nil || *want == got
}

// Bool returns a pointer to b, for tri-state filter fields.
func Bool(b bool) *bool { return &b }
