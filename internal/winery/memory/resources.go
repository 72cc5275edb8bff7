package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/winery"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// rows returns the map values ordered by id.
func rows[T any](m map[int64]T) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func where[T any](items []T, keep func(T) bool) []T {
	out := items[:0:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// sortBy orders items by the named field, falling back to id so equal keys
// keep a stable order in the requested direction.
func sortBy[T any](items []T, s listing.Sort, fallback string, key func(T, string) any) {
	field := s.Field
	if field == "" {
		field = fallback
	}
	slices.SortStableFunc(items, func(x, y T) int {
		c := compareAny(key(x, field), key(y, field))
		if c == 0 {
			c = compareAny(key(x, "id"), key(y, "id"))
		}
		if s.Desc {
			return -c
		}
		return c
	})
}

func compareAny(x, y any) int {
	switch xv := x.(type) {
	case string:
		yv, _ := y.(string)
		return strings.Compare(strings.ToLower(xv), strings.ToLower(yv))
	case int64:
		yv, _ := y.(int64)
		return cmp.Compare(xv, yv)
	case int:
		yv, _ := y.(int)
		return cmp.Compare(xv, yv)
	case core.Decimal:
		yv, _ := y.(core.Decimal)
		return cmp.Compare(xv, yv)
	case bool:
		yv, _ := y.(bool)
		switch {
		case xv == yv:
			return 0
		case !xv:
			return -1
		}
		return 1
	case time.Time:
		yv, _ := y.(time.Time)
		return xv.Compare(yv)
	}
	return 0
}

func personKey(p core.Person, field string) any {
	switch field {
	case "name":
		return p.Name
	case "active":
		return p.Active
	case "createdAt":
		return p.CreatedAt.Time
	case "updatedAt":
		return p.UpdatedAt.Time
	}
	return p.ID
}

func categoryKey(c core.Category, field string) any {
	switch field {
	case "name":
		return c.Name
	case "color":
		return c.Color
	case "active":
		return c.Active
	case "createdAt":
		return c.CreatedAt.Time
	}
	return c.ID
}

func entryKey(e core.Entry, field string) any {
	switch field {
	case "date":
		return e.Date.Time
	case "description":
		return e.Description
	case "personName", "person.name":
		return e.PersonName
	case "categoryName", "category.name":
		return e.CategoryName
	case "workHours":
		return e.WorkHours
	case "amountPaid":
		return e.AmountPaid
	case "amountDue":
		return e.AmountDue
	}
	return e.ID
}

func eventKey(e core.Event, field string) any {
	switch field {
	case "visitDate":
		return e.VisitDate.Time
	case "visitTime":
		return e.VisitTime
	case "company":
		return e.Company
	case "contactName":
		return e.ContactName
	case "adultLunchGuests":
		return e.AdultLunchGuests
	case "adultTastingGuests":
		return e.AdultTastingGuests
	case "grandTotal":
		return e.GrandTotal
	case "createdTimestamp":
		return e.CreatedTimestamp.Time
	}
	return e.ID
}

func userKey(u core.User, field string) any {
	switch field {
	case "username":
		return u.Username
	case "role":
		return string(u.Role)
	case "active":
		return u.Active
	case "createdAt":
		return u.CreatedAt.Time
	}
	return u.ID
}

func auditKey(l core.AuditLog, field string) any {
	switch field {
	case "changedAt":
		return l.ChangedAt.Time
	case "tableName":
		return l.TableName
	case "recordId":
		return l.RecordID
	case "action":
		return string(l.Action)
	case "changedBy":
		return l.ChangedBy
	}
	return l.ID
}

// Persons

func (a *API) ListPersons(ctx context.Context, req listing.Request, f filter.PersonFilter) (listing.Page[core.Person], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListPersons", false); err != nil {
		return listing.Page[core.Person]{}, err
	}
	all := where(rows(a.persons), f.Contains)
	sortBy(all, req.Sort, "id", personKey)
	return listing.Slice(all, req), nil
}

func (a *API) GetPerson(ctx context.Context, id int64) (core.Person, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "GetPerson", false); err != nil {
		return core.Person{}, err
	}
	p, ok := a.persons[id]
	if !ok {
		return core.Person{}, notFound("Person", id)
	}
	return p, nil
}

func (a *API) validatePerson(p core.Person, id int64) error {
	if strings.TrimSpace(p.Name) == "" {
		return badRequest("name: must not be blank")
	}
	for _, other := range a.persons {
		if other.ID != id && strings.EqualFold(other.Name, strings.TrimSpace(p.Name)) {
			return badRequest(fmt.Sprintf("Person with name '%s' already exists", p.Name))
		}
	}
	return nil
}

func (a *API) CreatePerson(ctx context.Context, p core.Person) (core.Person, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "CreatePerson", true)
	if err != nil {
		return core.Person{}, err
	}
	if err := a.validatePerson(p, 0); err != nil {
		return core.Person{}, err
	}
	p.ID = a.id(core.ResourcePersons)
	p.Name = strings.TrimSpace(p.Name)
	p.CreatedAt, p.UpdatedAt = a.timestamp(), a.timestamp()
	a.persons[p.ID] = p
	a.record(core.ResourcePersons, p.ID, core.ActionInsert, who, nil, p)
	return p, nil
}

func (a *API) UpdatePerson(ctx context.Context, id int64, p core.Person) (core.Person, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "UpdatePerson", true)
	if err != nil {
		return core.Person{}, err
	}
	old, ok := a.persons[id]
	if !ok {
		return core.Person{}, notFound("Person", id)
	}
	if err := a.validatePerson(p, id); err != nil {
		return core.Person{}, err
	}
	p.ID, p.CreatedAt, p.UpdatedAt = id, old.CreatedAt, a.timestamp()
	p.Name = strings.TrimSpace(p.Name)
	a.persons[id] = p
	a.record(core.ResourcePersons, id, core.ActionUpdate, who, old, p)
	return p, nil
}

func (a *API) ArchivePerson(ctx context.Context, id int64) (core.Person, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "ArchivePerson", true)
	if err != nil {
		return core.Person{}, err
	}
	old, ok := a.persons[id]
	if !ok {
		return core.Person{}, notFound("Person", id)
	}
	p := old
	p.Active, p.UpdatedAt = false, a.timestamp()
	a.persons[id] = p
	a.record(core.ResourcePersons, id, core.ActionUpdate, who, old, p)
	return p, nil
}

func (a *API) DeletePerson(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "DeletePerson", true)
	if err != nil {
		return err
	}
	old, ok := a.persons[id]
	if !ok {
		return notFound("Person", id)
	}
	for _, e := range a.entries {
		if e.PersonID == id {
			return conflict("Cannot delete person as it is referenced in entries")
		}
	}
	delete(a.persons, id)
	a.record(core.ResourcePersons, id, core.ActionDelete, who, old, nil)
	return nil
}

// Categories

func (a *API) ListCategories(ctx context.Context, req listing.Request, f filter.CategoryFilter) (listing.Page[core.Category], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListCategories", false); err != nil {
		return listing.Page[core.Category]{}, err
	}
	all := where(rows(a.categories), f.Contains)
	sortBy(all, req.Sort, "id", categoryKey)
	return listing.Slice(all, req), nil
}

func (a *API) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "GetCategory", false); err != nil {
		return core.Category{}, err
	}
	c, ok := a.categories[id]
	if !ok {
		return core.Category{}, notFound("Category", id)
	}
	return c, nil
}

func (a *API) validateCategory(c core.Category, id int64) error {
	if strings.TrimSpace(c.Name) == "" {
		return badRequest("name: must not be blank")
	}
	if c.Color != "" && !hexColor.MatchString(c.Color) {
		return badRequest("color: must be a hex color like #3B82F6")
	}
	for _, other := range a.categories {
		if other.ID != id && strings.EqualFold(other.Name, strings.TrimSpace(c.Name)) {
			return badRequest(fmt.Sprintf("Category with name '%s' already exists", c.Name))
		}
	}
	return nil
}

func (a *API) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "CreateCategory", true)
	if err != nil {
		return core.Category{}, err
	}
	if err := a.validateCategory(c, 0); err != nil {
		return core.Category{}, err
	}
	c.ID = a.id(core.ResourceCategories)
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt, c.UpdatedAt = a.timestamp(), a.timestamp()
	a.categories[c.ID] = c
	a.record(core.ResourceCategories, c.ID, core.ActionInsert, who, nil, c)
	return c, nil
}

func (a *API) UpdateCategory(ctx context.Context, id int64, c core.Category) (core.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "UpdateCategory", true)
	if err != nil {
		return core.Category{}, err
	}
	old, ok := a.categories[id]
	if !ok {
		return core.Category{}, notFound("Category", id)
	}
	if err := a.validateCategory(c, id); err != nil {
		return core.Category{}, err
	}
	c.ID, c.CreatedAt, c.UpdatedAt = id, old.CreatedAt, a.timestamp()
	c.Name = strings.TrimSpace(c.Name)
	a.categories[id] = c
	a.record(core.ResourceCategories, id, core.ActionUpdate, who, old, c)
	return c, nil
}

func (a *API) ArchiveCategory(ctx context.Context, id int64) (core.Category, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "ArchiveCategory", true)
	if err != nil {
		return core.Category{}, err
	}
	old, ok := a.categories[id]
	if !ok {
		return core.Category{}, notFound("Category", id)
	}
	c := old
	c.Active, c.UpdatedAt = false, a.timestamp()
	a.categories[id] = c
	a.record(core.ResourceCategories, id, core.ActionUpdate, who, old, c)
	return c, nil
}

func (a *API) DeleteCategory(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "DeleteCategory", true)
	if err != nil {
		return err
	}
	old, ok := a.categories[id]
	if !ok {
		return notFound("Category", id)
	}
	for _, e := range a.entries {
		if e.CategoryID == id {
			return conflict("Cannot delete category as it is referenced in entries")
		}
	}
	delete(a.categories, id)
	a.record(core.ResourceCategories, id, core.ActionDelete, who, old, nil)
	return nil
}

// Entries

func (a *API) withNames(e core.Entry) core.Entry {
	if p, ok := a.persons[e.PersonID]; ok {
		e.PersonName = p.Name
	}
	if c, ok := a.categories[e.CategoryID]; ok {
		e.CategoryName = c.Name
	}
	return e
}

func (a *API) ListEntries(ctx context.Context, req listing.Request, f filter.EntryFilter) (listing.Page[core.Entry], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListEntries", false); err != nil {
		return listing.Page[core.Entry]{}, err
	}
	all := where(rows(a.entries), f.Contains)
	for i := range all {
		all[i] = a.withNames(all[i])
	}
	sortBy(all, req.Sort, "date", entryKey)
	page := listing.Slice(all, req)
	page.PageTotal = core.EntryTotals(page.Content)
	page.GrandTotal = core.EntryTotals(all)
	return page, nil
}

func (a *API) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "GetEntry", false); err != nil {
		return core.Entry{}, err
	}
	e, ok := a.entries[id]
	if !ok {
		return core.Entry{}, notFound("Entry", id)
	}
	return a.withNames(e), nil
}

func (a *API) validateEntry(e core.Entry) error {
	switch {
	case e.Date.IsZero():
		return badRequest("date: must not be null")
	case strings.TrimSpace(e.Description) == "":
		return badRequest("description: must not be blank")
	case e.WorkHours.IsNegative() || e.AmountPaid.IsNegative() || e.AmountDue.IsNegative():
		return badRequest("amounts must not be negative")
	}
	if _, ok := a.persons[e.PersonID]; !ok {
		return notFound("Person", e.PersonID)
	}
	if _, ok := a.categories[e.CategoryID]; !ok {
		return notFound("Category", e.CategoryID)
	}
	return nil
}

func (a *API) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "CreateEntry", true)
	if err != nil {
		return core.Entry{}, err
	}
	if err := a.validateEntry(e); err != nil {
		return core.Entry{}, err
	}
	e.ID = a.id(core.ResourceEntries)
	e.CreatedAt, e.UpdatedAt = a.timestamp(), a.timestamp()
	e = a.withNames(e)
	a.entries[e.ID] = e
	a.record(core.ResourceEntries, e.ID, core.ActionInsert, who, nil, e)
	return e, nil
}

func (a *API) UpdateEntry(ctx context.Context, id int64, e core.Entry) (core.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "UpdateEntry", true)
	if err != nil {
		return core.Entry{}, err
	}
	old, ok := a.entries[id]
	if !ok {
		return core.Entry{}, notFound("Entry", id)
	}
	if err := a.validateEntry(e); err != nil {
		return core.Entry{}, err
	}
	e.ID, e.CreatedAt, e.UpdatedAt = id, old.CreatedAt, a.timestamp()
	e = a.withNames(e)
	a.entries[id] = e
	a.record(core.ResourceEntries, id, core.ActionUpdate, who, a.withNames(old), e)
	return e, nil
}

func (a *API) DeleteEntry(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "DeleteEntry", true)
	if err != nil {
		return err
	}
	old, ok := a.entries[id]
	if !ok {
		return notFound("Entry", id)
	}
	delete(a.entries, id)
	a.record(core.ResourceEntries, id, core.ActionDelete, who, a.withNames(old), nil)
	return nil
}

// Events

func (a *API) ListEvents(ctx context.Context, req listing.Request, f filter.EventFilter) (listing.Page[core.Event], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListEvents", false); err != nil {
		return listing.Page[core.Event]{}, err
	}
	all := where(rows(a.events), f.Contains)
	sortBy(all, req.Sort, "visitDate", eventKey)
	page := listing.Slice(all, req)
	page.PageTotal = core.EventTotals(page.Content)
	page.GrandTotal = core.EventTotals(all)
	return page, nil
}

func (a *API) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "GetEvent", false); err != nil {
		return core.Event{}, err
	}
	e, ok := a.events[id]
	if !ok {
		return core.Event{}, notFound("Event", id)
	}
	return e, nil
}

func validateEvent(e core.Event) error {
	switch {
	case e.VisitDate.IsZero():
		return badRequest("visitDate: must not be null")
	case strings.TrimSpace(e.VisitTime) == "":
		return badRequest("visitTime: must not be blank")
	case strings.TrimSpace(e.ContactName) == "":
		return badRequest("contactName: must not be blank")
	case e.AdultLunchGuests < 0 || e.AdultTastingGuests < 0 || e.ChildrenGuests < 0 || e.ExtraGuests < 0:
		return badRequest("guest counts must not be negative")
	}
	return nil
}

func (a *API) CreateEvent(ctx context.Context, e core.Event) (core.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "CreateEvent", true)
	if err != nil {
		return core.Event{}, err
	}
	if err := validateEvent(e); err != nil {
		return core.Event{}, err
	}
	e = e.PreviewTotals()
	e.ID = a.id(core.ResourceEvents)
	e.CreatedTimestamp = a.timestamp()
	a.events[e.ID] = e
	a.record(core.ResourceEvents, e.ID, core.ActionInsert, who, nil, e)
	return e, nil
}

func (a *API) UpdateEvent(ctx context.Context, id int64, e core.Event) (core.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "UpdateEvent", true)
	if err != nil {
		return core.Event{}, err
	}
	old, ok := a.events[id]
	if !ok {
		return core.Event{}, notFound("Event", id)
	}
	if err := validateEvent(e); err != nil {
		return core.Event{}, err
	}
	e = e.PreviewTotals()
	e.ID, e.CreatedTimestamp = id, old.CreatedTimestamp
	a.events[id] = e
	a.record(core.ResourceEvents, id, core.ActionUpdate, who, old, e)
	return e, nil
}

func (a *API) DeleteEvent(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "DeleteEvent", true)
	if err != nil {
		return err
	}
	old, ok := a.events[id]
	if !ok {
		return notFound("Event", id)
	}
	delete(a.events, id)
	a.record(core.ResourceEvents, id, core.ActionDelete, who, old, nil)
	return nil
}

// Users

func (a *API) userList() []core.User {
	out := make([]core.User, 0, len(a.users))
	for _, acc := range rows(a.users) {
		out = append(out, acc.user)
	}
	return out
}

func (a *API) ListUsers(ctx context.Context, req listing.Request, f filter.UserFilter) (listing.Page[core.User], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListUsers", true); err != nil {
		return listing.Page[core.User]{}, err
	}
	all := where(a.userList(), f.Contains)
	sortBy(all, req.Sort, "username", userKey)
	return listing.Slice(all, req), nil
}

func (a *API) ListAll(ctx context.Context) ([]core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListAllUsers", true); err != nil {
		return nil, err
	}
	return a.userList(), nil
}

func (a *API) GetUser(ctx context.Context, id int64) (core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "GetUser", true); err != nil {
		return core.User{}, err
	}
	acc, ok := a.users[id]
	if !ok {
		return core.User{}, notFound("User", id)
	}
	return acc.user, nil
}

func (a *API) validateUser(u core.User, id int64, creating bool) error {
	name := strings.TrimSpace(u.Username)
	switch {
	case len(name) < 3 || len(name) > 50:
		return badRequest("username: size must be between 3 and 50")
	case !u.Role.IsValid():
		return badRequest("role: must be ADMIN or USER")
	case creating && u.Password == "":
		return badRequest("Password is required for new users")
	case u.Password != "" && len(u.Password) < 6:
		return badRequest("password: size must be at least 6")
	}
	for _, other := range a.users {
		if other.user.ID != id && strings.EqualFold(other.user.Username, name) {
			return badRequest("Username already exists: " + name)
		}
	}
	return nil
}

// lastActiveAdmin reports whether id is the only active ADMIN.
func (a *API) lastActiveAdmin(id int64) bool {
	acc, ok := a.users[id]
	if !ok || !acc.user.Active || acc.user.Role != core.RoleAdmin {
		return false
	}
	return core.CountActiveAdmins(a.userList()) <= 1
}

func (a *API) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "CreateUser", true)
	if err != nil {
		return core.User{}, err
	}
	if err := a.validateUser(u, 0, true); err != nil {
		return core.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), a.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.ID = a.id(core.ResourceUsers)
	u.Username = strings.TrimSpace(u.Username)
	u.Password = ""
	u.CreatedAt, u.UpdatedAt = a.timestamp(), a.timestamp()
	a.users[u.ID] = &account{user: u, hash: hash}
	a.record(core.ResourceUsers, u.ID, core.ActionInsert, who, nil, u)
	return u, nil
}

func (a *API) UpdateUser(ctx context.Context, id int64, u core.User) (core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "UpdateUser", true)
	if err != nil {
		return core.User{}, err
	}
	acc, ok := a.users[id]
	if !ok {
		return core.User{}, notFound("User", id)
	}
	if err := a.validateUser(u, id, false); err != nil {
		return core.User{}, err
	}
	if a.lastActiveAdmin(id) && (u.Role != core.RoleAdmin || !u.Active) {
		return core.User{}, conflict("Cannot demote or deactivate the last active admin user")
	}
	if u.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), a.cost)
		if err != nil {
			return core.User{}, fmt.Errorf("hash password: %w", err)
		}
		acc.hash = hash
	}
	old := acc.user
	u.ID, u.CreatedAt, u.UpdatedAt = id, old.CreatedAt, a.timestamp()
	u.Username = strings.TrimSpace(u.Username)
	u.Password = ""
	acc.user = u
	a.record(core.ResourceUsers, id, core.ActionUpdate, who, old, u)
	return u, nil
}

func (a *API) DeleteUser(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, "DeleteUser", true)
	if err != nil {
		return err
	}
	acc, ok := a.users[id]
	if !ok {
		return notFound("User", id)
	}
	if a.lastActiveAdmin(id) {
		return conflict("Cannot delete the last active admin user")
	}
	delete(a.users, id)
	a.record(core.ResourceUsers, id, core.ActionDelete, who, acc.user, nil)
	return nil
}

func (a *API) setActive(ctx context.Context, op string, id int64, active bool) (core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	who, err := a.begin(ctx, op, true)
	if err != nil {
		return core.User{}, err
	}
	acc, ok := a.users[id]
	if !ok {
		return core.User{}, notFound("User", id)
	}
	if !active && a.lastActiveAdmin(id) {
		return core.User{}, conflict("Cannot deactivate the last active admin user")
	}
	old := acc.user
	acc.user.Active = active
	acc.user.UpdatedAt = a.timestamp()
	a.record(core.ResourceUsers, id, core.ActionUpdate, who, old, acc.user)
	return acc.user, nil
}

func (a *API) ActivateUser(ctx context.Context, id int64) (core.User, error) {
	return a.setActive(ctx, "ActivateUser", id, true)
}

func (a *API) DeactivateUser(ctx context.Context, id int64) (core.User, error) {
	return a.setActive(ctx, "DeactivateUser", id, false)
}

// Audit

func (a *API) ListAudit(ctx context.Context, req listing.Request, f filter.AuditFilter) (listing.Page[core.AuditLog], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListAudit", true); err != nil {
		return listing.Page[core.AuditLog]{}, err
	}
	all := where(slices.Clone(a.audit), f.Contains)
	if req.Sort.Field == "" {
		req.Sort = listing.Sort{Field: "changedAt", Desc: true}
	}
	sortBy(all, req.Sort, "changedAt", auditKey)
	return listing.Slice(all, req), nil
}

func (a *API) EntityAudit(ctx context.Context, tableName string, recordID int64, req listing.Request) (listing.Page[core.AuditLog], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "EntityAudit", true); err != nil {
		return listing.Page[core.AuditLog]{}, err
	}
	all := where(slices.Clone(a.audit), func(l core.AuditLog) bool {
		return l.TableName == tableName && l.RecordID == recordID
	})
	sortBy(all, listing.Sort{Field: "changedAt", Desc: true}, "changedAt", auditKey)
	return listing.Slice(all, req), nil
}

// Logs

func (a *API) ListLogs(ctx context.Context, f filter.LogFilter) (core.LogPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "ListLogs", true); err != nil {
		return core.LogPage{}, err
	}
	matched := where(slices.Clone(a.logs), f.Contains)
	slices.Reverse(matched)
	out := core.LogPage{TotalCount: int64(len(matched)), LastUpdated: a.timestamp()}
	out.Logs = matched[:min(len(matched), f.EffectiveLimit())]
	return out, nil
}

func (a *API) LogStats(ctx context.Context) (core.LogStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "LogStats", true); err != nil {
		return core.LogStats{}, err
	}
	now := a.now()
	stats := core.LogStats{LevelCounts: map[string]int64{}}
	for _, e := range a.logs {
		stats.LevelCounts[string(e.Level)]++
		stats.TotalLogs++
		age := now.Sub(e.Timestamp.Time)
		if age <= time.Hour {
			stats.LastHour++
		}
		if age <= 24*time.Hour {
			stats.LastDay++
		}
	}
	stats.SystemUptime = humanDuration(now.Sub(a.started))
	return stats, nil
}

func (a *API) LogLevels(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "LogLevels", true); err != nil {
		return nil, err
	}
	levels := []string{filter.LevelAll}
	for _, l := range core.Levels() {
		levels = append(levels, string(l))
	}
	return levels, nil
}

func humanDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	unit := func(n int, s string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, s)
		}
		return fmt.Sprintf("%d %ss", n, s)
	}
	if hours == 0 {
		return unit(minutes, "minute")
	}
	return unit(hours, "hour") + " " + unit(minutes, "minute")
}

// Reports

func (a *API) Summary(ctx context.Context, q winery.SummaryQuery) (core.ReportSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.begin(ctx, "Summary", false); err != nil {
		return core.ReportSummary{}, err
	}
	if q.FromDate.IsZero() || q.ToDate.IsZero() {
		return core.ReportSummary{}, badRequest("fromDate and toDate are required")
	}
	f := filter.EntryFilter{DateFrom: q.FromDate, DateTo: q.ToDate}
	if q.PersonID > 0 {
		f.PersonIDs = []int64{q.PersonID}
	}
	if q.CategoryID > 0 {
		f.CategoryIDs = []int64{q.CategoryID}
	}
	matched := where(rows(a.entries), f.Contains)
	totals := core.EntryTotals(matched)
	return core.ReportSummary{
		FromDate:        q.FromDate,
		ToDate:          q.ToDate,
		TotalAmountPaid: totals.Get(core.TotalAmountPaid),
		TotalAmountDue:  totals.Get(core.TotalAmountDue),
		GrandTotal:      totals.Get(core.TotalSum),
		TotalWorkHours:  totals.Get(core.TotalWorkHours),
		TotalEntries:    int64(len(matched)),
	}, nil
}
