package services

import (
	"context"
	"fmt"
	"net/http"

	"winery/internal/amqp"
	"winery/internal/core"
	"winery/internal/form"
	"winery/internal/log"
	"winery/internal/winery"
)

// ErrLastAdmin rejects a change that would leave no active administrator.
var ErrLastAdmin error = &core.APIError{Status: http.StatusConflict, Message: "Cannot delete the last active admin user"}

// Publisher sends record change notifications. *amqp.Client implements it.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChanged) error
}

type actorKey struct{}

// WithActor records who performs the writes made with ctx.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

func actor(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string)
	return s
}

// RecordService performs every console write: the API call first, then
// option cache invalidation, then a best-effort change notification.
type RecordService struct {
	api       winery.API
	options   *Options
	publisher Publisher
	logger    *log.Logger
}

// NewRecordService accepts a nil options cache or publisher.
func NewRecordService(api winery.API, options *Options, publisher Publisher, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService{
		api:       api,
		options:   options,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentRecords),
	}
}

func (s *RecordService) changed(ctx context.Context, resource string, id int64, action core.AuditAction, date core.Date) {
	if s.options != nil {
		s.options.Invalidate(resource)
	}

	op := map[core.AuditAction]string{
		core.ActionInsert: log.OpCreate,
		core.ActionUpdate: log.OpUpdate,
		core.ActionDelete: log.OpDelete,
	}[action]
	log.NewStructuredLogger(s.logger).LogRecordSaved(ctx, op, resource, id, actor(ctx))

	if s.publisher == nil {
		return
	}
	msg := amqp.NewRecordChanged(resource, id, action, actor(ctx)).WithDate(date)
	if err := s.publisher.PublishRecordChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish record change",
			log.FieldResource, resource,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

func (s *RecordService) CreatePerson(ctx context.Context, p core.Person) (core.Person, error) {
	out, err := s.api.CreatePerson(ctx, p)
	if err != nil {
		return out, fmt.Errorf("create person: %w", err)
	}
	s.changed(ctx, core.ResourcePersons, out.ID, core.ActionInsert, core.Date{})
	return out, nil
}

func (s *RecordService) UpdatePerson(ctx context.Context, id int64, p core.Person) (core.Person, error) {
	out, err := s.api.UpdatePerson(ctx, id, p)
	if err != nil {
		return out, fmt.Errorf("update person %d: %w", id, err)
	}
	s.changed(ctx, core.ResourcePersons, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) ArchivePerson(ctx context.Context, id int64) (core.Person, error) {
	out, err := s.api.ArchivePerson(ctx, id)
	if err != nil {
		return out, fmt.Errorf("archive person %d: %w", id, err)
	}
	s.changed(ctx, core.ResourcePersons, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) DeletePerson(ctx context.Context, id int64) error {
	if err := s.api.DeletePerson(ctx, id); err != nil {
		return fmt.Errorf("delete person %d: %w", id, err)
	}
	s.changed(ctx, core.ResourcePersons, id, core.ActionDelete, core.Date{})
	return nil
}

func (s *RecordService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	out, err := s.api.CreateCategory(ctx, c)
	if err != nil {
		return out, fmt.Errorf("create category: %w", err)
	}
	s.changed(ctx, core.ResourceCategories, out.ID, core.ActionInsert, core.Date{})
	return out, nil
}

func (s *RecordService) UpdateCategory(ctx context.Context, id int64, c core.Category) (core.Category, error) {
	out, err := s.api.UpdateCategory(ctx, id, c)
	if err != nil {
		return out, fmt.Errorf("update category %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceCategories, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) ArchiveCategory(ctx context.Context, id int64) (core.Category, error) {
	out, err := s.api.ArchiveCategory(ctx, id)
	if err != nil {
		return out, fmt.Errorf("archive category %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceCategories, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.api.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceCategories, id, core.ActionDelete, core.Date{})
	return nil
}

func (s *RecordService) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	out, err := s.api.CreateEntry(ctx, e)
	if err != nil {
		return out, fmt.Errorf("create entry: %w", err)
	}
	s.changed(ctx, core.ResourceEntries, out.ID, core.ActionInsert, out.Date)
	return out, nil
}

func (s *RecordService) UpdateEntry(ctx context.Context, id int64, e core.Entry) (core.Entry, error) {
	out, err := s.api.UpdateEntry(ctx, id, e)
	if err != nil {
		return out, fmt.Errorf("update entry %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceEntries, id, core.ActionUpdate, out.Date)
	return out, nil
}

// DeleteEntry looks the entry up first so the notification carries its date.
func (s *RecordService) DeleteEntry(ctx context.Context, id int64) error {
	var date core.Date
	if e, err := s.api.GetEntry(ctx, id); err == nil {
		date = e.Date
	}
	if err := s.api.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceEntries, id, core.ActionDelete, date)
	return nil
}

func (s *RecordService) CreateEvent(ctx context.Context, e core.Event) (core.Event, error) {
	out, err := s.api.CreateEvent(ctx, e)
	if err != nil {
		return out, fmt.Errorf("create event: %w", err)
	}
	s.changed(ctx, core.ResourceEvents, out.ID, core.ActionInsert, out.VisitDate)
	return out, nil
}

func (s *RecordService) UpdateEvent(ctx context.Context, id int64, e core.Event) (core.Event, error) {
	out, err := s.api.UpdateEvent(ctx, id, e)
	if err != nil {
		return out, fmt.Errorf("update event %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceEvents, id, core.ActionUpdate, out.VisitDate)
	return out, nil
}

func (s *RecordService) DeleteEvent(ctx context.Context, id int64) error {
	if err := s.api.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceEvents, id, core.ActionDelete, core.Date{})
	return nil
}

func (s *RecordService) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	out, err := s.api.CreateUser(ctx, u)
	if err != nil {
		return out, fmt.Errorf("create user: %w", err)
	}
	s.changed(ctx, core.ResourceUsers, out.ID, core.ActionInsert, core.Date{})
	return out, nil
}

// UpdateUser refuses to demote or deactivate the last active admin.
func (s *RecordService) UpdateUser(ctx context.Context, id int64, u core.User) (core.User, error) {
	users, current, err := s.userSet(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	if !form.CanSaveUser(users, current, u) {
		return core.User{}, ErrLastAdmin
	}
	out, err := s.api.UpdateUser(ctx, id, u)
	if err != nil {
		return out, fmt.Errorf("update user %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceUsers, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) DeleteUser(ctx context.Context, id int64) error {
	users, target, err := s.userSet(ctx, id)
	if err != nil {
		return err
	}
	if !form.CanDeleteUser(users, target) {
		return ErrLastAdmin
	}
	if err := s.api.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceUsers, id, core.ActionDelete, core.Date{})
	return nil
}

func (s *RecordService) ActivateUser(ctx context.Context, id int64) (core.User, error) {
	out, err := s.api.ActivateUser(ctx, id)
	if err != nil {
		return out, fmt.Errorf("activate user %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceUsers, id, core.ActionUpdate, core.Date{})
	return out, nil
}

func (s *RecordService) DeactivateUser(ctx context.Context, id int64) (core.User, error) {
	users, target, err := s.userSet(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	if !form.CanDeactivateUser(users, target) {
		return core.User{}, ErrLastAdmin
	}
	out, err := s.api.DeactivateUser(ctx, id)
	if err != nil {
		return out, fmt.Errorf("deactivate user %d: %w", id, err)
	}
	s.changed(ctx, core.ResourceUsers, id, core.ActionUpdate, core.Date{})
	return out, nil
}

// userSet fetches every user, since the last-admin rule is about the whole
// system and not the page on screen.
func (s *RecordService) userSet(ctx context.Context, id int64) ([]core.User, core.User, error) {
	users, err := s.api.ListAll(ctx)
	if err != nil {
		return nil, core.User{}, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.ID == id {
			return users, u, nil
		}
	}
	return nil, core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
}
