package http

import (
	"context"
	"net/http"
	"strconv"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/form"
	"winery/internal/listing"
	"winery/internal/session"
)

func (s *Server) usersScreen() listScreen[core.User, filter.UserFilter] {
	return listScreen[core.User, filter.UserFilter]{
		name:  core.ResourceUsers,
		title: "Users",
		view:  func(ws *workspace) *listing.View[core.User, filter.UserFilter] { return ws.users },
		parse: filter.ParseUserFilter,
		extra: s.deletableUsers,
	}
}

// deletableUsers marks which users on the page may be deleted or
// deactivated without losing the last active admin. The rule needs the whole
// user set, not just the page. When that set cannot be loaded every button
// stays enabled and the record service enforces the rule on submit.
func (s *Server) deletableUsers(ctx context.Context, page listing.Page[core.User]) (any, error) {
	out := make(map[int64]bool, len(page.Content))
	all, err := s.api.ListAll(ctx)
	for _, u := range page.Content {
		out[u.ID] = err != nil || form.CanDeleteUser(all, u)
	}
	return out, err
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, s.usersScreen())
}

func userDialog(d form.Dialog, f form.UserForm) dialogData {
	action := "/users"
	if d.IsEdit() {
		action += "/" + strconv.FormatInt(d.ID, 10)
	}
	return dialogData{
		Resource: core.ResourceUsers,
		Noun:     "user",
		Title:    d.Title("user"),
		Action:   action,
		Edit:     d.IsEdit(),
		Form:     f,
		Extra:    []core.Role{core.RoleUser, core.RoleAdmin},
	}
}

func (s *Server) handleUserNew(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.renderPartial(w, r, http.StatusOK, "user-form", userDialog(form.Add(), form.NewUserForm()))
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	d := form.Add()
	f, err := form.ParseUser(r.PostForm, d)
	if err != nil {
		f.Password = ""
		s.invalid(w, r, "user-form", userDialog(d, f), err)
		return
	}
	if _, err := s.records.CreateUser(r.Context(), f.User()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceUsers, "User created")
}

func (s *Server) handleUserEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	u, err := s.api.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "user-form", userDialog(form.Edit(id), form.UserFormFrom(u)))
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	d := form.Edit(id)
	f, err := form.ParseUser(r.PostForm, d)
	if err != nil {
		f.Password = ""
		s.invalid(w, r, "user-form", userDialog(d, f), err)
		return
	}
	if _, err := s.records.UpdateUser(r.Context(), id, f.User()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceUsers, "User updated")
}

func (s *Server) handleUserActivate(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.toggleUser(w, r, st, s.records.ActivateUser, " activated")
}

func (s *Server) handleUserDeactivate(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.toggleUser(w, r, st, s.records.DeactivateUser, " deactivated")
}

func (s *Server) toggleUser(w http.ResponseWriter, r *http.Request, st *session.State, toggle func(context.Context, int64) (core.User, error), suffix string) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	u, err := toggle(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	NewHTMXResponse().
		TriggerReload(core.ResourceUsers).
		TriggerSuccessNotification(u.Username + suffix).
		Write(w)
}

func (s *Server) handleUserConfirmDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	u, err := s.api.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.confirmDelete(w, r, core.ResourceUsers, id, u.Username)
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.deleteRecord(w, r, st, core.ResourceUsers, "User deleted", s.records.DeleteUser)
}
