package http

import (
	"net/http"
	"strconv"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/form"
	"winery/internal/listing"
	"winery/internal/session"
)

var personsScreen = listScreen[core.Person, filter.PersonFilter]{
	name:  core.ResourcePersons,
	title: "Persons",
	view:  func(ws *workspace) *listing.View[core.Person, filter.PersonFilter] { return ws.persons },
	parse: filter.ParsePersonFilter,
}

func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, personsScreen)
}

func personDialog(d form.Dialog, f form.PersonForm) dialogData {
	action := "/persons"
	if d.IsEdit() {
		action += "/" + strconv.FormatInt(d.ID, 10)
	}
	return dialogData{
		Resource: core.ResourcePersons,
		Noun:     "person",
		Title:    d.Title("person"),
		Action:   action,
		Edit:     d.IsEdit(),
		Form:     f,
	}
}

func (s *Server) handlePersonNew(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.renderPartial(w, r, http.StatusOK, "person-form", personDialog(form.Add(), form.NewPersonForm()))
}

func (s *Server) handlePersonCreate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParsePerson(r.PostForm)
	if err != nil {
		s.invalid(w, r, "person-form", personDialog(form.Add(), f), err)
		return
	}
	if _, err := s.records.CreatePerson(r.Context(), f.Person()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourcePersons, "Person created")
}

func (s *Server) handlePersonEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	p, err := s.api.GetPerson(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "person-form", personDialog(form.Edit(id), form.PersonFormFrom(p)))
}

func (s *Server) handlePersonUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParsePerson(r.PostForm)
	if err != nil {
		s.invalid(w, r, "person-form", personDialog(form.Edit(id), f), err)
		return
	}
	if _, err := s.records.UpdatePerson(r.Context(), id, f.Person()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourcePersons, "Person updated")
}

func (s *Server) handlePersonArchive(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	p, err := s.records.ArchivePerson(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	NewHTMXResponse().
		TriggerReload(core.ResourcePersons).
		TriggerSuccessNotification(p.Name + " archived").
		Write(w)
}

func (s *Server) handlePersonConfirmDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	p, err := s.api.GetPerson(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.confirmDelete(w, r, core.ResourcePersons, id, p.Name)
}

func (s *Server) handlePersonDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.deleteRecord(w, r, st, core.ResourcePersons, "Person deleted", s.records.DeletePerson)
}
