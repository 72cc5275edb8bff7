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

var eventsScreen = listScreen[core.Event, filter.EventFilter]{
	name:  core.ResourceEvents,
	title: "Events",
	view:  func(ws *workspace) *listing.View[core.Event, filter.EventFilter] { return ws.events },
	parse: filter.ParseEventFilter,
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, eventsScreen)
}

// eventDialog carries the live totals preview as Extra.
func eventDialog(d form.Dialog, f form.EventForm) dialogData {
	action := "/events"
	if d.IsEdit() {
		action += "/" + strconv.FormatInt(d.ID, 10)
	}
	return dialogData{
		Resource: core.ResourceEvents,
		Noun:     "event",
		Title:    d.Title("event"),
		Action:   action,
		Edit:     d.IsEdit(),
		Form:     f,
		Extra:    f.Preview(),
	}
}

func (s *Server) handleEventNew(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.renderPartial(w, r, http.StatusOK, "event-form", eventDialog(form.Add(), form.NewEventForm(s.now())))
}

func (s *Server) handleEventCreate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseEvent(r.PostForm)
	if err != nil {
		s.invalid(w, r, "event-form", eventDialog(form.Add(), f), err)
		return
	}
	if _, err := s.records.CreateEvent(r.Context(), f.Event()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceEvents, "Event created")
}

// handleEventPreview recomputes the totals block while the dialog is edited.
// Parse errors are ignored here; the fields that did parse still count.
func (s *Server) handleEventPreview(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, _ := form.ParseEvent(r.PostForm)
	s.renderPartial(w, r, http.StatusOK, "event-preview", f.Preview())
}

func (s *Server) handleEventEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	e, err := s.api.GetEvent(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "event-form", eventDialog(form.Edit(id), form.EventFormFrom(e)))
}

func (s *Server) handleEventUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseEvent(r.PostForm)
	if err != nil {
		s.invalid(w, r, "event-form", eventDialog(form.Edit(id), f), err)
		return
	}
	if _, err := s.records.UpdateEvent(r.Context(), id, f.Event()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceEvents, "Event updated")
}

func (s *Server) handleEventConfirmDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	e, err := s.api.GetEvent(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.confirmDelete(w, r, core.ResourceEvents, id, e.Label())
}

func (s *Server) handleEventDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.deleteRecord(w, r, st, core.ResourceEvents, "Event deleted", s.records.DeleteEvent)
}
