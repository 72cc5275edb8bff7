package http

import (
	"context"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/form"
	"winery/internal/listing"
	"winery/internal/session"
)

// choices are the person and category dropdown options of the entry screens.
type choices struct {
	Persons    []filter.Option
	Categories []filter.Option
}

func (s *Server) choices(ctx context.Context) (choices, error) {
	var c choices
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c.Persons, err = s.options.Persons(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		c.Categories, err = s.options.Categories(gctx)
		return err
	})
	return c, g.Wait()
}

func (s *Server) entriesScreen() listScreen[core.Entry, filter.EntryFilter] {
	return listScreen[core.Entry, filter.EntryFilter]{
		name:  core.ResourceEntries,
		title: "Entries",
		view:  func(ws *workspace) *listing.View[core.Entry, filter.EntryFilter] { return ws.entries },
		parse: filter.ParseEntryFilter,
		extra: func(ctx context.Context, _ listing.Page[core.Entry]) (any, error) {
			return s.choices(ctx)
		},
	}
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, s.entriesScreen())
}

func entryDialog(d form.Dialog, f form.EntryForm, c choices) dialogData {
	action := "/entries"
	if d.IsEdit() {
		action += "/" + strconv.FormatInt(d.ID, 10)
	}
	return dialogData{
		Resource: core.ResourceEntries,
		Noun:     "entry",
		Title:    d.Title("entry"),
		Action:   action,
		Edit:     d.IsEdit(),
		Form:     f,
		Extra:    c,
	}
}

// entryForm renders the entry dialog. Without dropdown options the entry
// cannot be filled in, so an options failure fails the request.
func (s *Server) entryForm(w http.ResponseWriter, r *http.Request, st *session.State, d form.Dialog, f form.EntryForm, err error) {
	c, cerr := s.choices(r.Context())
	if cerr != nil {
		s.fail(w, r, st, cerr)
		return
	}
	data := entryDialog(d, f, c)
	if err != nil {
		s.invalid(w, r, "entry-form", data, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "entry-form", data)
}

func (s *Server) handleEntryNew(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.entryForm(w, r, st, form.Add(), form.NewEntryForm(s.now()), nil)
}

func (s *Server) handleEntryCreate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseEntry(r.PostForm)
	if err != nil {
		s.entryForm(w, r, st, form.Add(), f, err)
		return
	}
	if _, err := s.records.CreateEntry(r.Context(), f.Entry()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceEntries, "Entry created")
}

func (s *Server) handleEntryEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	e, err := s.api.GetEntry(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.entryForm(w, r, st, form.Edit(id), form.EntryFormFrom(e), nil)
}

func (s *Server) handleEntryUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseEntry(r.PostForm)
	if err != nil {
		s.entryForm(w, r, st, form.Edit(id), f, err)
		return
	}
	if _, err := s.records.UpdateEntry(r.Context(), id, f.Entry()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceEntries, "Entry updated")
}

func (s *Server) handleEntryConfirmDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	e, err := s.api.GetEntry(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.confirmDelete(w, r, core.ResourceEntries, id, e.Date.String()+" "+e.Description)
}

func (s *Server) handleEntryDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.deleteRecord(w, r, st, core.ResourceEntries, "Entry deleted", s.records.DeleteEntry)
}
