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

var categoriesScreen = listScreen[core.Category, filter.CategoryFilter]{
	name:  core.ResourceCategories,
	title: "Categories",
	view:  func(ws *workspace) *listing.View[core.Category, filter.CategoryFilter] { return ws.categories },
	parse: filter.ParseCategoryFilter,
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, categoriesScreen)
}

func categoryDialog(d form.Dialog, f form.CategoryForm) dialogData {
	action := "/categories"
	if d.IsEdit() {
		action += "/" + strconv.FormatInt(d.ID, 10)
	}
	return dialogData{
		Resource: core.ResourceCategories,
		Noun:     "category",
		Title:    d.Title("category"),
		Action:   action,
		Edit:     d.IsEdit(),
		Form:     f,
	}
}

func (s *Server) handleCategoryNew(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.renderPartial(w, r, http.StatusOK, "category-form", categoryDialog(form.Add(), form.NewCategoryForm()))
}

func (s *Server) handleCategoryCreate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseCategory(r.PostForm)
	if err != nil {
		s.invalid(w, r, "category-form", categoryDialog(form.Add(), f), err)
		return
	}
	if _, err := s.records.CreateCategory(r.Context(), f.Category()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceCategories, "Category created")
}

func (s *Server) handleCategoryEdit(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	c, err := s.api.GetCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "category-form", categoryDialog(form.Edit(id), form.CategoryFormFrom(c)))
}

func (s *Server) handleCategoryUpdate(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	f, err := form.ParseCategory(r.PostForm)
	if err != nil {
		s.invalid(w, r, "category-form", categoryDialog(form.Edit(id), f), err)
		return
	}
	if _, err := s.records.UpdateCategory(r.Context(), id, f.Category()); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, core.ResourceCategories, "Category updated")
}

func (s *Server) handleCategoryArchive(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	c, err := s.records.ArchiveCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	NewHTMXResponse().
		TriggerReload(core.ResourceCategories).
		TriggerSuccessNotification(c.Name + " archived").
		Write(w)
}

func (s *Server) handleCategoryConfirmDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	c, err := s.api.GetCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.confirmDelete(w, r, core.ResourceCategories, id, c.Name)
}

func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request, st *session.State) {
	s.deleteRecord(w, r, st, core.ResourceCategories, "Category deleted", s.records.DeleteCategory)
}
