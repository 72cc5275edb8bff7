package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"winery/internal/core"
	"winery/internal/form"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/session"
)

// listScreen describes one table screen for serveList.
type listScreen[T any, F listing.Filter] struct {
	name  string
	title string
	view  func(*workspace) *listing.View[T, F]
	parse func(url.Values) (F, error)
	// extra loads what the screen shows besides the table. Its failures are
	// logged and the screen renders without it.
	extra func(ctx context.Context, page listing.Page[T]) (any, error)
}

// serveList applies the submitted table controls to the session's view,
// reloads it and renders the page or, for HTMX, just the table. A failed
// reload keeps the last good page: HTMX gets an error toast and no swap, a
// full page load renders the old page with the error inline.
func serveList[T any, F listing.Filter](s *Server, w http.ResponseWriter, r *http.Request, st *session.State, sc listScreen[T, F]) {
	ctx := r.Context()
	ws, err := s.workspaces.get(ctx, st.ID())
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	view := sc.view(ws)

	q := r.URL.Query()
	if err := applyControls(view, ParseListControls(q), q, sc.parse); err != nil {
		s.fail(w, r, st, err)
		return
	}

	data := tableData[T, F]{Admin: st.IsAdmin()}
	page, err := view.Reload(ctx)
	if err != nil {
		if isHTMX(r) || errors.Is(err, listing.ErrStale) || errors.Is(err, core.ErrUnauthorized) {
			s.fail(w, r, st, err)
			return
		}
		log.FromContext(ctx).WarnContext(ctx, "List load failed",
			log.FieldResource, sc.name,
			log.FieldError, err)
		data.Error = userMessage(err)
	}
	log.FromContext(ctx).DebugContext(ctx, "List loaded",
		log.FieldResource, sc.name,
		log.FieldPage, page.Number,
		log.FieldSize, page.Size,
		log.FieldTotal, page.TotalElements)

	data.Page = page
	data.Filter = view.Filter()
	data.Sort = view.Request().Sort
	data.Loaded = view.Loaded()
	if sc.extra != nil {
		extra, err := sc.extra(ctx, page)
		if errors.Is(err, core.ErrUnauthorized) {
			s.fail(w, r, st, err)
			return
		}
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Screen extras failed",
				log.FieldResource, sc.name,
				log.FieldError, err)
		}
		data.Extra = extra
	}
	s.renderPage(w, r, st, sc.name, sc.title, sc.name, data)
}

// saved answers a successful dialog submit: close the dialog, reload the
// table and show a toast.
func saved(w http.ResponseWriter, resource, message string) {
	NewHTMXResponse().
		TriggerDialogClose().
		TriggerReload(resource).
		TriggerSuccessNotification(message).
		Write(w)
}

// invalid re-renders a dialog with its field errors and the submitted values.
func (s *Server) invalid(w http.ResponseWriter, r *http.Request, name string, data dialogData, err error) {
	data.Errors = form.FieldErrors(err)
	s.renderWith(w, r, NewHTMXResponse().TriggerErrorNotification("Please correct the highlighted fields"), name, data)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	st, err := s.ensureSession(w, r)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to open session", log.FieldError, err)
		InternalServerError("Session unavailable").Write(w)
		return
	}
	if st.IsAuthenticated(r.Context()) {
		s.redirect(w, r, "/dashboard")
		return
	}
	s.renderLayout(w, r, st, "login", "Sign in", "login", loginData{})
}

type loginData struct {
	Username string
	Error    string
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	st, err := s.ensureSession(w, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to open session", log.FieldError, err)
		InternalServerError("Session unavailable").Write(w)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	data := loginData{Username: username}
	if username == "" || password == "" {
		data.Error = "Username and password are required"
		s.loginFailed(w, r, st, data)
		return
	}

	if err := st.Login(ctx, username, password); err != nil {
		data.Error = core.UserMessage(err)
		s.loginFailed(w, r, st, data)
		return
	}
	s.workspaces.drop(st.ID())
	s.redirect(w, r, "/dashboard")
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, st *session.State, data loginData) {
	if isHTMX(r) {
		s.renderWith(w, r, NewHTMXResponse().TriggerErrorNotification(data.Error), "login", data)
		return
	}
	s.renderLayout(w, r, st, "login", "Sign in", "login", data)
}

func (s *Server) handleLoginLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many sign-in attempts, try again in a minute").Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, err := s.currentSession(r)
	if err == nil && st != nil {
		st.Logout(r.Context())
		s.workspaces.drop(st.ID())
	}
	s.redirect(w, r, "/login")
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	s.setPreference(w, r, func(ctx context.Context, st *session.State, v string) error {
		return st.SetTheme(ctx, v)
	}, "theme")
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	s.setPreference(w, r, func(ctx context.Context, st *session.State, v string) error {
		return st.SetLanguage(ctx, v)
	}, "language")
}

// setPreference stores a display preference. Preferences belong to the
// browser session, so no login is needed and they survive a logout.
func (s *Server) setPreference(w http.ResponseWriter, r *http.Request, set func(context.Context, *session.State, string) error, key string) {
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	st, err := s.ensureSession(w, r)
	if err != nil {
		InternalServerError("Session unavailable").Write(w)
		return
	}
	if err := set(r.Context(), st, r.PostFormValue(key)); err != nil {
		if errors.Is(err, session.ErrInvalidPreference) {
			BadRequestError("Unsupported " + key).Write(w)
			return
		}
		s.logger.ErrorContext(r.Context(), "Failed to save preference", "preference", key, log.FieldError, err)
		InternalServerError("Preference could not be saved").Write(w)
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Refresh", "true").Write(w)
		return
	}
	back := "/dashboard"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && ref.Host == r.Host {
		back = ref.RequestURI()
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// confirmDelete renders the confirmation dialog for deleting one record.
func (s *Server) confirmDelete(w http.ResponseWriter, r *http.Request, resource string, id int64, label string) {
	s.renderPartial(w, r, http.StatusOK, "confirm-delete", confirmData{
		Resource: resource,
		ID:       id,
		Label:    label,
		Action:   "/" + resource + "/" + strconv.FormatInt(id, 10) + "/delete",
	})
}

// deleteRecord runs a confirmed delete and reloads the resource's table.
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, st *session.State, resource, message string, del func(context.Context, int64) error) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	if errResp := ParseFormOrFail(r); errResp != nil {
		errResp.Write(w)
		return
	}
	if !confirmed(r) {
		BadRequestError("Delete was not confirmed").Write(w)
		return
	}
	if err := del(r.Context(), id); err != nil {
		s.fail(w, r, st, err)
		return
	}
	saved(w, resource, message)
}
