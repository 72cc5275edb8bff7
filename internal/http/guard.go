package http

import (
	"errors"
	"net/http"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/services"
	"winery/internal/session"
)

// pageHandler is a handler that runs behind the session guard.
type pageHandler func(w http.ResponseWriter, r *http.Request, st *session.State)

// guard lets the request through only for an authenticated session, and for
// admin-only routes only for administrators. Rejected requests are redirected
// before any API call is made. The request context carries the bearer token
// and the acting username for the handler.
func (s *Server) guard(adminOnly bool, next pageHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		st, err := s.currentSession(r)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to open session", log.FieldError, err)
		}
		if st == nil || !st.IsAuthenticated(ctx) {
			if st != nil {
				s.workspaces.drop(st.ID())
			}
			s.redirect(w, r, "/login")
			return
		}

		if adminOnly && !st.IsAdmin() {
			s.logger.WarnContext(ctx, "Admin route denied",
				log.FieldPath, r.URL.Path,
				log.FieldSessionID, shortID(st.ID()))
			s.redirect(w, r, "/dashboard")
			return
		}

		if s.cfg.RefreshWindow > 0 && st.ExpiresWithin(s.cfg.RefreshWindow) {
			if err := st.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "Token refresh failed", log.FieldError, err)
			}
		}

		ident, _ := st.Identity()
		ctx = services.WithActor(st.Context(ctx), ident.Username)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUsername, ident.Username))
		next(w, r.WithContext(ctx), st)
	})
}

// currentSession opens the state named by the session cookie. It returns nil
// without error when the browser has no cookie yet.
func (s *Server) currentSession(r *http.Request) (*session.State, error) {
	if s.sessions == nil {
		return nil, errors.New("session manager not configured")
	}
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	return s.sessions.Open(r.Context(), c.Value)
}

// ensureSession is currentSession that issues a new cookie when needed.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*session.State, error) {
	st, err := s.currentSession(r)
	if err != nil || st != nil {
		return st, err
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cfg.IdleTimeout.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return s.sessions.Open(r.Context(), id)
}

// redirect navigates the browser: HX-Redirect for HTMX requests, 303 otherwise.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(to).Write(w)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// fail is the single place request errors are turned into responses. A
// rejected token logs the session out and sends the browser to the login
// page. A stale list response is answered with 204 so nothing is swapped.
// Everything else becomes an error toast and the session stays.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, st *session.State, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, listing.ErrStale):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, core.ErrUnauthorized):
		s.logger.InfoContext(ctx, "API rejected session token", log.FieldPath, r.URL.Path)
		if st != nil {
			st.Logout(ctx)
			s.workspaces.drop(st.ID())
		}
		s.redirect(w, r, "/login")
		return
	}

	status := statusFor(err)
	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", log.FieldPath, r.URL.Path, log.FieldError, err)
	} else {
		logger.WarnContext(ctx, "Request rejected", log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	ErrorResponse(status, userMessage(err)).Write(w)
}

func statusFor(err error) int {
	var apiErr *core.APIError
	switch {
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadID), errors.Is(err, filter.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return apiErr.Status
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errBadID):
		return "Invalid record id"
	case errors.Is(err, filter.ErrInvalidFilter):
		return "Invalid filter: " + err.Error()
	}
	return core.UserMessage(err)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
