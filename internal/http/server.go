// Package http serves the winery console: server-rendered pages and HTMX
// partials over the winery API, behind a session guard.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"winery/internal/cache"
	"winery/internal/log"
	"winery/internal/middleware/ratelimit"
	"winery/internal/middleware/security"
	"winery/internal/middleware/trace"
	"winery/internal/services"
	"winery/internal/session"
	"winery/internal/winery"
	appweb "winery/web"
)

// Config holds the console settings that are not dependencies.
type Config struct {
	CookieName    string
	SecureCookies bool
	IdleTimeout   time.Duration
	// RefreshWindow renews the access token when it expires sooner than this.
	RefreshWindow  time.Duration
	LogsRefresh    time.Duration
	LoginRateLimit int
	MaxSessions    int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:     "winery_session",
		IdleTimeout:    12 * time.Hour,
		RefreshWindow:  2 * time.Minute,
		LogsRefresh:    30 * time.Second,
		LoginRateLimit: 10,
		MaxSessions:    10000,
	}
}

// Deps are the collaborators of the console.
type Deps struct {
	API      winery.API
	Sessions *session.Manager
	Records  *services.RecordService
	Options  *services.Options
	// Caches, when set, gets the workspace cache registered for cleanup.
	Caches *cache.Manager
	Logger *log.Logger
	Now    func() time.Time
}

type Server struct {
	http.Server
	templates  *template.Template
	api        winery.API
	sessions   *session.Manager
	records    *services.RecordService
	options    *services.Options
	workspaces *workspaces
	cfg        Config
	logger     *log.Logger
	now        func() time.Time

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires every route.
func NewServer(addr string, cfg Config, deps Deps) (*Server, error) {
	defaults := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = defaults.CookieName
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.LogsRefresh <= 0 {
		cfg.LogsRefresh = defaults.LogsRefresh
	}
	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = defaults.LoginRateLimit
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaults.MaxSessions
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Options == nil {
		deps.Options = services.NewOptions(deps.API, 1000, 5*time.Minute)
	}
	if deps.Records == nil {
		deps.Records = services.NewRecordService(deps.API, deps.Options, nil, logger)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates:  tmpl,
		api:        deps.API,
		sessions:   deps.Sessions,
		records:    deps.Records,
		options:    deps.Options,
		workspaces: newWorkspaces(deps.API, cfg.MaxSessions, cfg.IdleTimeout, now),
		cfg:        cfg,
		logger:     logger.WithComponent(log.ComponentHTTP),
		now:        now,
		detector:   security.NewDetector(logger),
		started:    now(),
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.LoginRateLimit,
		Logger:            logger,
		Now:               now,
	})
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	if deps.Caches != nil {
		deps.Caches.Register("workspaces", s.workspaces.store)
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Addr = addr
	s.Handler = s.detector.Middleware(headers.Middleware(s.tracer.Middleware(s.routes())))
	s.ReadHeaderTimeout = 10 * time.Second
	s.IdleTimeout = 120 * time.Second
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	staticFS, err := fs.Sub(appweb.StaticFS, "static")
	if err == nil {
		static := http.StripPrefix("/static/", http.FileServerFS(staticFS))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(86400)(static))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	loginLimit := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleLoginLimited)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", loginLimit(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /prefs/theme", s.handleTheme)
	mux.HandleFunc("POST /prefs/language", s.handleLanguage)

	mux.Handle("GET /dashboard", s.guard(false, s.handleDashboard))
	mux.Handle("GET /reports", s.guard(false, s.handleReports))

	mux.Handle("GET /persons", s.guard(false, s.handlePersons))
	mux.Handle("GET /persons/new", s.guard(true, s.handlePersonNew))
	mux.Handle("POST /persons", s.guard(true, s.handlePersonCreate))
	mux.Handle("GET /persons/{id}/edit", s.guard(true, s.handlePersonEdit))
	mux.Handle("PUT /persons/{id}", s.guard(true, s.handlePersonUpdate))
	mux.Handle("POST /persons/{id}/archive", s.guard(true, s.handlePersonArchive))
	mux.Handle("GET /persons/{id}/delete", s.guard(true, s.handlePersonConfirmDelete))
	mux.Handle("POST /persons/{id}/delete", s.guard(true, s.handlePersonDelete))

	mux.Handle("GET /categories", s.guard(false, s.handleCategories))
	mux.Handle("GET /categories/new", s.guard(true, s.handleCategoryNew))
	mux.Handle("POST /categories", s.guard(true, s.handleCategoryCreate))
	mux.Handle("GET /categories/{id}/edit", s.guard(true, s.handleCategoryEdit))
	mux.Handle("PUT /categories/{id}", s.guard(true, s.handleCategoryUpdate))
	mux.Handle("POST /categories/{id}/archive", s.guard(true, s.handleCategoryArchive))
	mux.Handle("GET /categories/{id}/delete", s.guard(true, s.handleCategoryConfirmDelete))
	mux.Handle("POST /categories/{id}/delete", s.guard(true, s.handleCategoryDelete))

	mux.Handle("GET /entries", s.guard(false, s.handleEntries))
	mux.Handle("GET /entries/new", s.guard(true, s.handleEntryNew))
	mux.Handle("POST /entries", s.guard(true, s.handleEntryCreate))
	mux.Handle("GET /entries/{id}/edit", s.guard(true, s.handleEntryEdit))
	mux.Handle("PUT /entries/{id}", s.guard(true, s.handleEntryUpdate))
	mux.Handle("GET /entries/{id}/delete", s.guard(true, s.handleEntryConfirmDelete))
	mux.Handle("POST /entries/{id}/delete", s.guard(true, s.handleEntryDelete))

	mux.Handle("GET /events", s.guard(false, s.handleEvents))
	mux.Handle("GET /events/new", s.guard(true, s.handleEventNew))
	mux.Handle("POST /events", s.guard(true, s.handleEventCreate))
	mux.Handle("POST /events/preview", s.guard(true, s.handleEventPreview))
	mux.Handle("GET /events/{id}/edit", s.guard(true, s.handleEventEdit))
	mux.Handle("PUT /events/{id}", s.guard(true, s.handleEventUpdate))
	mux.Handle("GET /events/{id}/delete", s.guard(true, s.handleEventConfirmDelete))
	mux.Handle("POST /events/{id}/delete", s.guard(true, s.handleEventDelete))

	mux.Handle("GET /users", s.guard(true, s.handleUsers))
	mux.Handle("GET /users/new", s.guard(true, s.handleUserNew))
	mux.Handle("POST /users", s.guard(true, s.handleUserCreate))
	mux.Handle("GET /users/{id}/edit", s.guard(true, s.handleUserEdit))
	mux.Handle("PUT /users/{id}", s.guard(true, s.handleUserUpdate))
	mux.Handle("POST /users/{id}/activate", s.guard(true, s.handleUserActivate))
	mux.Handle("POST /users/{id}/deactivate", s.guard(true, s.handleUserDeactivate))
	mux.Handle("GET /users/{id}/delete", s.guard(true, s.handleUserConfirmDelete))
	mux.Handle("POST /users/{id}/delete", s.guard(true, s.handleUserDelete))

	mux.Handle("GET /audit", s.guard(true, s.handleAudit))
	mux.Handle("GET /audit/{table}/{id}", s.guard(true, s.handleAuditTrail))

	mux.Handle("GET /logs", s.guard(true, s.handleLogs))
	mux.Handle("GET /logs/stream", s.guard(true, s.handleLogsStream))

	// Anything else lands on the dashboard.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.redirect(w, r, "/dashboard")
	})
	return mux
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).String(),
	})
}

// handleReady reports whether the console can serve pages.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"templates":     "ok",
		"live_sessions": 0,
		"rate_limited":  s.limiter.GetMetrics(),
		"security":      s.detector.GetMetrics(),
		"requests":      s.tracer.GetMetrics(),
		"workspaces":    s.workspaces.store.Size(),
	}
	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.sessions == nil {
		checks["sessions"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["live_sessions"] = s.sessions.Live()
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
