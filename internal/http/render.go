package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/reports"
	"winery/internal/session"
	appweb "winery/web"
)

var templateFuncs = template.FuncMap{
	"money": func(d core.Decimal) string { return d.String() },
	"date": func(d core.Date) string {
		if d.IsZero() {
			return ""
		}
		return d.String()
	},
	"stamp": func(t core.Timestamp) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"selected":  filter.IsSelected,
	"names":     filter.SelectedNames,
	"joinNames": func(names []string) string { return strings.Join(names, ", ") },
	// tri renders a tri-state filter value for a select: "", "true" or "false".
	"tri": func(b *bool) string {
		if b == nil {
			return ""
		}
		return strconv.FormatBool(*b)
	},
	// sortMark is the arrow shown next to the active sort column.
	"sortMark": func(s listing.Sort, field string) string {
		if s.Field != field {
			return ""
		}
		if s.Desc {
			return "▼"
		}
		return "▲"
	},
	"percent": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) },
	"add":     func(a, b int) int { return a + b },
	"lower":   func(v any) string { return strings.ToLower(fmt.Sprint(v)) },
	"levels":  core.Levels,
	"limits":  filter.LogLimits,
	"pager": func(resource string, pos listing.Position) pagerData {
		return pagerData{Resource: resource, Position: pos}
	},
	"breakdown": func(title string, r reports.Report, stats []reports.Stat) breakdownData {
		return breakdownData{Title: title, Report: r, Stats: stats}
	},
}

type breakdownData struct {
	Title  string
	Report reports.Report
	Stats  []reports.Stat
}

// pagerData feeds the shared "pager" template.
type pagerData struct {
	Resource string
	listing.Position
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// layoutData wraps every full page.
type layoutData struct {
	Title    string
	Nav      string
	User     core.Identity
	Admin    bool
	Theme    string
	Language string
	Body     template.HTML
}

// renderPartial executes one named template into w. The output is buffered so
// a template error still yields a clean 500.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.renderWith(w, r, NewHTMXResponse().Status(status), name, data)
}

// renderWith is renderPartial for a response that also carries triggers.
func (s *Server) renderWith(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			"template", name,
			log.FieldError, err)
		InternalServerError("Page could not be rendered").Write(w)
		return
	}
	b.BodyHTML(buf.Bytes()).Write(w)
}

// renderPage renders name inside the layout, or only name+"-table" for an
// HTMX request so list reloads swap just the table.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, st *session.State, nav, title, name string, data any) {
	if isHTMX(r) {
		s.renderPartial(w, r, http.StatusOK, name+"-table", data)
		return
	}
	s.renderLayout(w, r, st, nav, title, name, data)
}

func (s *Server) renderLayout(w http.ResponseWriter, r *http.Request, st *session.State, nav, title, name string, data any) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			"template", name,
			log.FieldError, err)
		InternalServerError("Page could not be rendered").Write(w)
		return
	}

	ld := layoutData{
		Title:    title,
		Nav:      nav,
		Theme:    session.ThemeLight,
		Language: session.LanguageEnglish,
		Body:     template.HTML(body.String()),
	}
	if st != nil {
		ld.User, _ = st.Identity()
		ld.Admin = st.IsAdmin()
		ld.Theme = st.Theme()
		ld.Language = st.Language()
	}
	s.renderPartial(w, r, http.StatusOK, "layout", ld)
}

// tableData is what every list template receives.
type tableData[T any, F any] struct {
	Page   listing.Page[T]
	Filter F
	Sort   listing.Sort
	Loaded bool
	// Error is the message of a failed first load on a full page render.
	Error  string
	Admin  bool
	Extra  any
}

// dialogData is what every edit dialog receives.
type dialogData struct {
	Resource string
	Noun     string
	Title    string
	Action   string
	Edit     bool
	Form     any
	Errors   map[string]string
	Extra    any
}

// confirmData is the delete confirmation prompt.
type confirmData struct {
	Resource string
	ID       int64
	Label    string
	Action   string
}
