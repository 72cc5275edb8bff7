package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"winery/internal/audit"
	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/session"
)

// auditTables are the tables the API keeps history for.
var auditTables = []string{
	core.ResourcePersons,
	core.ResourceCategories,
	core.ResourceEntries,
	core.ResourceEvents,
	core.ResourceUsers,
}

var auditScreen = listScreen[core.AuditLog, filter.AuditFilter]{
	name:  "audit",
	title: "Audit log",
	view:  func(ws *workspace) *listing.View[core.AuditLog, filter.AuditFilter] { return ws.audit },
	parse: filter.ParseAuditFilter,
	extra: func(context.Context, listing.Page[core.AuditLog]) (any, error) {
		return auditTables, nil
	},
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, auditScreen)
}

type trailData struct {
	Table string
	ID    int64
	Items []audit.Item
}

// handleAuditTrail renders the change history dialog of one record.
func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request, st *session.State) {
	table := r.PathValue("table")
	if !slices.Contains(auditTables, table) {
		s.fail(w, r, st, fmt.Errorf("%w: table %q", filter.ErrInvalidFilter, table))
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	items, err := audit.Trail(r.Context(), s.api, table, id)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPartial(w, r, http.StatusOK, "audit-trail", trailData{Table: table, ID: id, Items: items})
}
