package http

import (
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/reports"
	"winery/internal/session"
	"winery/internal/winery"
)

type reportsData struct {
	From       core.Date
	To         core.Date
	PersonID   int64
	CategoryID int64
	Report     reports.Report
	Summary    core.ReportSummary
	Choices    choices
}

// parseReportQuery reads the period and optional person and category. The
// period defaults to the current month.
func parseReportQuery(r *http.Request, from, to core.Date) (winery.SummaryQuery, error) {
	q := winery.SummaryQuery{FromDate: from, ToDate: to}
	v := r.URL.Query()
	if s := v.Get("dateFrom"); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return q, fmt.Errorf("%w: dateFrom %q", filter.ErrInvalidFilter, s)
		}
		q.FromDate = d
	}
	if s := v.Get("dateTo"); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			return q, fmt.Errorf("%w: dateTo %q", filter.ErrInvalidFilter, s)
		}
		q.ToDate = d
	}
	f, err := filter.ParseEntryFilter(map[string][]string{
		"person":   v["personId"],
		"category": v["categoryId"],
	})
	if err != nil {
		return q, err
	}
	if len(f.PersonIDs) > 0 {
		q.PersonID = f.PersonIDs[0]
	}
	if len(f.CategoryIDs) > 0 {
		q.CategoryID = f.CategoryIDs[0]
	}
	if q.ToDate.Before(q.FromDate.Time) {
		return q, fmt.Errorf("%w: dateTo before dateFrom", filter.ErrInvalidFilter)
	}
	return q, nil
}

// handleReports aggregates the period's entries next to the server summary.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request, st *session.State) {
	ctx := r.Context()
	from, to := filter.CurrentMonth(s.now())
	q, err := parseReportQuery(r, from, to)
	if err != nil {
		s.fail(w, r, st, err)
		return
	}

	ef := filter.EntryFilter{DateFrom: q.FromDate, DateTo: q.ToDate}
	if q.PersonID > 0 {
		ef.PersonIDs = []int64{q.PersonID}
	}
	if q.CategoryID > 0 {
		ef.CategoryIDs = []int64{q.CategoryID}
	}

	data := reportsData{From: q.FromDate, To: q.ToDate, PersonID: q.PersonID, CategoryID: q.CategoryID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := s.api.ListEntries(gctx, listing.Request{Size: reports.EntryLimit, Sort: listing.Sort{Field: "date"}}, ef)
		if err != nil {
			return err
		}
		data.Report = reports.Aggregate(page.Content)
		data.Report.Truncated = page.TotalElements > int64(len(page.Content))
		return nil
	})
	g.Go(func() error {
		var err error
		data.Summary, err = s.api.Summary(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		data.Choices, err = s.choices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, st, err)
		return
	}
	s.renderPage(w, r, st, "reports", "Reports", "reports", data)
}
