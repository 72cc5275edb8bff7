package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/session"
	"winery/internal/winery"
)

// tile is one dashboard figure. A failed tile shows its error and the
// others still render.
type tile[T any] struct {
	Value T
	Error string
}

type dashboardData struct {
	From          core.Date
	To            core.Date
	Summary       tile[core.ReportSummary]
	Entries       tile[core.Totals]
	Events        tile[core.Totals]
	ActivePersons tile[int64]
}

// handleDashboard fans out the month's figures in parallel.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, st *session.State) {
	ctx, cancel := context.WithTimeout(r.Context(), 7*time.Second)
	defer cancel()

	from, to := filter.CurrentMonth(s.now())
	data := dashboardData{From: from, To: to}
	// One result slot per tile, so the goroutines never share a field. A
	// failing tile does not cancel the others.
	errs := make([]error, 4)
	var wg sync.WaitGroup
	fetch := func(i int, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn()
		}()
	}
	fetch(0, func() (err error) {
		data.Summary.Value, err = s.api.Summary(ctx, winery.SummaryQuery{FromDate: from, ToDate: to})
		return err
	})
	fetch(1, func() error {
		page, err := s.api.ListEntries(ctx, listing.Request{Size: 1}, filter.EntryFilter{DateFrom: from, DateTo: to})
		data.Entries.Value = page.GrandTotal
		return err
	})
	fetch(2, func() error {
		page, err := s.api.ListEvents(ctx, listing.Request{Size: 1}, filter.EventFilter{DateFrom: from, DateTo: to})
		data.Events.Value = page.GrandTotal
		return err
	})
	fetch(3, func() error {
		page, err := s.api.ListPersons(ctx, listing.Request{Size: 1}, filter.PersonFilter{Active: filter.Bool(true)})
		data.ActivePersons.Value = page.TotalElements
		return err
	})
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrUnauthorized) {
			s.fail(w, r, st, err)
			return
		}
		log.FromContext(ctx).WarnContext(ctx, "Dashboard tile failed", "tile", i, log.FieldError, err)
		msg := userMessage(err)
		switch i {
		case 0:
			data.Summary.Error = msg
		case 1:
			data.Entries.Error = msg
		case 2:
			data.Events.Error = msg
		case 3:
			data.ActivePersons.Error = msg
		}
	}

	s.renderLayout(w, r, st, "dashboard", "Dashboard", "dashboard", data)
}
