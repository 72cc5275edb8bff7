package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"winery/internal/amqp"
	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/log"
	"winery/internal/sheets"
	"winery/internal/winery"
)

// ReportWorker keeps the monthly report sheet in step with entry changes.
// It talks to the API as a regular user, logging in lazily and again
// whenever the token is rejected.
type ReportWorker struct {
	auth    winery.AuthAPI
	reports winery.ReportAPI
	writer  sheets.ReportWriter
	creds   core.Credentials
	logger  *log.Logger
	now     func() time.Time

	mu    sync.Mutex
	token string
}

type Option func(*ReportWorker)

func WithClock(now func() time.Time) Option {
	return func(w *ReportWorker) { w.now = now }
}

func NewReportWorker(api interface {
	winery.AuthAPI
	winery.ReportAPI
}, writer sheets.ReportWriter, creds core.Credentials, logger *log.Logger, opts ...Option) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	w := &ReportWorker{
		auth:    api,
		reports: api,
		writer:  writer,
		creds:   creds,
		logger:  logger.WithComponent(log.ComponentWorker),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleRecordChanged re-exports the month of a changed entry. Other
// resources do not affect the report and are acknowledged untouched.
func (w *ReportWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChanged) error {
	if msg.Resource != core.ResourceEntries {
		w.logger.DebugContext(ctx, "Ignoring record change",
			log.FieldResource, msg.Resource,
			log.FieldRecordID, msg.RecordID)
		return nil
	}

	day := core.DateOf(w.now())
	if msg.Date != "" {
		d, err := core.ParseDate(msg.Date)
		if err != nil {
			// A bad date will not get better on redelivery.
			w.logger.WarnContext(ctx, "Record change with invalid date",
				log.FieldRecordID, msg.RecordID,
				"date", msg.Date)
			return nil
		}
		day = d
	}

	w.logger.InfoContext(ctx, "Processing entry change",
		log.FieldRecordID, msg.RecordID,
		"action", msg.Action,
		"period", sheets.Period(day))
	return w.ExportMonth(ctx, day)
}

// ExportCurrentMonth is the periodic backstop for lost notifications.
func (w *ReportWorker) ExportCurrentMonth(ctx context.Context) error {
	return w.ExportMonth(ctx, core.DateOf(w.now()))
}

// ExportMonth writes the summary of the calendar month containing day.
func (w *ReportWorker) ExportMonth(ctx context.Context, day core.Date) error {
	from, to := filter.CurrentMonth(day.Time)
	q := winery.SummaryQuery{FromDate: from, ToDate: to}

	summary, err := w.summary(ctx, q)
	if err != nil {
		return fmt.Errorf("summary %s: %w", sheets.Period(from), err)
	}
	// The API echoes the period back, but an empty echo must not produce an
	// unkeyed row.
	if summary.FromDate.IsZero() {
		summary.FromDate, summary.ToDate = from, to
	}

	row := sheets.RowFromSummary(summary, w.now())
	ref, err := w.writer.WriteReport(ctx, row)
	if err != nil {
		return fmt.Errorf("write report %s: %w", row.Period, err)
	}

	w.logger.InfoContext(ctx, "Report exported",
		"period", row.Period,
		"row_ref", ref,
		"entries", row.TotalEntries,
		"grand_total", row.GrandTotal.String())
	return nil
}

// Run exports the current month immediately and then every interval until
// ctx ends.
func (w *ReportWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.ExportCurrentMonth(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup export failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportCurrentMonth(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}

func (w *ReportWorker) summary(ctx context.Context, q winery.SummaryQuery) (core.ReportSummary, error) {
	token, err := w.session(ctx, false)
	if err != nil {
		return core.ReportSummary{}, err
	}
	s, err := w.reports.Summary(winery.WithToken(ctx, token), q)
	if !errors.Is(err, core.ErrUnauthorized) {
		return s, err
	}

	w.logger.InfoContext(ctx, "Worker token rejected, logging in again")
	if token, err = w.session(ctx, true); err != nil {
		return core.ReportSummary{}, err
	}
	return w.reports.Summary(winery.WithToken(ctx, token), q)
}

func (w *ReportWorker) session(ctx context.Context, renew bool) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != "" && !renew {
		return w.token, nil
	}
	resp, err := w.auth.Login(ctx, w.creds)
	if err != nil {
		w.token = ""
		return "", fmt.Errorf("worker login as %s: %w", w.creds.Username, err)
	}
	w.token = resp.AccessToken
	w.logger.InfoContext(ctx, "Worker logged in", log.FieldUsername, resp.Username)
	return w.token, nil
}
