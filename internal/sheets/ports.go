package sheets

import (
	"context"
	"time"

	"winery/internal/core"
)

// ReportRow is one month of the exported report sheet, keyed by Period.
type ReportRow struct {
	Period          string
	FromDate        core.Date
	ToDate          core.Date
	TotalEntries    int64
	TotalWorkHours  core.Decimal
	TotalAmountPaid core.Decimal
	TotalAmountDue  core.Decimal
	GrandTotal      core.Decimal
	ExportedAt      time.Time
}

// Period formats the month a report covers, e.g. "2026-03".
func Period(d core.Date) string {
	return d.Format("2006-01")
}

// RowFromSummary turns a report summary into a sheet row.
func RowFromSummary(s core.ReportSummary, at time.Time) ReportRow {
	return ReportRow{
		Period:          Period(s.FromDate),
		FromDate:        s.FromDate,
		ToDate:          s.ToDate,
		TotalEntries:    s.TotalEntries,
		TotalWorkHours:  s.TotalWorkHours,
		TotalAmountPaid: s.TotalAmountPaid,
		TotalAmountDue:  s.TotalAmountDue,
		GrandTotal:      s.GrandTotal,
		ExportedAt:      at,
	}
}

// Ports for outbound adapters.
type (
	// ReportWriter stores a row, replacing any existing row for the same period.
	ReportWriter interface {
		WriteReport(ctx context.Context, row ReportRow) (rowRef string, err error)
	}

	ReportReader interface {
		ListReports(ctx context.Context) ([]ReportRow, error)
	}
)
