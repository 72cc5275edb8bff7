package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"winery/internal/core"
	"winery/internal/sheets"
)

// Header is the first row of the report sheet. Column order is fixed.
var Header = []any{"Period", "From", "To", "Entries", "Work hours", "Paid", "Due", "Total", "Exported at"}

// rowValues renders a report row as sheet cells.
func rowValues(r sheets.ReportRow) []any {
	return []any{
		r.Period,
		r.FromDate.String(),
		r.ToDate.String(),
		r.TotalEntries,
		r.TotalWorkHours.String(),
		r.TotalAmountPaid.String(),
		r.TotalAmountDue.String(),
		r.GrandTotal.String(),
		r.ExportedAt.UTC().Format(time.RFC3339),
	}
}

// parseReportRows converts a values matrix (as returned by the Sheets API,
// header excluded) back into report rows. Blank rows are skipped.
func parseReportRows(values [][]any) ([]sheets.ReportRow, error) {
	out := make([]sheets.ReportRow, 0, len(values))
	for i, raw := range values {
		row := toStrings(raw)
		period := safeGet(row, 0)
		if period == "" {
			continue
		}
		r := sheets.ReportRow{Period: period}
		var err error
		if r.FromDate, err = core.ParseDate(safeGet(row, 1)); err != nil {
			return nil, fmt.Errorf("row %d: from date: %w", i+2, err)
		}
		if r.ToDate, err = core.ParseDate(safeGet(row, 2)); err != nil {
			return nil, fmt.Errorf("row %d: to date: %w", i+2, err)
		}
		if s := safeGet(row, 3); s != "" {
			if r.TotalEntries, err = strconv.ParseInt(s, 10, 64); err != nil {
				return nil, fmt.Errorf("row %d: entries: %w", i+2, err)
			}
		}
		amounts := []*core.Decimal{&r.TotalWorkHours, &r.TotalAmountPaid, &r.TotalAmountDue, &r.GrandTotal}
		for j, dst := range amounts {
			s := safeGet(row, 4+j)
			if s == "" {
				continue
			}
			if *dst, err = core.ParseDecimal(s); err != nil {
				return nil, fmt.Errorf("row %d: column %d: %w", i+2, 5+j, err)
			}
		}
		if s := safeGet(row, 8); s != "" {
			r.ExportedAt, _ = time.Parse(time.RFC3339, s)
		}
		out = append(out, r)
	}
	return out, nil
}

// findPeriodRow returns the 1-based sheet row holding period in column A, or 0.
func findPeriodRow(column [][]any, period string) int {
	for i, raw := range column {
		if strings.TrimSpace(safeGet(toStrings(raw), 0)) == period {
			return i + 1
		}
	}
	return 0
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
