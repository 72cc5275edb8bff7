package google

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/core"
	"winery/internal/sheets"
)

func TestRowValuesRoundTrip(t *testing.T) {
	row := sheets.ReportRow{
		Period:          "2026-03",
		FromDate:        core.NewDate(2026, 3, 1),
		ToDate:          core.NewDate(2026, 3, 31),
		TotalEntries:    45,
		TotalWorkHours:  core.MustDecimal("312.5"),
		TotalAmountPaid: core.MustDecimal("1200"),
		TotalAmountDue:  core.MustDecimal("80.25"),
		GrandTotal:      core.MustDecimal("1280.25"),
		ExportedAt:      time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC),
	}

	values := rowValues(row)
	require.Len(t, values, len(Header))
	assert.Equal(t, "312.50", values[4])

	// The API returns every cell as a string.
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = toStrings([]any{v})[0]
	}
	parsed, err := parseReportRows([][]any{cells})
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, row, parsed[0])
}

func TestParseReportRows(t *testing.T) {
	values := [][]any{
		{"2026-01", "2026-01-01", "2026-01-31", "3", "10", "100", "0", "100"},
		{},
		{"", "ignored"},
		{"2026-02", "2026-02-01", "2026-02-28"},
	}
	rows, err := parseReportRows(values)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].TotalEntries)
	assert.Equal(t, core.MustDecimal("100"), rows[0].GrandTotal)
	assert.True(t, rows[1].GrandTotal.IsZero())
	assert.True(t, rows[1].ExportedAt.IsZero())

	_, err = parseReportRows([][]any{{"2026-01", "01/01/2026", "2026-01-31"}})
	assert.ErrorContains(t, err, "row 2: from date")

	_, err = parseReportRows([][]any{{"2026-01", "2026-01-01", "2026-01-31", "1", "x"}})
	assert.ErrorContains(t, err, "column 5")
}

func TestFindPeriodRow(t *testing.T) {
	column := [][]any{{"Period"}, {"2026-01"}, {}, {" 2026-03 "}}
	assert.Equal(t, 2, findPeriodRow(column, "2026-01"))
	assert.Equal(t, 4, findPeriodRow(column, "2026-03"))
	assert.Equal(t, 0, findPeriodRow(column, "2026-02"))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")

	_, err = New(context.Background(), Config{SpreadsheetID: "sheet"}, nil)
	assert.ErrorContains(t, err, "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "sheet", ServiceAccountFile: "/does/not/exist.json"}, nil)
	assert.ErrorContains(t, err, "read service account file")
}

func TestClient_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "sheet", sheetName: "Reports"}
	_, err := c.WriteReport(context.Background(), sheets.ReportRow{Period: "2026-01"})
	assert.Error(t, err)
	_, err = c.ListReports(context.Background())
	assert.Error(t, err)
}
