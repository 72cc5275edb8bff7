package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"winery/internal/log"
	ports "winery/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Ensure interface conformance
var (
	_ ports.ReportWriter = (*Client)(nil)
	_ ports.ReportReader = (*Client)(nil)
)

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Reports"
	}

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", cfg.ServiceAccountFile)
		credentialsJSON, err = os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// WriteReport overwrites the row for the period or appends a new one. The
// header is written first when the sheet is empty.
func (c *Client) WriteReport(ctx context.Context, row ports.ReportRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.Period == "" {
		return "", errors.New("report row without period")
	}

	column, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read period column: %w", err)
	}

	if len(column.Values) == 0 {
		header := &gsheet.ValueRange{Values: [][]any{Header}}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.sheetName+"!A1", header).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		column.Values = [][]any{Header[:1]}
	}

	target := findPeriodRow(column.Values, row.Period)
	if target == 0 {
		target = len(column.Values) + 1
	}

	rng := fmt.Sprintf("%s!A%d:I%d", c.sheetName, target, target)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("write report row: %w", err)
	}

	c.logger.InfoContext(ctx, "Report row written",
		"period", row.Period,
		"range", rng,
		"grand_total", row.GrandTotal.String())
	return rng, nil
}

// ListReports reads every report row below the header.
func (c *Client) ListReports(ctx context.Context) ([]ports.ReportRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheetName+"!A2:I").
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}
	return parseReportRows(resp.Values)
}
