// Package google reads allocation exports straight from a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"alloctrack/internal/log"
	"alloctrack/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
	logger        *log.Logger
}

var _ sheets.RowSource = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_RANGE (e.g. "Allocations!A1:Z").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	rng := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_RANGE"))
	if rng == "" {
		return nil, errors.New("missing GOOGLE_SHEET_RANGE")
	}
	if logger == nil {
		logger = log.Discard()
	}

	svc, err := newSheetsService(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, rng, logger), nil
}

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID, readRange string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// WithRange returns a client reading rng instead of the configured range.
func (c *Client) WithRange(rng string) *Client {
	if strings.TrimSpace(rng) == "" {
		return c
	}
	cp := *c
	cp.readRange = rng
	return &cp
}

// newSheetsService initializes a read-only Sheets service from service
// account credentials.
func newSheetsService(ctx context.Context, logger *log.Logger, opts ...goption.ClientOption) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
	}, opts...)
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadRows reads the configured range with unformatted values, so date
// cells arrive as serial day numbers for the ingestion date rules.
func (c *Client) ReadRows(ctx context.Context) (sheets.Table, error) {
	if c.svc == nil {
		return sheets.Table{}, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return sheets.Table{}, fmt.Errorf("read %s: %w", c.readRange, err)
	}

	tbl, err := sheets.FromMatrix(sheetName(c.readRange), resp.Values)
	if err != nil {
		return sheets.Table{}, err
	}
	c.logger.InfoContext(ctx, "Sheet read",
		"range", c.readRange,
		"headers", len(tbl.Headers),
		log.FieldRowsReceived, len(tbl.Rows))
	return tbl, nil
}

// sheetName extracts the tab name of an A1 range such as 'My Tab'!A1:Z.
func sheetName(rng string) string {
	name, _, found := strings.Cut(rng, "!")
	if !found {
		return rng
	}
	return strings.Trim(name, "'")
}
