package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"tucano/internal/log"
	ports "tucano/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// maxTitleLength is the longest sheet title Google Sheets accepts.
const maxTitleLength = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name of the per-user ledger tabs (e.g. "Ledger"); the user id is appended.
	sheetPrefix string
	logger      *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

// Ensure interface conformance
var _ ports.Ledger = (*Client)(nil)

// Options configures the ledger mirror.
type Options struct {
	SpreadsheetID string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	SheetPrefix     string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	prefix := strings.TrimSpace(opts.SheetPrefix)
	if prefix == "" {
		prefix = "Ledger"
	}

	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetPrefix:   prefix,
		logger:        logger,
		known:         map[string]bool{},
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(opts.CredentialsFile)

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", log.FieldPath, serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
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

// WriteLedger clears the user's tab and writes the header plus every row.
func (c *Client) WriteLedger(ctx context.Context, uid string, rows []ports.Row) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := sheetTitle(c.sheetPrefix, uid)
	exists, err := c.sheetExists(ctx, title)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := c.addSheet(ctx, title); err != nil {
			return "", err
		}
	}

	rng := a1Range(title, "A:H")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", rng, err)
	}

	values := ledgerValues(rows)
	start := a1Range(title, "A1")
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, start, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", title, err)
	}

	ref := a1Range(title, fmt.Sprintf("A1:H%d", len(values)))
	c.logger.InfoContext(ctx, "Ledger mirrored",
		log.FieldUserID, uid,
		log.FieldCount, len(rows),
		log.FieldSheetsRef, ref)
	return ref, nil
}

// ReadLedger reads back the user's tab.
func (c *Client) ReadLedger(ctx context.Context, uid string) ([]ports.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	title := sheetTitle(c.sheetPrefix, uid)
	exists, err := c.sheetExists(ctx, title)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	rng := a1Range(title, "A:H")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedger(resp.Values)
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	ok := c.known[title]
	c.mu.Unlock()
	if ok {
		return true, nil
	}

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	return c.known[title], nil
}

func (c *Client) addSheet(ctx context.Context, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Created ledger sheet", "sheet", title)
	return nil
}

// sheetTitle returns "<prefix> <uid>" cut to the title length limit.
func sheetTitle(prefix, uid string) string {
	title := strings.TrimSpace(prefix + " " + uid)
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title
}

// a1Range quotes the sheet title for A1 notation.
func a1Range(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func ledgerValues(rows []ports.Row) [][]any {
	values := make([][]any, 0, len(rows)+1)
	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	values = append(values, header)
	for _, r := range rows {
		values = append(values, []any{
			r.ID, r.Date, r.Name, r.Type, r.Category, r.Amount.String(), paidCell(r.Paid), r.Installment,
		})
	}
	return values
}

func paidCell(paid bool) string {
	if paid {
		return "yes"
	}
	return "no"
}
