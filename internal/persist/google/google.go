// Package google persists the ledger snapshot in a Google Sheets spreadsheet
// with two worksheets: one row per entry, and a key/value meta sheet holding
// the next id and the category registry.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"conti/internal/core"
	"conti/internal/persist"
)

const (
	DefaultExpensesSheet = "expenses"
	DefaultMetaSheet     = "meta"
)

// Config selects the spreadsheet and the credentials. Credentials are taken
// from CredentialsJSON, then CredentialsFile; when both are empty
// application default credentials are used.
type Config struct {
	SpreadsheetID   string
	ExpensesSheet   string
	MetaSheet       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	metaSheet     string
}

var _ persist.Port = (*Client)(nil)

// NewFromEnv reads Config from GOOGLE_SHEET_ID (or GOOGLE_SPREADSHEET_ID),
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_EXPENSES_SHEET_NAME and
// GOOGLE_META_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg := Config{
		SpreadsheetID:   firstEnv("GOOGLE_SHEET_ID", "GOOGLE_SPREADSHEET_ID"),
		ExpensesSheet:   firstEnv("GOOGLE_EXPENSES_SHEET_NAME"),
		MetaSheet:       firstEnv("GOOGLE_META_SHEET_NAME"),
		CredentialsJSON: firstEnv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: firstEnv("GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"),
	}
	return New(ctx, cfg)
}

// New creates a Sheets client. It does not contact the API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		expensesSheet: orDefault(cfg.ExpensesSheet, DefaultExpensesSheet),
		metaSheet:     orDefault(cfg.MetaSheet, DefaultMetaSheet),
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", cfg.CredentialsFile)
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		slog.InfoContext(ctx, "Using application default credentials")
	}
	return gsheet.NewService(ctx, opts...)
}

func (c *Client) Name() string { return "sheets" }

// Load reads both worksheets concurrently. An empty expenses sheet with no
// meta rows is reported as not found.
func (c *Client) Load(ctx context.Context) (core.Snapshot, bool, error) {
	if c.svc == nil {
		return core.Snapshot{}, false, errors.New("sheets service not initialized")
	}
	if err := c.ensureSheets(ctx, 0, 0); err != nil {
		return core.Snapshot{}, false, err
	}

	var expRows, metaRows [][]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expRows, err = c.readAll(gctx, c.expensesSheet)
		return err
	})
	g.Go(func() error {
		var err error
		metaRows, err = c.readAll(gctx, c.metaSheet)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, false, err
	}

	if len(expRows) <= 1 && len(metaRows) <= 1 {
		return core.Snapshot{}, false, nil
	}
	snap, issues, err := DecodeRows(expRows, metaRows)
	if err != nil {
		return core.Snapshot{}, false, err
	}
	for _, is := range issues {
		slog.WarnContext(ctx, "Ignoring malformed cell",
			"sheet", c.expensesSheet,
			"issue", is.Error())
	}
	return snap, true, nil
}

// Save clears both worksheets and rewrites them. Values are written RAW so
// that user text is never interpreted as a formula.
func (c *Client) Save(ctx context.Context, snap core.Snapshot) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	expRows := EncodeEntries(snap.Entries)
	metaRows, err := EncodeMeta(snap)
	if err != nil {
		return err
	}
	if err := c.ensureSheets(ctx, len(expRows)+10, len(metaRows)+5); err != nil {
		return err
	}
	if err := c.rewrite(ctx, c.expensesSheet, expRows); err != nil {
		return err
	}
	if err := c.rewrite(ctx, c.metaSheet, metaRows); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Saved ledger to Google Sheets",
		"spreadsheet_id", c.spreadsheetID,
		"entries", len(snap.Entries))
	return nil
}

func (c *Client) readAll(ctx context.Context, sheet string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(sheet)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	return resp.Values, nil
}

// rewrite overwrites sheet from A1 and only then clears the rows left below
// the new data. A failed write leaves the previous rows in place.
func (c *Client) rewrite(ctx context.Context, sheet string, rows [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quote(sheet)+"!A1", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tailRange(sheet, len(rows)), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s below row %d: %w", sheet, len(rows), err)
	}
	return nil
}

// tailRange is the A1 range of every row after the first written rows.
func tailRange(sheet string, written int) string {
	return fmt.Sprintf("%s!A%d:Z", quote(sheet), written+1)
}

// ensureSheets creates missing worksheets with their header row and grows
// existing ones to at least the given row counts (0 leaves the size alone).
func (c *Client) ensureSheets(ctx context.Context, expRows, metaRows int) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	existing := map[string]*gsheet.SheetProperties{}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = sh.Properties
		}
	}

	want := []struct {
		title   string
		headers []any
		rows    int
	}{
		{c.expensesSheet, headerRow(ExpenseHeaders), expRows},
		{c.metaSheet, headerRow(MetaHeaders), metaRows},
	}
	var reqs []*gsheet.Request
	var created []int
	for i, w := range want {
		props, ok := existing[w.title]
		if !ok {
			reqs = append(reqs, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{
					Title: w.title,
					GridProperties: &gsheet.GridProperties{
						RowCount:    int64(max(w.rows, 100)),
						ColumnCount: int64(len(w.headers)),
					},
				},
			}})
			created = append(created, i)
			continue
		}
		grid := props.GridProperties
		if grid == nil || w.rows == 0 {
			continue
		}
		if grid.RowCount < int64(w.rows) || grid.ColumnCount < int64(len(w.headers)) {
			reqs = append(reqs, &gsheet.Request{UpdateSheetProperties: &gsheet.UpdateSheetPropertiesRequest{
				Properties: &gsheet.SheetProperties{
					SheetId: props.SheetId,
					GridProperties: &gsheet.GridProperties{
						RowCount:    max(grid.RowCount, int64(w.rows)),
						ColumnCount: max(grid.ColumnCount, int64(len(w.headers))),
					},
				},
				Fields: "gridProperties.rowCount,gridProperties.columnCount",
			}})
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("prepare worksheets: %w", err)
	}
	for _, i := range created {
		w := want[i]
		slog.InfoContext(ctx, "Created worksheet", "sheet", w.title)
		if err := c.rewrite(ctx, w.title, [][]any{w.headers}); err != nil {
			return err
		}
	}
	return nil
}

func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
