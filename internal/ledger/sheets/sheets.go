// Package sheets implements ledger.Table on the Google Sheets API.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
)

const valueInput = "USER_ENTERED"

// Config identifies the spreadsheet and how to authenticate.
type Config struct {
	SpreadsheetID string
	// CredentialsJSON is a service account key. CredentialsFile is read
	// when it is empty. Both empty falls back to application default
	// credentials.
	CredentialsJSON string
	CredentialsFile string
}

// Table talks to one spreadsheet.
type Table struct {
	svc *gsheets.Service
	id  string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New builds a client for cfg. Extra options are appended, which lets tests
// point the client at a fake endpoint.
func New(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Table, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Table{svc: svc, id: cfg.SpreadsheetID, sheetIDs: make(map[string]int64)}, nil
}

// A1 builds an A1 range for sheet, quoting the sheet name.
func A1(sheet, ref string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if ref == "" {
		return quoted
	}
	return quoted + "!" + ref
}

func (t *Table) AppendRow(ctx context.Context, sheet string, row []string) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{toInterfaces(row)}}
	_, err := t.svc.Spreadsheets.Values.Append(t.id, A1(sheet, "A:A"), vr).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: append to %s: %w", sheet, err)
	}
	return nil
}

func (t *Table) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.id, A1(sheet, "")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", sheet, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (t *Table) DeleteRow(ctx context.Context, sheet string, row int) error {
	if row < 1 {
		return fmt.Errorf("%w: %s row %d", ledger.ErrOutOfRange, sheet, row)
	}
	sheetID, err := t.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
					// Zero values are dropped by omitempty otherwise.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := t.svc.Spreadsheets.BatchUpdate(t.id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: delete %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (t *Table) ReadCell(ctx context.Context, sheet, column string, row int) (string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.id, A1(sheet, fmt.Sprintf("%s%d", column, row))).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("sheets: read %s%d: %w", column, row, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprint(resp.Values[0][0]), nil
}

func (t *Table) WriteCell(ctx context.Context, sheet, column string, row int, value string) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := t.svc.Spreadsheets.Values.Update(t.id, A1(sheet, fmt.Sprintf("%s%d", column, row)), vr).
		ValueInputOption(valueInput).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: write %s%d: %w", column, row, err)
	}
	return nil
}

// sheetID resolves a tab title to its numeric id, caching the lookup.
func (t *Table) sheetID(ctx context.Context, title string) (int64, error) {
	t.mu.Lock()
	id, ok := t.sheetIDs[title]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := t.svc.Spreadsheets.Get(t.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: resolve sheet ids: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			t.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok = t.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheets: no tab named %q", title)
	}
	return id, nil
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}
