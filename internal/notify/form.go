package notify

import (
	"context"
	"strings"

	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
)

// FormResponse is the organiser's submission for a run.
type FormResponse struct {
	Timestamp     string
	Contact       string
	Activity      string
	KeyLevel      string
	Notes         string
	PreferredTime string
	RunID         string
}

// FormReader looks up the form response for a run.
type FormReader interface {
	LookupForm(ctx context.Context, runID string) (FormResponse, bool, error)
}

// Form response columns.
const (
	formColTimestamp = iota
	formColContact
	formColActivity
	formColKeyLevel
	formColNotes
	formColPreferredTime
	formColRunID
)

// SheetFormReader reads form responses from a ledger table.
type SheetFormReader struct {
	table ledger.Table
	sheet string
}

// NewSheetFormReader reads rows of sheet from table.
func NewSheetFormReader(table ledger.Table, sheet string) *SheetFormReader {
	if sheet == "" {
		sheet = "Form Responses 1"
	}
	return &SheetFormReader{table: table, sheet: sheet}
}

// LookupForm returns the first response whose run id column matches.
func (r *SheetFormReader) LookupForm(ctx context.Context, runID string) (FormResponse, bool, error) {
	rows, err := r.table.ReadRows(ctx, r.sheet)
	if err != nil {
		return FormResponse{}, false, err
	}
	n := ledger.FindRow(rows, func(row []string) bool {
		return strings.TrimSpace(ledger.Cell(row, formColRunID)) == runID
	})
	if n == 0 {
		return FormResponse{}, false, nil
	}
	row := rows[n-1]
	return FormResponse{
		Timestamp:     ledger.Cell(row, formColTimestamp),
		Contact:       ledger.Cell(row, formColContact),
		Activity:      ledger.Cell(row, formColActivity),
		KeyLevel:      ledger.Cell(row, formColKeyLevel),
		Notes:         ledger.Cell(row, formColNotes),
		PreferredTime: ledger.Cell(row, formColPreferredTime),
		RunID:         runID,
	}, true, nil
}
