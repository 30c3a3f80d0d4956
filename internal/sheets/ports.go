// Package sheets exports product snapshots to spreadsheets.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"profitdash/internal/core"
	"profitdash/internal/ingest"
)

// SnapshotExporter writes a snapshot somewhere a human can open it and
// returns a reference to the written range.
type SnapshotExporter interface {
	ExportSnapshot(ctx context.Context, snap core.Snapshot) (ref string, err error)
}

// maxTitle is the tab title length Google Sheets accepts.
const maxTitle = 100

// TabTitle names the tab an upload is exported to. Re-exporting the same
// upload targets the same tab.
func TabTitle(snap core.Snapshot) string {
	id := snap.UploadID
	if len(id) > 8 {
		id = id[:8]
	}
	title := fmt.Sprintf("%s %s", snap.UploadedAt.UTC().Format("2006-01-02 15.04"), id)
	if name := strings.TrimSpace(snap.FileName); name != "" {
		title += " " + name
	}
	// Characters Sheets rejects in A1 references.
	title = strings.NewReplacer("'", "", "!", "", "[", "(", "]", ")", "*", "", "?", "", "/", "-", "\\", "-", ":", ".").Replace(title)
	if r := []rune(title); len(r) > maxTitle {
		title = string(r[:maxTitle])
	}
	return title
}

// Rows lays out a snapshot as a header row followed by one row per product.
// The header uses the upload column names so an export can be uploaded again.
func Rows(snap core.Snapshot) [][]any {
	header := ingest.RequiredColumns()
	rows := make([][]any, 0, len(snap.Products)+1)
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	rows = append(rows, hdr)
	for _, p := range snap.Products {
		rows = append(rows, []any{
			p.Name,
			p.Sales,
			p.Profit,
			p.TotalExpense,
			p.Credit,
			p.MarketplaceFee,
			p.ProfitPercentage,
		})
	}
	return rows
}

// DataRange is the A1 range rows occupy on sheet when written from A1,
// e.g. "'2024 tab'!A1:G3". sheet is used as given, quoting included.
func DataRange(sheet string, rows [][]any) (string, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", fmt.Errorf("no rows to place on %s", sheet)
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), len(rows))
	if err != nil {
		return "", fmt.Errorf("range for %d columns, %d rows: %w", len(rows[0]), len(rows), err)
	}
	return sheet + "!A1:" + last, nil
}
