// Package ingest turns an uploaded spreadsheet into product records.
//
// The first row of the first sheet is the header. Every required column must
// be present or the whole file is rejected; numeric cells that cannot be read
// become zero.
package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"profitdash/internal/core"
)

// Format identifies the spreadsheet encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	// FormatXLS is the legacy binary workbook. It is detected only to be rejected.
	FormatXLS Format = "xls"
)

// DefaultMaxRows bounds the number of data rows accepted from one file.
const DefaultMaxRows = 10000

// Options tunes Parse.
type Options struct {
	// MaxRows caps data rows; zero means DefaultMaxRows.
	MaxRows int
	// Now stamps product ids; nil means time.Now.
	Now func() time.Time
	// DecimalComma reads "1.234,56" as 1234.56. Parse sets it for
	// semicolon separated CSV files.
	DecimalComma bool
}

// Result is a parsed upload.
type Result struct {
	Products []core.Product
	Format   Format
	// Sheet is the worksheet read for xlsx files.
	Sheet string
	// Columns are the non-empty header names in file order.
	Columns []string
	// BlankRows counts data rows skipped because every cell was empty.
	BlankRows int
}

// DetectFormat picks the format from the file name, falling back to the
// content when the extension is missing or unknown.
func DetectFormat(name string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xls":
		return FormatXLS, fmt.Errorf("%w: legacy .xls workbooks are not supported, save the file as .xlsx", ErrUnsupportedFormat)
	default:
		f := sniff(head)
		if f == FormatXLS {
			return f, fmt.Errorf("%w: legacy .xls workbooks are not supported", ErrUnsupportedFormat)
		}
		return f, nil
	}
}

// Parse reads a spreadsheet named name from r and converts its rows to products.
// The whole file is read into memory; callers bound its size.
func Parse(ctx context.Context, name string, r io.Reader, opts Options) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	format, err := DetectFormat(name, data)
	if err != nil {
		return Result{}, err
	}

	var (
		rows  [][]string
		sheet string
	)
	switch format {
	case FormatXLSX:
		rows, sheet, err = decodeXLSX(data)
	case FormatCSV:
		var decimalComma bool
		rows, decimalComma, err = decodeCSV(data)
		opts.DecimalComma = opts.DecimalComma || decimalComma
	}
	if err != nil {
		return Result{Format: format, Sheet: sheet}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res, err := Rows(rows, opts)
	res.Format = format
	res.Sheet = sheet
	return res, err
}

// Rows converts already decoded rows, header first, into products.
func Rows(rows [][]string, opts Options) (Result, error) {
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	// Leading blank rows are not a header.
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return Result{}, ErrEmptySheet
	}

	h := newHeader(rows[0])
	res := Result{Columns: h.names(rows[0])}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			res.BlankRows++
			continue
		}
		data = append(data, row)
	}
	if len(data) == 0 {
		return res, ErrEmptySheet
	}

	if missing := h.missing(); len(missing) > 0 {
		return res, &MissingColumnsError{Columns: missing}
	}

	if len(data) > maxRows {
		return res, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(data), maxRows)
	}

	num := func(s string) float64 { return coerce(s, opts.DecimalComma) }
	stamp := now().UnixMilli()
	res.Products = make([]core.Product, 0, len(data))
	for i, row := range data {
		res.Products = append(res.Products, core.Product{
			ID:               fmt.Sprintf("product-%d-%d", stamp, i),
			Name:             h.cell(row, ColumnProductName),
			Sales:            num(h.cell(row, ColumnSales)),
			Profit:           num(h.cell(row, ColumnProfit)),
			TotalExpense:     num(h.cell(row, ColumnTE)),
			Credit:           num(h.cell(row, ColumnCredit)),
			MarketplaceFee:   num(h.cell(row, ColumnAmazonFee)),
			ProfitPercentage: num(h.cell(row, ColumnProfitPercentage)),
		})
	}
	return res, nil
}
