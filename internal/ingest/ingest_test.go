package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

const validCSV = "Product Name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\n" +
	"Wireless Headphones,1200,300,700,50,150,25\n" +
	"USB Cable,abc,10,5,0,2,N/A\n"

func workbook(t *testing.T, sheet string, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func headerRow() []any {
	out := make([]any, 0, len(requiredColumns))
	for _, c := range requiredColumns {
		out = append(out, c)
	}
	return out
}

func TestParse_CSV(t *testing.T) {
	res, err := Parse(context.Background(), "products.csv", strings.NewReader(validCSV), Options{Now: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, res.Format)
	require.Len(t, res.Products, 2)

	p := res.Products[0]
	assert.Equal(t, "product-1700000000000-0", p.ID)
	assert.Equal(t, "Wireless Headphones", p.Name)
	assert.Equal(t, 1200.0, p.Sales)
	assert.Equal(t, 300.0, p.Profit)
	assert.Equal(t, 700.0, p.TotalExpense)
	assert.Equal(t, 50.0, p.Credit)
	assert.Equal(t, 150.0, p.MarketplaceFee)
	assert.Equal(t, 25.0, p.ProfitPercentage)

	// unreadable numbers fall back to zero
	q := res.Products[1]
	assert.Equal(t, "product-1700000000000-1", q.ID)
	assert.Zero(t, q.Sales)
	assert.Zero(t, q.ProfitPercentage)
	assert.Equal(t, 10.0, q.Profit)
}

func TestParse_CSVWithBOMAndPaddedHeaders(t *testing.T) {
	in := "\ufeff Product Name , Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage,Notes\n" +
		"Mug,10,2,7,0,1,20,fragile\n"

	res, err := Parse(context.Background(), "export.csv", strings.NewReader(in), Options{Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Mug", res.Products[0].Name)
	assert.Contains(t, res.Columns, "Notes")
}

func TestParse_CSVSemicolon(t *testing.T) {
	in := "Product Name;Sales;Profit;TE;Credit;Amazon Fee;Profit Percentage\n" +
		"Lamp;99.5;20;70;0;9.5;20.1\n"

	res, err := Parse(context.Background(), "lamp.csv", strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, 99.5, res.Products[0].Sales)
	assert.Equal(t, 9.5, res.Products[0].MarketplaceFee)
}

func TestParse_CSVSemicolonDecimalComma(t *testing.T) {
	in := "Product Name;Sales;Profit;TE;Credit;Amazon Fee;Profit Percentage\n" +
		"Desk;1234,56;12,5;3,2;0;1,5;12,5\n" +
		"Chair;1.250,00;-4,75;1.000;0;0,25;-0,4\n"

	res, err := Parse(context.Background(), "de.csv", strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, res.Products, 2)

	desk := res.Products[0]
	assert.InDelta(t, 1234.56, desk.Sales, 1e-9)
	assert.InDelta(t, 12.5, desk.Profit, 1e-9)
	assert.InDelta(t, 3.2, desk.TotalExpense, 1e-9)
	assert.InDelta(t, 1.5, desk.MarketplaceFee, 1e-9)
	assert.InDelta(t, 12.5, desk.ProfitPercentage, 1e-9)

	chair := res.Products[1]
	assert.InDelta(t, 1250.0, chair.Sales, 1e-9)
	assert.InDelta(t, -4.75, chair.Profit, 1e-9)
	assert.InDelta(t, 1000.0, chair.TotalExpense, 1e-9)
	assert.InDelta(t, -0.4, chair.ProfitPercentage, 1e-9)
}

func TestParse_CommaCSVKeepsThousandsCommas(t *testing.T) {
	in := "Product Name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\n" +
		"Desk,\"1,234.56\",12.5,3.2,0,1.5,12.5\n"

	res, err := Parse(context.Background(), "us.csv", strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.InDelta(t, 1234.56, res.Products[0].Sales, 1e-9)
}

func TestParse_CSVRaggedRowsAndBlankLines(t *testing.T) {
	in := "Product Name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\n" +
		",,,,,,\n" +
		"Short row,5\n"

	res, err := Parse(context.Background(), "ragged.csv", strings.NewReader(in), Options{Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, 1, res.BlankRows)
	assert.Equal(t, "product-1700000000000-0", res.Products[0].ID)
	assert.Equal(t, 5.0, res.Products[0].Sales)
	assert.Zero(t, res.Products[0].Profit)
}

func TestParse_EmptySheet(t *testing.T) {
	tests := map[string]string{
		"no content":  "",
		"header only": "Product Name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\n",
		"blank rows":  "Product Name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\n,,\n\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(context.Background(), "x.csv", strings.NewReader(in), Options{})
			require.ErrorIs(t, err, ErrEmptySheet)
			assert.Equal(t, "Sheet is empty", Message(err))
		})
	}
}

func TestParse_MissingColumns(t *testing.T) {
	in := "Product Name,Sales,Profit,Amazon Fee,Profit Percentage\nMug,1,1,1,1\n"

	_, err := Parse(context.Background(), "x.csv", strings.NewReader(in), Options{})

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"TE", "Credit"}, missing.Columns)
	assert.Equal(t, "Missing required columns: TE, Credit", Message(err))
}

func TestParse_ColumnNamesAreCaseSensitive(t *testing.T) {
	in := "product name,Sales,Profit,TE,Credit,Amazon Fee,Profit Percentage\nMug,1,1,1,1,1,1\n"

	_, err := Parse(context.Background(), "x.csv", strings.NewReader(in), Options{})

	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Product Name"}, missing.Columns)
}

func TestParse_TooManyRows(t *testing.T) {
	_, err := Parse(context.Background(), "x.csv", strings.NewReader(validCSV), Options{MaxRows: 1})
	require.ErrorIs(t, err, ErrTooManyRows)
	assert.Contains(t, Message(err), "too many rows")
}

func TestParse_XLSX(t *testing.T) {
	data := workbook(t, "Sheet1",
		headerRow(),
		[]any{"Organic Coffee Beans", 1500.75, 320.25, 1000, 30, 150.5, 21.34},
		[]any{},
		[]any{"Tea", "12", nil, 3, 0, 1, 8},
	)

	res, err := Parse(context.Background(), "report.xlsx", bytes.NewReader(data), Options{Now: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, res.Format)
	assert.Equal(t, "Sheet1", res.Sheet)
	require.Len(t, res.Products, 2)
	assert.Equal(t, "Organic Coffee Beans", res.Products[0].Name)
	assert.InDelta(t, 1500.75, res.Products[0].Sales, 1e-9)
	assert.InDelta(t, 150.5, res.Products[0].MarketplaceFee, 1e-9)
	assert.Equal(t, "product-1700000000000-1", res.Products[1].ID)
	assert.Equal(t, 12.0, res.Products[1].Sales)
	assert.Zero(t, res.Products[1].Profit)
}

func TestParse_XLSXUsesFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Products"))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	row := headerRow()
	require.NoError(t, f.SetSheetRow("Products", "A1", &row))
	require.NoError(t, f.SetSheetRow("Products", "A2", &[]any{"Desk", 300, 90, 200, 0, 10, 30}))
	require.NoError(t, f.SetSheetRow("Notes", "A1", &[]any{"free text"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Parse(context.Background(), "multi.xlsx", bytes.NewReader(buf.Bytes()), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Products", res.Sheet)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Desk", res.Products[0].Name)
}

func TestParse_XLSXMissingColumns(t *testing.T) {
	data := workbook(t, "Sheet1",
		[]any{"Product Name", "Sales"},
		[]any{"Desk", 300},
	)

	_, err := Parse(context.Background(), "bad.xlsx", bytes.NewReader(data), Options{})
	assert.Equal(t, "Missing required columns: Profit, TE, Credit, Amazon Fee, Profit Percentage", Message(err))
}

func TestParse_SniffsFormatWithoutExtension(t *testing.T) {
	data := workbook(t, "Sheet1", headerRow(), []any{"Desk", 1, 1, 1, 1, 1, 1})

	res, err := Parse(context.Background(), "upload", bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, res.Format)

	res, err = Parse(context.Background(), "upload", strings.NewReader(validCSV), Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, res.Format)
}

func TestParse_RejectsLegacyWorkbooks(t *testing.T) {
	ole := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1}
	for _, name := range []string{"legacy.xls", "unknown", "report.dat"} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(context.Background(), name, bytes.NewReader(ole), Options{})
			require.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestParse_SniffsUnknownExtensions(t *testing.T) {
	res, err := Parse(context.Background(), "export.dat", strings.NewReader(validCSV), Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, res.Format)
	assert.Len(t, res.Products, 2)

	data := workbook(t, "Sheet1", headerRow(), []any{"Desk", 1, 1, 1, 1, 1, 1})
	res, err = Parse(context.Background(), "download.bin.part", bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, res.Format)

	// Content that is not a spreadsheet fails on its header instead.
	_, err = Parse(context.Background(), "report.pdf", strings.NewReader("%PDF-1.7\nbinary"), Options{})
	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
}

func TestParse_CorruptWorkbook(t *testing.T) {
	_, err := Parse(context.Background(), "broken.xlsx", strings.NewReader("PK\x03\x04 not really a zip"), Options{})
	require.ErrorIs(t, err, ErrUnreadable)
	assert.Contains(t, Message(err), "could not be read")
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, "x.csv", strings.NewReader(validCSV), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRequiredColumns_ReturnsCopy(t *testing.T) {
	cols := RequiredColumns()
	cols[0] = "changed"
	assert.Equal(t, ColumnProductName, RequiredColumns()[0])
}
