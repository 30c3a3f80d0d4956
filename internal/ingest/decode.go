package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// sniff guesses the format from the first bytes of the file.
func sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS
	default:
		return FormatCSV
	}
}

// decodeXLSX returns the rows of the first worksheet as raw cell values.
func decodeXLSX(data []byte) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: open workbook: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", ErrEmptySheet
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, sheet, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadable, sheet, err)
	}
	return rows, sheet, nil
}

// decodeCSV reads comma separated rows. A semicolon is used instead when the
// header line has semicolons and no commas; such files write numbers with a
// decimal comma, which decodeCSV reports.
func decodeCSV(data []byte) (rows [][]string, decimalComma bool, err error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.IndexByte(firstLine, ';') >= 0 && bytes.IndexByte(firstLine, ',') < 0 {
		reader.Comma = ';'
		decimalComma = true
	}

	for {
		record, rerr := reader.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, decimalComma, fmt.Errorf("%w: csv: %v", ErrUnreadable, rerr)
		}
		rows = append(rows, record)
	}
	return rows, decimalComma, nil
}
