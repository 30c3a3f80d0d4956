package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptySheet is returned when the sheet has no data rows under the header.
	ErrEmptySheet = errors.New("sheet is empty")
	// ErrUnsupportedFormat is returned for legacy binary .xls workbooks.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrTooManyRows is returned when the sheet exceeds Options.MaxRows.
	ErrTooManyRows = errors.New("too many rows")
	// ErrUnreadable wraps decoder failures (corrupt workbook, broken csv quoting).
	ErrUnreadable = errors.New("file could not be read")
)

// MissingColumnsError lists the required headers absent from the sheet, in
// the order RequiredColumns returns them.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// Message turns an ingestion error into the sentence shown to the user.
func Message(err error) string {
	var missing *MissingColumnsError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing):
		return "Missing required columns: " + strings.Join(missing.Columns, ", ")
	case errors.Is(err, ErrEmptySheet):
		return "Sheet is empty"
	case errors.Is(err, ErrUnsupportedFormat):
		return "Unsupported file format. Please upload an .xlsx or .csv file."
	case errors.Is(err, ErrTooManyRows):
		return fmt.Sprintf("The sheet has too many rows (%s)", strings.TrimPrefix(err.Error(), ErrTooManyRows.Error()+": "))
	case errors.Is(err, ErrUnreadable):
		return "The file could not be read. Please check that it is a valid spreadsheet."
	default:
		return "Error processing file"
	}
}
