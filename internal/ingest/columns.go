package ingest

import (
	"strings"
)

// Column headers an uploaded sheet must carry.
const (
	ColumnProductName      = "Product Name"
	ColumnSales            = "Sales"
	ColumnProfit           = "Profit"
	ColumnTE               = "TE"
	ColumnCredit           = "Credit"
	ColumnAmazonFee        = "Amazon Fee"
	ColumnProfitPercentage = "Profit Percentage"
)

var requiredColumns = []string{
	ColumnProductName,
	ColumnSales,
	ColumnProfit,
	ColumnTE,
	ColumnCredit,
	ColumnAmazonFee,
	ColumnProfitPercentage,
}

// RequiredColumns returns the headers every upload must contain, in display order.
func RequiredColumns() []string {
	out := make([]string, len(requiredColumns))
	copy(out, requiredColumns)
	return out
}

// header maps trimmed column names to their index. The first occurrence of a
// duplicated name wins.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			continue
		}
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

// missing returns the required columns the header lacks.
func (h header) missing() []string {
	var out []string
	for _, col := range requiredColumns {
		if _, ok := h[col]; !ok {
			out = append(out, col)
		}
	}
	return out
}

// cell returns the trimmed value of column name in row, or "" when the row
// is shorter than the header.
func (h header) cell(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) names(row []string) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		if name := strings.TrimSpace(cell); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
