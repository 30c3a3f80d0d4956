// Package core holds the product domain types and the display formatting
// shared by the HTML views, the CLI and the sheet export.
package core

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DefaultNameLimit is how many characters of a product name chart labels keep.
const DefaultNameLimit = 15

// FormatUSD formats an amount as US dollars with thousands separators and
// two decimals: 1234.5 -> "$1,234.50", -3 -> "-$3.00".
func FormatUSD(v float64) string {
	d := finite(v).Round(2)
	s := "$" + groupFixed(d.Abs().StringFixed(2))
	if d.IsNegative() {
		return "-" + s
	}
	return s
}

// FormatPercent renders a percentage with two decimals: 12.345 -> "12.35%".
func FormatPercent(v float64) string {
	return finite(v).StringFixed(2) + "%"
}

// FormatNumber renders a plain number with thousands separators and no decimals.
func FormatNumber(v float64) string {
	d := finite(v).Round(0)
	s := groupFixed(d.Abs().StringFixed(0))
	if d.IsNegative() {
		return "-" + s
	}
	return s
}

// TruncateName keeps the first limit runes of name and appends "..." when
// anything was cut.
func TruncateName(name string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(name) <= limit {
		return name
	}
	runes := []rune(name)
	return string(runes[:limit]) + "..."
}

// finite maps NaN and infinities to zero; decimal cannot hold them.
func finite(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// groupFixed puts thousands commas into the integer part of an unsigned
// fixed-point string such as "1234567.50".
func groupFixed(fixed string) string {
	digits, frac, hasFrac := strings.Cut(fixed, ".")
	if hasFrac {
		return groupThousands(digits) + "." + frac
	}
	return groupThousands(digits)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
