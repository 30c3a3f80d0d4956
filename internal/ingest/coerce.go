package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericPrefix matches the longest leading decimal number, exponent included.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// groupedDots matches "1.234" or "12.345.678": dots as thousands marks.
var groupedDots = regexp.MustCompile(`^\d{1,3}(\.\d{3})+([^\d.,]|$)`)

var currencySigns = []string{"$", "€", "£"}

// Coerce converts a cell to a number, falling back to zero when nothing
// numeric can be read. Only a leading number is used, so "25%" is 25 and
// "12abc" is 12. A currency sign in front of the number and thousands commas
// are ignored.
func Coerce(s string) float64 {
	return coerce(s, false)
}

// coerce reads s with either '.' or ',' as the decimal mark. With a decimal
// comma, dots are thousands marks when the cell also has a comma or the dots
// group digits in threes; otherwise a lone dot still reads as a decimal point.
func coerce(s string, decimalComma bool) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], s[1:]
	}
	for _, c := range currencySigns {
		if strings.HasPrefix(s, c) {
			s = strings.TrimSpace(strings.TrimPrefix(s, c))
			break
		}
	}
	if sign == "" && s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	if decimalComma {
		if strings.Contains(s, ",") || groupedDots.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	m := numericPrefix.FindString(s)
	if m == "" || m[0] == '-' || m[0] == '+' {
		// a second sign after the first one is not a number
		return 0
	}

	v, err := strconv.ParseFloat(sign+m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
