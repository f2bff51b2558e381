package cin7

import (
	"regexp"
	"strconv"
	"strings"
)

// Pre-compiled regex for numeric validation (avoids recompilation on each call)
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// numericHeaderKeywords mark columns whose values should be uploaded as
// numbers rather than text. These are the quantity/value columns Cin7 puts
// in its stock exports.
var numericHeaderKeywords = []string{
	"stock qty", "stock value", "qty", "total", "incoming", "sales", "soh", "available",
}

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace and UTF-8 BOM
// - Removes Excel formula wrapper (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// CleanNumeric normalizes a Cin7 quantity/value cell to a plain decimal
// string. It strips currency symbols and thousands separators and converts
// accounting-style negatives "(123.45)" to "-123.45". Returns "" when the
// cleaned value is not numeric.
func CleanNumeric(s string) string {
	s = CleanCell(s)
	if s == "" {
		return ""
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", ",", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return ""
	}
	return s
}

// ParseNumber converts a cell to a number for upload. Integral values are
// returned as int64 so the destination renders them without a decimal
// point. ok is false when the cell does not clean to a numeric value.
func ParseNumber(s string) (any, bool) {
	cleaned := CleanNumeric(s)
	if cleaned == "" {
		return nil, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, false
	}

	if f == float64(int64(f)) {
		return int64(f), true
	}
	return f, true
}

// IsNumericHeader reports whether a flattened header names one of the
// quantity/value columns.
func IsNumericHeader(header string) bool {
	h := strings.ToLower(CleanCell(header))
	for _, kw := range numericHeaderKeywords {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}
