package cin7

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
// Cin7 exports put report titles and date ranges above the real header.
var MaxHeaderSearchRows = 20

// headerIndicators are column names that identify a Cin7 stock export
// header row. A row matching at least two of these is taken as the header.
var headerIndicators = []string{
	"productcode", "product code", "product", "branch", "location",
	"soh", "stock on hand", "stock qty", "incoming", "open sales", "grand total",
}

// ErrEmptyFile is returned when the export contains no parseable rows.
var ErrEmptyFile = errors.New("export contains no rows")

// ParseOptions controls export parsing.
type ParseOptions struct {
	// Verbatim keeps every data row, including summary and blank rows,
	// exactly as exported.
	Verbatim bool
}

// Parse reads a Cin7 CSV export into an Export. It sanitizes the input to
// valid UTF-8, locates the header row (skipping report preamble), flattens
// the dual-header structure when present, and unless opts.Verbatim is set
// drops blank rows and Grand Total summary rows.
func Parse(data []byte, opts ParseOptions) (*Export, error) {
	data = sanitizeUTF8(data)

	rows, err := parseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("header row not found in first %d rows", MaxHeaderSearchRows)
	}

	headerRow := rows[headerIdx]
	dataStart := headerIdx + 1
	dual := false

	var headers []string
	if dataStart < len(rows) && isSubHeaderRow(headerRow, rows[dataStart]) {
		headers = flattenHeaders(headerRow, rows[dataStart])
		dataStart++
		dual = true
	} else {
		headers = make([]string, len(headerRow))
		for i, h := range headerRow {
			headers[i] = CleanCell(h)
		}
	}

	if dataStart >= len(rows) {
		return nil, fmt.Errorf("no data rows after header (line %d)", headerIdx+1)
	}

	export := &Export{Headers: headers, DualHeader: dual}

	for i, row := range rows[dataStart:] {
		line := dataStart + i + 1 // 1-indexed file line

		if !opts.Verbatim {
			if isEmptyRow(row) || isSummaryRow(row) {
				export.Filtered++
				continue
			}
		}

		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = CleanCell(v)
		}
		export.Records = append(export.Records, Record{Line: line, Cells: cells})
	}

	if len(export.Records) == 0 {
		return nil, fmt.Errorf("no data rows after header (line %d)", headerIdx+1)
	}

	return export, nil
}

// findHeaderRow returns the index of the first row that looks like a Cin7
// header, or the first non-empty row if no indicator match is found.
func findHeaderRow(rows [][]string) int {
	maxRows := MaxHeaderSearchRows
	if len(rows) < maxRows {
		maxRows = len(rows)
	}

	firstNonEmpty := -1
	for i := 0; i < maxRows; i++ {
		if isEmptyRow(rows[i]) {
			continue
		}
		if firstNonEmpty < 0 {
			firstNonEmpty = i
		}

		matches := 0
		for _, cell := range rows[i] {
			c := strings.ToLower(CleanCell(cell))
			for _, ind := range headerIndicators {
				if c == ind || strings.Contains(c, ind) {
					matches++
					break
				}
			}
		}
		if matches >= 2 {
			return i
		}
	}
	return firstNonEmpty
}

// isSubHeaderRow reports whether next is the second row of a dual-header
// structure: the parent row names the column groups, the sub row carries
// measure names ("Stock Qty") with nothing under the leading identity
// columns.
func isSubHeaderRow(header, next []string) bool {
	if len(next) == 0 || isEmptyRow(next) {
		return false
	}
	if len(header) == 0 || CleanCell(header[0]) == "" {
		return false
	}
	// Data rows always carry the product code in the first column.
	if CleanCell(next[0]) != "" {
		return false
	}
	// Sub-header cells are labels, never numbers.
	for _, cell := range next {
		if c := CleanCell(cell); c != "" && numericRegex.MatchString(c) {
			return false
		}
	}
	return true
}

// flattenHeaders joins a parent/child header pair into single names the way
// the export's spreadsheet form does: "SOH" + "Stock Qty" → "SOH_Stock Qty".
// Empty parent cells inherit the previous group (merged cells export blank).
func flattenHeaders(parent, child []string) []string {
	width := len(parent)
	if len(child) > width {
		width = len(child)
	}

	headers := make([]string, width)
	lastParent := ""
	for j := 0; j < width; j++ {
		p := ""
		if j < len(parent) {
			p = CleanCell(parent[j])
		}
		if p != "" {
			lastParent = p
		} else {
			p = lastParent
		}

		c := ""
		if j < len(child) {
			c = CleanCell(child[j])
		}

		switch {
		case c == "" || strings.EqualFold(c, p):
			headers[j] = p
		case p == "":
			headers[j] = c
		default:
			headers[j] = p + "_" + c
		}
	}
	return headers
}

// isSummaryRow reports whether a row is a Cin7 footer/summary line rather
// than inventory data.
func isSummaryRow(row []string) bool {
	for _, cell := range row {
		c := strings.ToLower(CleanCell(cell))
		if c == "" {
			continue
		}
		return c == "total" || c == "grand total" || strings.HasPrefix(c, "grand total") || c == "productcode"
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement
// character so downstream JSON encoding never fails.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
