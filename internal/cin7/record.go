// Package cin7 parses Cin7 inventory exports into ordered records.
// This package has no network or UI dependencies; it turns raw CSV bytes
// into the header list and row set the rest of the pipeline works on.
package cin7

// Record is one inventory row from a Cin7 export. Cells are indexed by
// column position, matching the flattened header list of the Export that
// produced it. Records are immutable once parsed.
type Record struct {
	// Line is the 1-indexed line number in the source file, for
	// user-facing failure reporting.
	Line int

	Cells []string
}

// Cell returns the value at the given column position, or "" when the row
// is shorter than the header (Cin7 drops trailing empty cells on export).
func (r Record) Cell(pos int) string {
	if pos < 0 || pos >= len(r.Cells) {
		return ""
	}
	return r.Cells[pos]
}

// Export is a parsed Cin7 export: the flattened header row plus all data
// rows that survived filtering, in file order.
type Export struct {
	Headers []string
	Records []Record

	// DualHeader is true when the export carried the two-row grouped
	// header structure and headers were flattened.
	DualHeader bool

	// Filtered counts rows dropped as summary or empty rows.
	Filtered int
}
