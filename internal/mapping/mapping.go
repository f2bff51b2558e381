// Package mapping reconciles the Cin7 export schema with the destination
// sheet schema. Position is the primary key for matching: destination column
// i takes source column i. Name-based matching is only a fallback for
// destination columns the source is too narrow to cover, which avoids the
// duplicated-column bugs that pure name matching caused with renamed or
// repeated headers.
package mapping

import (
	"fmt"
	"strings"
)

// Unmapped marks a destination column with no source position.
const Unmapped = -1

// Column identifies a destination column. ID is the destination system's
// column identifier (a Smartsheet column ID); Title is its display name.
type Column struct {
	ID    int64
	Title string
}

// Entry binds one destination column to a source position, or marks it
// unmapped.
type Entry struct {
	Column    Column
	SourcePos int // Unmapped when no source column serves this destination
}

// Warning describes a destination column the mapper could not bind. These
// surface to the caller as warnings, never as fatal errors.
type Warning struct {
	Column string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("column %q: %s", w.Column, w.Reason)
}

// ColumnMapping is the reconciliation of one destination schema against one
// source schema, built once per upload session.
type ColumnMapping struct {
	Entries  []Entry
	Warnings []Warning
}

// SchemaError indicates the two schemas cannot be reconciled at all. It is
// raised before any upload begins.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.Reason
}

// Build produces a ColumnMapping from the destination sheet's ordered
// columns and the source export's ordered headers.
//
// Destination column i maps to source position i when the source has a
// column there. Destination columns beyond the source width fall back to
// case-insensitive exact name matching against source headers; a fallback
// match for a position already claimed is rejected and the column stays
// unmapped, so two destination columns never silently share a source
// position. Columns matched by neither strategy are left unmapped and
// reported in Warnings.
func Build(dest []Column, source []string) (*ColumnMapping, error) {
	if len(dest) == 0 {
		return nil, &SchemaError{Reason: "destination sheet has no columns"}
	}
	if len(source) == 0 {
		return nil, &SchemaError{Reason: "source export has no header columns"}
	}

	m := &ColumnMapping{Entries: make([]Entry, len(dest))}

	// Positional pass. Claims cannot collide here: one destination index,
	// one source index.
	claimed := make(map[int]string, len(dest))
	for i, col := range dest {
		if i < len(source) {
			m.Entries[i] = Entry{Column: col, SourcePos: i}
			claimed[i] = col.Title
			continue
		}
		m.Entries[i] = Entry{Column: col, SourcePos: Unmapped}
	}

	// Name fallback for destination columns past the source width.
	for i := len(source); i < len(dest); i++ {
		col := dest[i]
		pos, ok := findByName(source, col.Title)
		if !ok {
			m.Warnings = append(m.Warnings, Warning{
				Column: col.Title,
				Reason: "no source column at this position or name; values will be omitted",
			})
			continue
		}
		if owner, taken := claimed[pos]; taken {
			m.Warnings = append(m.Warnings, Warning{
				Column: col.Title,
				Reason: fmt.Sprintf("source column %d already mapped to %q; values will be omitted", pos+1, owner),
			})
			continue
		}
		m.Entries[i].SourcePos = pos
		claimed[pos] = col.Title
	}

	return m, nil
}

// Mapped returns the entries bound to a source position, in destination
// column order.
func (m *ColumnMapping) Mapped() []Entry {
	out := make([]Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.SourcePos != Unmapped {
			out = append(out, e)
		}
	}
	return out
}

// UnmappedColumns returns the destination column titles left unmapped.
func (m *ColumnMapping) UnmappedColumns() []string {
	var out []string
	for _, e := range m.Entries {
		if e.SourcePos == Unmapped {
			out = append(out, e.Column.Title)
		}
	}
	return out
}

func findByName(source []string, title string) (int, bool) {
	want := normalize(title)
	for i, h := range source {
		if normalize(h) == want {
			return i, true
		}
	}
	return 0, false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
