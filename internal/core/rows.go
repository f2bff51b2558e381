package core

import (
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/cin7"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/mapping"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
)

// BuildDestinationRows shapes parsed export records into destination rows
// using the column mapping. Blank cells are omitted from the row rather
// than uploaded as empty values, and rows with no mapped values at all are
// dropped (they carry nothing the destination could store).
//
// Values under quantity/value headers are converted to numbers so the
// destination treats them as such; everything else uploads as text.
func BuildDestinationRows(export *cin7.Export, m *mapping.ColumnMapping) []DestinationRow {
	entries := m.Mapped()
	rows := make([]DestinationRow, 0, len(export.Records))

	for i, rec := range export.Records {
		cells := make([]smartsheet.Cell, 0, len(entries))
		for _, e := range entries {
			raw := rec.Cell(e.SourcePos)
			if raw == "" {
				continue
			}

			var value any = raw
			if e.SourcePos < len(export.Headers) && cin7.IsNumericHeader(export.Headers[e.SourcePos]) {
				if n, ok := cin7.ParseNumber(raw); ok {
					value = n
				}
			}

			cells = append(cells, smartsheet.Cell{ColumnID: e.Column.ID, Value: value})
		}

		if len(cells) == 0 {
			continue
		}
		rows = append(rows, DestinationRow{Record: i, Line: rec.Line, Cells: cells})
	}

	return rows
}

// apiRows converts a batch to the wire representation, appending to the
// bottom of the sheet.
func apiRows(b Batch) []smartsheet.Row {
	out := make([]smartsheet.Row, len(b.Rows))
	for i, r := range b.Rows {
		out[i] = smartsheet.Row{ToBottom: true, Cells: r.Cells}
	}
	return out
}
