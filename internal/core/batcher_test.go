package core

import (
	"testing"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
)

func makeRows(n int) []DestinationRow {
	rows := make([]DestinationRow, n)
	for i := range rows {
		rows[i] = DestinationRow{
			Record: i,
			Line:   i + 2,
			Cells:  []smartsheet.Cell{{ColumnID: 1, Value: i}},
		}
	}
	return rows
}

func TestSplitBatches_Counts(t *testing.T) {
	tests := []struct {
		name      string
		rows      int
		size      int
		batches   int
		lastBatch int
	}{
		{"empty", 0, 50, 0, 0},
		{"single row", 1, 50, 1, 1},
		{"exactly one batch", 50, 50, 1, 50},
		{"one over", 51, 50, 2, 1},
		{"three batches with remainder", 120, 50, 3, 20},
		{"multiple full batches", 100, 50, 2, 50},
		{"size one", 4, 1, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := SplitBatches(makeRows(tt.rows), tt.size)
			if err != nil {
				t.Fatalf("SplitBatches() error = %v", err)
			}
			if len(batches) != tt.batches {
				t.Fatalf("got %d batches, want %d", len(batches), tt.batches)
			}
			if tt.batches == 0 {
				return
			}

			// All batches except the last must be full
			for i, b := range batches[:len(batches)-1] {
				if len(b.Rows) != tt.size {
					t.Errorf("batch %d has %d rows, want %d", i, len(b.Rows), tt.size)
				}
			}
			if got := len(batches[len(batches)-1].Rows); got != tt.lastBatch {
				t.Errorf("last batch has %d rows, want %d", got, tt.lastBatch)
			}
		})
	}
}

func TestSplitBatches_PreservesOrder(t *testing.T) {
	rows := makeRows(123)
	batches, err := SplitBatches(rows, 50)
	if err != nil {
		t.Fatalf("SplitBatches() error = %v", err)
	}

	// Concatenating the batches reproduces the input exactly
	var rebuilt []DestinationRow
	for i, b := range batches {
		if b.Index != i {
			t.Errorf("batch %d has Index %d", i, b.Index)
		}
		if b.Start != i*50 {
			t.Errorf("batch %d has Start %d, want %d", i, b.Start, i*50)
		}
		rebuilt = append(rebuilt, b.Rows...)
	}

	if len(rebuilt) != len(rows) {
		t.Fatalf("rebuilt %d rows, want %d", len(rebuilt), len(rows))
	}
	for i := range rows {
		if rebuilt[i].Record != rows[i].Record {
			t.Fatalf("row %d: Record = %d, want %d", i, rebuilt[i].Record, rows[i].Record)
		}
	}
}

func TestSplitBatches_Deterministic(t *testing.T) {
	rows := makeRows(77)

	a, _ := SplitBatches(rows, 25)
	b, _ := SplitBatches(rows, 25)

	if len(a) != len(b) {
		t.Fatalf("batch counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Start != b[i].Start || len(a[i].Rows) != len(b[i].Rows) {
			t.Errorf("batch %d differs between runs", i)
		}
	}
}

func TestSplitBatches_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, -50} {
		if _, err := SplitBatches(makeRows(10), size); err == nil {
			t.Errorf("SplitBatches(size=%d) expected error", size)
		}
	}
}
