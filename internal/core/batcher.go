package core

import "fmt"

// DefaultBatchSize is the number of rows per append call. Smartsheet
// recommends staying at or below this for bulk row operations.
const DefaultBatchSize = 50

// SplitBatches splits rows into batches of at most size rows each. Every
// batch is full except possibly the last, which holds the remainder. An
// empty input yields zero batches.
//
// The split is deterministic: batch k holds rows [k*size, (k+1)*size) of
// the input in original order, so a failure reported by batch and row
// index maps back unambiguously to the original record set.
func SplitBatches(rows []DestinationRow, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	batches := make([]Batch, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, Batch{
			Index: len(batches),
			Start: start,
			Rows:  rows[start:end],
		})
	}
	return batches, nil
}
