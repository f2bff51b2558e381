// Package core drives upload sessions end to end: batching destination
// rows, uploading them batch by batch, applying the continuation policy
// after each outcome, and aggregating the final report. It has no UI
// dependencies and can be driven by any frontend.
package core

import (
	"context"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
)

// BatchStatus is the terminal outcome of one batch.
type BatchStatus string

const (
	// BatchSucceeded: every row in the batch was accepted.
	BatchSucceeded BatchStatus = "succeeded"

	// BatchPartiallyFailed: the destination rejected individual rows;
	// the rest were accepted.
	BatchPartiallyFailed BatchStatus = "partially_failed"

	// BatchFailed: the whole batch failed, after any retries.
	BatchFailed BatchStatus = "failed"

	// BatchSkipped: the batch was never attempted because the session
	// aborted first.
	BatchSkipped BatchStatus = "skipped"
)

// DestinationRow is one source record shaped for the destination sheet:
// cells keyed by destination column ID, plus provenance for failure
// reporting.
type DestinationRow struct {
	// Record is the index of the originating record in the parsed
	// export, so failures map back to the original record set.
	Record int

	// Line is the 1-indexed line in the source file.
	Line int

	Cells []smartsheet.Cell
}

// Batch is a bounded group of rows uploaded in a single API call.
type Batch struct {
	// Index is the batch's position in the session (0-based).
	Index int

	// Start is the absolute index of the batch's first row within the
	// full destination row sequence.
	Start int

	Rows []DestinationRow
}

// RowFailure pinpoints one rejected row with enough context to retry just
// the failed subset by hand.
type RowFailure struct {
	Batch   int    `json:"batch"`
	Row     int    `json:"row"` // index within the batch
	Record  int    `json:"record"`
	Line    int    `json:"line"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// BatchResult is the terminal outcome of one batch. Immutable once
// appended to the session report.
type BatchResult struct {
	Batch         int                  `json:"batch"`
	Status        BatchStatus          `json:"status"`
	StatusCode    int                  `json:"statusCode,omitempty"`
	ErrorKind     smartsheet.ErrorKind `json:"errorKind,omitempty"`
	Attempts      int                  `json:"attempts"`
	RowsSucceeded int                  `json:"rowsSucceeded"`
	RowsFailed    int                  `json:"rowsFailed"`
	RowsSkipped   int                  `json:"rowsSkipped"`
	Failures      []RowFailure         `json:"failures,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// SessionState is the orchestrator's lifecycle state.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateAborted   SessionState = "aborted"
)

// UploadReport aggregates every BatchResult of a session. It is always
// produced, even when the session aborts early, so the caller can identify
// exactly which rows need retrying.
type UploadReport struct {
	SessionID string       `json:"sessionId"`
	SheetID   string       `json:"sheetId"`
	SheetName string       `json:"sheetName,omitempty"`
	FileName  string       `json:"fileName,omitempty"`
	State     SessionState `json:"state"`

	TotalRows     int `json:"totalRows"`
	RowsSucceeded int `json:"rowsSucceeded"`
	RowsFailed    int `json:"rowsFailed"`
	RowsSkipped   int `json:"rowsSkipped"`

	Batches  []BatchResult `json:"batches"`
	Failures []RowFailure  `json:"failures,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`

	AbortReason string        `json:"abortReason,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Phase is the user-visible stage of a session.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseParsing   Phase = "parsing"
	PhaseMapping   Phase = "mapping"
	PhaseClearing  Phase = "clearing"
	PhaseUploading Phase = "uploading"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Progress is a snapshot of a running session, emitted to observers after
// every batch and on phase changes.
type Progress struct {
	SessionID string       `json:"sessionId"`
	Phase     Phase        `json:"phase"`
	State     SessionState `json:"state"`
	FileName  string       `json:"fileName,omitempty"`

	BatchesTotal  int `json:"batchesTotal"`
	BatchesDone   int `json:"batchesDone"`
	RowsTotal     int `json:"rowsTotal"`
	RowsSucceeded int `json:"rowsSucceeded"`
	RowsFailed    int `json:"rowsFailed"`

	Error string `json:"error,omitempty"`
}

// Percent returns row progress as 0-100.
func (p Progress) Percent() int {
	if p.RowsTotal <= 0 {
		return 0
	}
	done := p.RowsSucceeded + p.RowsFailed
	return (done * 100) / p.RowsTotal
}

// ProgressFunc receives progress snapshots. Called from the session
// goroutine; implementations must not block.
type ProgressFunc func(Progress)

// Uploader performs one batch append per call. Satisfied by
// *smartsheet.Client; stubbed in tests.
type Uploader interface {
	AddRows(ctx context.Context, sheetID string, rows []smartsheet.Row) (*smartsheet.AddRowsResult, error)
}

// SheetFetcher fetches destination sheet metadata. Satisfied by
// *smartsheet.Client.
type SheetFetcher interface {
	GetSheet(ctx context.Context, sheetID string) (*smartsheet.Sheet, error)
}

// RowDeleter removes existing rows (overwrite mode). Satisfied by
// *smartsheet.Client.
type RowDeleter interface {
	DeleteRows(ctx context.Context, sheetID string, rowIDs []int64) error
}

// SheetAPI is the full destination surface a session needs.
type SheetAPI interface {
	Uploader
	SheetFetcher
	RowDeleter
}

// HistoryRecorder persists finished session reports. Optional; sessions
// run fine without one.
type HistoryRecorder interface {
	RecordSession(ctx context.Context, report *UploadReport) error
}
