package core

import (
	"context"
	"testing"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
)

// scriptedUploader returns one scripted outcome per AddRows call, in order.
// Calls past the end of the script succeed.
type scriptedUploader struct {
	script []func(rows []smartsheet.Row) (*smartsheet.AddRowsResult, error)
	calls  int
}

func (u *scriptedUploader) AddRows(ctx context.Context, sheetID string, rows []smartsheet.Row) (*smartsheet.AddRowsResult, error) {
	call := u.calls
	u.calls++
	if call < len(u.script) {
		return u.script[call](rows)
	}
	return &smartsheet.AddRowsResult{Added: len(rows)}, nil
}

func ok(rows []smartsheet.Row) (*smartsheet.AddRowsResult, error) {
	return &smartsheet.AddRowsResult{Added: len(rows)}, nil
}

func apiFailure(kind smartsheet.ErrorKind, status int) func([]smartsheet.Row) (*smartsheet.AddRowsResult, error) {
	return func([]smartsheet.Row) (*smartsheet.AddRowsResult, error) {
		return nil, &smartsheet.APIError{Kind: kind, StatusCode: status, Message: "scripted failure"}
	}
}

func newTestOrchestrator(u Uploader, policy RetryPolicy) *Orchestrator {
	o := NewOrchestrator(u, "123", policy, nil)
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return o
}

func testBatches(t *testing.T, rows, size int) []Batch {
	t.Helper()
	batches, err := SplitBatches(makeRows(rows), size)
	if err != nil {
		t.Fatalf("SplitBatches() error = %v", err)
	}
	return batches
}

func TestOrchestrator_AllSucceed(t *testing.T) {
	up := &scriptedUploader{}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 120, 50))

	if report.State != StateCompleted {
		t.Errorf("State = %q, want %q", report.State, StateCompleted)
	}
	if report.RowsSucceeded != 120 || report.RowsFailed != 0 || report.RowsSkipped != 0 {
		t.Errorf("counts = %d/%d/%d, want 120/0/0",
			report.RowsSucceeded, report.RowsFailed, report.RowsSkipped)
	}
	if up.calls != 3 {
		t.Errorf("AddRows called %d times, want 3", up.calls)
	}
	for i, b := range report.Batches {
		if b.Status != BatchSucceeded {
			t.Errorf("batch %d status = %q, want %q", i, b.Status, BatchSucceeded)
		}
		if b.Attempts != 1 {
			t.Errorf("batch %d attempts = %d, want 1", i, b.Attempts)
		}
	}
}

func TestOrchestrator_PartialFailureContinues(t *testing.T) {
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		ok,
		func(rows []smartsheet.Row) (*smartsheet.AddRowsResult, error) {
			return &smartsheet.AddRowsResult{
				Added: len(rows) - 1,
				Failed: []smartsheet.RowError{
					{Index: 7, Code: 1042, Message: "cell value exceeds limit"},
				},
			}, nil
		},
		ok,
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 150, 50))

	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}
	if up.calls != 3 {
		t.Errorf("AddRows called %d times, want 3", up.calls)
	}
	if report.RowsSucceeded != 149 || report.RowsFailed != 1 {
		t.Errorf("counts = %d succeeded / %d failed, want 149/1", report.RowsSucceeded, report.RowsFailed)
	}

	b := report.Batches[1]
	if b.Status != BatchPartiallyFailed {
		t.Errorf("batch 1 status = %q, want %q", b.Status, BatchPartiallyFailed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(report.Failures))
	}

	// Failure provenance points back at the original record set: batch 1
	// row 7 is record 57.
	f := report.Failures[0]
	if f.Batch != 1 || f.Row != 7 {
		t.Errorf("failure at batch %d row %d, want batch 1 row 7", f.Batch, f.Row)
	}
	if f.Record != 57 {
		t.Errorf("failure Record = %d, want 57", f.Record)
	}
	if f.Code != 1042 {
		t.Errorf("failure Code = %d, want 1042", f.Code)
	}
}

func TestOrchestrator_AuthFailureAborts(t *testing.T) {
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		apiFailure(smartsheet.KindAuth, 401),
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	batches := testBatches(t, 150, 50)
	report := o.Run(context.Background(), batches)

	if report.State != StateAborted {
		t.Fatalf("State = %q, want %q", report.State, StateAborted)
	}
	if report.AbortReason == "" {
		t.Error("AbortReason is empty")
	}
	// Only the first batch was attempted; an auth failure cannot succeed
	// on retry with the same token.
	if up.calls != 1 {
		t.Errorf("AddRows called %d times, want 1", up.calls)
	}

	if report.Batches[0].Status != BatchFailed {
		t.Errorf("batch 0 status = %q, want %q", report.Batches[0].Status, BatchFailed)
	}
	for i := 1; i < 3; i++ {
		if report.Batches[i].Status != BatchSkipped {
			t.Errorf("batch %d status = %q, want %q", i, report.Batches[i].Status, BatchSkipped)
		}
	}

	// Every row is accounted for exactly once
	total := report.RowsSucceeded + report.RowsFailed + report.RowsSkipped
	if total != report.TotalRows {
		t.Errorf("rows accounted = %d, want %d", total, report.TotalRows)
	}
	if report.RowsFailed != 50 || report.RowsSkipped != 100 {
		t.Errorf("failed/skipped = %d/%d, want 50/100", report.RowsFailed, report.RowsSkipped)
	}
}

func TestOrchestrator_RateLimitRetriesThenFails(t *testing.T) {
	rate := apiFailure(smartsheet.KindRateLimited, 429)
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		rate, rate, rate, rate, // initial attempt + 3 retries, all limited
		ok, // next batch
	}}
	o := newTestOrchestrator(up, RetryPolicy{RateRetries: 3})

	report := o.Run(context.Background(), testBatches(t, 100, 50))

	// Rate-limit exhaustion fails the batch but not the session
	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}

	b := report.Batches[0]
	if b.Status != BatchFailed {
		t.Errorf("batch 0 status = %q, want %q", b.Status, BatchFailed)
	}
	if b.Attempts != 4 {
		t.Errorf("batch 0 attempts = %d, want 4", b.Attempts)
	}
	if b.ErrorKind != smartsheet.KindRateLimited {
		t.Errorf("batch 0 error kind = %q, want %q", b.ErrorKind, smartsheet.KindRateLimited)
	}

	if report.Batches[1].Status != BatchSucceeded {
		t.Errorf("batch 1 status = %q, want %q", report.Batches[1].Status, BatchSucceeded)
	}
	if report.RowsSucceeded != 50 || report.RowsFailed != 50 {
		t.Errorf("counts = %d/%d, want 50/50", report.RowsSucceeded, report.RowsFailed)
	}
}

func TestOrchestrator_RateLimitRetrySucceeds(t *testing.T) {
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		apiFailure(smartsheet.KindRateLimited, 429),
		ok,
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 50, 50))

	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}
	b := report.Batches[0]
	if b.Status != BatchSucceeded {
		t.Errorf("status = %q, want %q", b.Status, BatchSucceeded)
	}
	if b.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", b.Attempts)
	}
	// Retries never double-count rows
	if report.RowsSucceeded != 50 {
		t.Errorf("RowsSucceeded = %d, want 50", report.RowsSucceeded)
	}
	// A terminal success carries no failure detail from earlier attempts
	if b.Error != "" {
		t.Errorf("Error = %q, want empty on a succeeded batch", b.Error)
	}
	if b.ErrorKind != "" {
		t.Errorf("ErrorKind = %q, want empty on a succeeded batch", b.ErrorKind)
	}
	if b.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 on a succeeded batch", b.StatusCode)
	}
}

func TestOrchestrator_TransportRetriedOnce(t *testing.T) {
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		apiFailure(smartsheet.KindTransport, 0),
		ok,
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 50, 50))

	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}
	if report.Batches[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", report.Batches[0].Attempts)
	}
	if report.RowsSucceeded != 50 {
		t.Errorf("RowsSucceeded = %d, want 50", report.RowsSucceeded)
	}
}

func TestOrchestrator_ServerErrorExhaustsRetries(t *testing.T) {
	server := apiFailure(smartsheet.KindServer, 500)
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		server, server, // initial + 1 retry
		ok,
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 100, 50))

	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}
	b := report.Batches[0]
	if b.Status != BatchFailed || b.Attempts != 2 {
		t.Errorf("batch 0 = %q after %d attempts, want failed after 2", b.Status, b.Attempts)
	}
	if report.Batches[1].Status != BatchSucceeded {
		t.Errorf("batch 1 status = %q, want %q", report.Batches[1].Status, BatchSucceeded)
	}
}

func TestOrchestrator_ValidationFailureIsTerminal(t *testing.T) {
	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		apiFailure(smartsheet.KindValidation, 400),
		ok,
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(context.Background(), testBatches(t, 100, 50))

	if report.State != StateCompleted {
		t.Fatalf("State = %q, want %q", report.State, StateCompleted)
	}
	// No retry for a request the destination deterministically rejects
	if report.Batches[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", report.Batches[0].Attempts)
	}
	if report.Batches[0].Status != BatchFailed {
		t.Errorf("status = %q, want %q", report.Batches[0].Status, BatchFailed)
	}
}

func TestOrchestrator_CancellationSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	up := &scriptedUploader{script: []func([]smartsheet.Row) (*smartsheet.AddRowsResult, error){
		func(rows []smartsheet.Row) (*smartsheet.AddRowsResult, error) {
			cancel() // cancel while the first batch is in flight
			return &smartsheet.AddRowsResult{Added: len(rows)}, nil
		},
	}}
	o := newTestOrchestrator(up, RetryPolicy{})

	report := o.Run(ctx, testBatches(t, 150, 50))

	if report.State != StateAborted {
		t.Fatalf("State = %q, want %q", report.State, StateAborted)
	}
	if report.AbortReason != "cancelled" {
		t.Errorf("AbortReason = %q, want %q", report.AbortReason, "cancelled")
	}

	// The in-flight batch completed whole; the rest were never attempted
	if up.calls != 1 {
		t.Errorf("AddRows called %d times, want 1", up.calls)
	}
	if report.Batches[0].Status != BatchSucceeded {
		t.Errorf("batch 0 status = %q, want %q", report.Batches[0].Status, BatchSucceeded)
	}
	if report.RowsSucceeded != 50 || report.RowsSkipped != 100 {
		t.Errorf("succeeded/skipped = %d/%d, want 50/100", report.RowsSucceeded, report.RowsSkipped)
	}
}

func TestOrchestrator_ProgressNotifications(t *testing.T) {
	var snapshots []Progress
	up := &scriptedUploader{}
	o := NewOrchestrator(up, "123", RetryPolicy{}, func(p Progress) {
		snapshots = append(snapshots, p)
	})
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	o.Run(context.Background(), testBatches(t, 100, 50))

	// One per batch plus the terminal snapshot
	if len(snapshots) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if last.State != StateCompleted {
		t.Errorf("final State = %q, want %q", last.State, StateCompleted)
	}
	if last.RowsSucceeded != 100 {
		t.Errorf("final RowsSucceeded = %d, want 100", last.RowsSucceeded)
	}
	if last.Percent() != 100 {
		t.Errorf("final Percent = %d, want 100", last.Percent())
	}
}

func TestOrchestrator_StateTransitions(t *testing.T) {
	up := &scriptedUploader{}
	o := newTestOrchestrator(up, RetryPolicy{})

	if o.State() != StateIdle {
		t.Errorf("initial State = %q, want %q", o.State(), StateIdle)
	}

	o.Run(context.Background(), testBatches(t, 10, 50))

	if o.State() != StateCompleted {
		t.Errorf("final State = %q, want %q", o.State(), StateCompleted)
	}
}
