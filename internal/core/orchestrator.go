package core

import (
	"context"
	"errors"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how the orchestrator reacts to transient batch
// failures. The zero value gets defaults applied.
type RetryPolicy struct {
	// RateRetries is how many times a rate-limited batch is retried
	// before it is recorded as a terminal failure (default 3).
	RateRetries int

	// TransportRetries is how many times a transport or server failure
	// is retried (default 1). A single bad batch must not halt the
	// whole session, so after the retries the batch fails terminally
	// and the session moves on.
	TransportRetries int

	// InitialBackoff seeds the exponential backoff used when a 429
	// carries no Retry-After hint (default 2s).
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait (default 30s).
	MaxBackoff time.Duration
}

// DefaultRetryPolicy mirrors the upload defaults of the desktop tool this
// replaces: 3 rate-limit retries, one transport retry, 2s initial backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateRetries:      3,
		TransportRetries: 1,
		InitialBackoff:   2 * time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.RateRetries <= 0 {
		p.RateRetries = d.RateRetries
	}
	if p.TransportRetries < 0 {
		p.TransportRetries = d.TransportRetries
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	return p
}

// Orchestrator runs one upload session's batches sequentially against the
// destination, applying the continuation policy after every batch:
//
//   - Succeeded / PartiallyFailed: continue to the next batch.
//   - Rate limited: wait (Retry-After when hinted, else exponential
//     backoff) and retry the same batch up to RateRetries times.
//   - Auth failure: abort; the remaining batches are recorded as skipped
//     since retrying them with the same token cannot succeed.
//   - Other transport/server failure: retry TransportRetries times, then
//     record a terminal failure and continue.
//
// Batches are never uploaded concurrently: the destination rate limit is
// the binding constraint, and sequential order keeps index-based failure
// reporting deterministic. Cancellation is checked between batches only,
// never mid-call.
type Orchestrator struct {
	uploader Uploader
	sheetID  string
	policy   RetryPolicy
	progress ProgressFunc
	state    SessionState

	// sleep is injectable so tests don't wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator in the Idle state. progress may
// be nil.
func NewOrchestrator(uploader Uploader, sheetID string, policy RetryPolicy, progress ProgressFunc) *Orchestrator {
	return &Orchestrator{
		uploader: uploader,
		sheetID:  sheetID,
		policy:   policy.withDefaults(),
		progress: progress,
		state:    StateIdle,
		sleep:    sleepCtx,
	}
}

// State returns the orchestrator's lifecycle state.
func (o *Orchestrator) State() SessionState { return o.state }

// Run processes every batch and returns the finalized report. The report
// is always produced, even when the session aborts early.
func (o *Orchestrator) Run(ctx context.Context, batches []Batch) *UploadReport {
	start := time.Now()
	o.state = StateRunning

	report := &UploadReport{
		SheetID: o.sheetID,
		State:   StateRunning,
		Batches: make([]BatchResult, 0, len(batches)),
	}
	for _, b := range batches {
		report.TotalRows += len(b.Rows)
	}

	abortReason := ""
	for _, b := range batches {
		if abortReason == "" && ctx.Err() != nil {
			abortReason = "cancelled"
		}

		if abortReason != "" {
			report.Batches = append(report.Batches, BatchResult{
				Batch:       b.Index,
				Status:      BatchSkipped,
				RowsSkipped: len(b.Rows),
			})
			report.RowsSkipped += len(b.Rows)
			continue
		}

		result := o.runBatch(ctx, b)
		report.Batches = append(report.Batches, result)
		report.RowsSucceeded += result.RowsSucceeded
		report.RowsFailed += result.RowsFailed
		report.Failures = append(report.Failures, result.Failures...)

		if result.Status == BatchFailed && result.ErrorKind == smartsheet.KindAuth {
			abortReason = "authentication failed"
		}

		o.notify(report, len(batches))
	}

	if abortReason != "" {
		o.state = StateAborted
		report.AbortReason = abortReason
	} else {
		o.state = StateCompleted
	}
	report.State = o.state
	report.Duration = time.Since(start)
	o.notify(report, len(batches))

	return report
}

// runBatch uploads one batch, retrying per policy, and returns its
// terminal result. Row counts are taken only from the final outcome so
// retries never double-count rows.
func (o *Orchestrator) runBatch(ctx context.Context, b Batch) BatchResult {
	result := BatchResult{Batch: b.Index}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.policy.InitialBackoff
	bo.MaxInterval = o.policy.MaxBackoff
	bo.MaxElapsedTime = 0 // retry count, not elapsed time, is the cap
	bo.Reset()

	rateRetries := 0
	transportRetries := 0

	for {
		result.Attempts++

		res, err := o.uploader.AddRows(ctx, o.sheetID, apiRows(b))
		if err == nil {
			return fillOutcome(result, b, res)
		}

		var apiErr *smartsheet.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &smartsheet.APIError{Kind: smartsheet.KindTransport, Message: err.Error(), Err: err}
		}

		result.StatusCode = apiErr.StatusCode
		result.ErrorKind = apiErr.Kind
		result.Error = apiErr.Error()

		switch apiErr.Kind {
		case smartsheet.KindRateLimited:
			if rateRetries < o.policy.RateRetries {
				rateRetries++
				wait := apiErr.RetryAfter
				if wait <= 0 {
					wait = bo.NextBackOff()
				}
				if err := o.sleep(ctx, wait); err != nil {
					result.Status = BatchFailed
					result.RowsFailed = len(b.Rows)
					result.Error = "cancelled while waiting to retry: " + result.Error
					return result
				}
				continue
			}

		case smartsheet.KindTransport, smartsheet.KindServer:
			if transportRetries < o.policy.TransportRetries {
				transportRetries++
				continue
			}
		}

		// Terminal: auth, validation without row detail, or retries
		// exhausted.
		result.Status = BatchFailed
		result.RowsFailed = len(b.Rows)
		return result
	}
}

// fillOutcome completes a result from a successful (possibly partial)
// append response.
func fillOutcome(result BatchResult, b Batch, res *smartsheet.AddRowsResult) BatchResult {
	// The append landed, so failure detail left over from retried
	// attempts no longer describes the outcome.
	result.Error = ""
	result.ErrorKind = ""
	result.StatusCode = 0

	if len(res.Failed) == 0 {
		result.Status = BatchSucceeded
		result.RowsSucceeded = len(b.Rows)
		return result
	}

	result.Status = BatchPartiallyFailed
	result.RowsFailed = len(res.Failed)
	result.RowsSucceeded = len(b.Rows) - len(res.Failed)
	for _, f := range res.Failed {
		rf := RowFailure{
			Batch:   b.Index,
			Row:     f.Index,
			Code:    f.Code,
			Message: f.Message,
		}
		if f.Index >= 0 && f.Index < len(b.Rows) {
			rf.Record = b.Rows[f.Index].Record
			rf.Line = b.Rows[f.Index].Line
		}
		result.Failures = append(result.Failures, rf)
	}
	return result
}

func (o *Orchestrator) notify(report *UploadReport, batchesTotal int) {
	if o.progress == nil {
		return
	}
	o.progress(Progress{
		Phase:         PhaseUploading,
		State:         o.state,
		BatchesTotal:  batchesTotal,
		BatchesDone:   len(report.Batches),
		RowsTotal:     report.TotalRows,
		RowsSucceeded: report.RowsSucceeded,
		RowsFailed:    report.RowsFailed,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
