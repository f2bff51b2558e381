package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/cin7"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/mapping"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
	"github.com/google/uuid"
)

// SessionTimeout is the maximum duration for one upload session.
var SessionTimeout = 10 * time.Minute

// DeleteChunkSize is how many existing rows are deleted per API call in
// overwrite mode. Smartsheet rejects larger ID lists.
var DeleteChunkSize = 400

// sessionRetention is how long finished sessions stay queryable.
var sessionRetention = 5 * time.Minute

// ServiceConfig holds the defaults a Service applies to every session.
type ServiceConfig struct {
	BatchSize       int
	Retry           RetryPolicy
	SessionTimeout  time.Duration
	DeleteChunkSize int
	MaxConcurrent   int
	MaxWait         time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = SessionTimeout
	}
	if c.DeleteChunkSize <= 0 {
		c.DeleteChunkSize = DeleteChunkSize
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// SessionRequest describes one upload: the export file, the destination,
// and per-session options.
type SessionRequest struct {
	FileName string
	FileData []byte

	// SheetURL is the destination sheet's URL or bare numeric ID.
	SheetURL string

	// Overwrite clears all existing rows before uploading.
	Overwrite bool

	// Verbatim skips summary-row filtering during parsing.
	Verbatim bool

	// BatchSize overrides the configured batch size when positive.
	BatchSize int
}

// Service provides the core business logic for upload sessions: parsing
// exports, reconciling schemas, and driving the batch orchestrator. It has
// no HTTP dependencies and can be driven by any frontend.
type Service struct {
	api     SheetAPI
	history HistoryRecorder // nil when history is not configured
	cfg     ServiceConfig
	limiter *SessionLimiter

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

type activeSession struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Report   *UploadReport
	Done     chan struct{}

	// ProgressMu guards Progress, Listeners, and finished; snapshots are
	// taken under it and sent outside blocking paths.
	ProgressMu sync.Mutex
	Progress   Progress
	Listeners  []chan Progress

	// finished marks that the listener channels have been closed. Late
	// subscribers during the retention window must not register a channel
	// nothing will ever close.
	finished bool
}

// NewService creates a Service. history may be nil.
func NewService(api SheetAPI, history HistoryRecorder, cfg ServiceConfig) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		api:      api,
		history:  history,
		cfg:      cfg,
		limiter:  NewSessionLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		sessions: make(map[string]*activeSession),
	}
}

// TestConnection fetches the destination sheet's metadata, verifying the
// token and the URL without writing anything.
func (s *Service) TestConnection(ctx context.Context, sheetURL string) (*smartsheet.Sheet, error) {
	sheetID, err := smartsheet.ExtractSheetID(sheetURL)
	if err != nil {
		return nil, err
	}
	return s.api.GetSheet(ctx, sheetID)
}

// StartSession validates the upload and starts the network phase in the
// background, returning the session ID. Use SubscribeProgress for updates.
//
// Parsing and schema reconciliation happen before this returns: a
// malformed export or an irreconcilable schema fails fast here, before a
// single row is written. Unmapped destination columns are warnings, not
// errors; they are carried into the report.
func (s *Service) StartSession(ctx context.Context, req SessionRequest) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	sessionID, err := s.prepare(ctx, req)
	if err != nil {
		s.limiter.Release()
		return "", err
	}
	return sessionID, nil
}

func (s *Service) prepare(ctx context.Context, req SessionRequest) (string, error) {
	export, err := cin7.Parse(req.FileData, cin7.ParseOptions{Verbatim: req.Verbatim})
	if err != nil {
		return "", fmt.Errorf("parse export: %w", err)
	}

	sheetID, err := smartsheet.ExtractSheetID(req.SheetURL)
	if err != nil {
		return "", err
	}

	sheet, err := s.api.GetSheet(ctx, sheetID)
	if err != nil {
		return "", fmt.Errorf("fetch sheet: %w", err)
	}

	destCols := make([]mapping.Column, len(sheet.Columns))
	for i, col := range sheet.Columns {
		destCols[i] = mapping.Column{ID: col.ID, Title: col.Title}
	}

	colMap, err := mapping.Build(destCols, export.Headers)
	if err != nil {
		return "", err
	}

	rows := BuildDestinationRows(export, colMap)
	if len(rows) == 0 {
		return "", fmt.Errorf("export %q has no uploadable rows", req.FileName)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	batches, err := SplitBatches(rows, batchSize)
	if err != nil {
		return "", err
	}

	warnings := make([]string, 0, len(colMap.Warnings))
	for _, w := range colMap.Warnings {
		warnings = append(warnings, w.String())
	}

	sessionID := uuid.New().String()
	sessionCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SessionTimeout)

	sess := &activeSession{
		ID:       sessionID,
		FileName: req.FileName,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		Progress: Progress{
			SessionID:    sessionID,
			Phase:        PhaseStarting,
			State:        StateIdle,
			FileName:     req.FileName,
			RowsTotal:    len(rows),
			BatchesTotal: len(batches),
		},
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	slog.Info("upload session started",
		"session_id", sessionID,
		"file", req.FileName,
		"sheet", sheet.Name,
		"rows", len(rows),
		"batches", len(batches),
		"overwrite", req.Overwrite,
		"unmapped_columns", len(colMap.UnmappedColumns()),
	)

	go s.runSession(sessionCtx, sess, sheet, batches, warnings, req.Overwrite)

	return sessionID, nil
}

// runSession drives the network phase of one session: the optional
// overwrite clear, then the batch orchestrator. A report is always
// produced.
func (s *Service) runSession(ctx context.Context, sess *activeSession, sheet *smartsheet.Sheet, batches []Batch, warnings []string, overwrite bool) {
	defer func() {
		sess.closeListeners()
		close(sess.Done)
		s.limiter.Release()
		s.cleanup(sess.ID, sessionRetention)
	}()

	sheetID := strconv.FormatInt(sheet.ID, 10)

	if overwrite {
		sess.setPhase(PhaseClearing, StateRunning)
		if err := s.clearSheet(ctx, sheet); err != nil {
			s.finalize(ctx, sess, &UploadReport{
				SessionID:   sess.ID,
				SheetID:     sheetID,
				SheetName:   sheet.Name,
				FileName:    sess.FileName,
				State:       StateAborted,
				Warnings:    warnings,
				AbortReason: "overwrite clear failed",
				Error:       err.Error(),
			})
			return
		}
	}

	sess.setPhase(PhaseUploading, StateRunning)

	orch := NewOrchestrator(s.api, sheetID, s.cfg.Retry, sess.onOrchestratorProgress)
	report := orch.Run(ctx, batches)

	report.SessionID = sess.ID
	report.SheetName = sheet.Name
	report.FileName = sess.FileName
	report.Warnings = warnings

	s.finalize(ctx, sess, report)
}

// clearSheet deletes every existing row in chunks.
func (s *Service) clearSheet(ctx context.Context, sheet *smartsheet.Sheet) error {
	if len(sheet.Rows) == 0 {
		return nil
	}

	sheetID := strconv.FormatInt(sheet.ID, 10)
	ids := make([]int64, len(sheet.Rows))
	for i, r := range sheet.Rows {
		ids[i] = r.ID
	}

	for start := 0; start < len(ids); start += s.cfg.DeleteChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + s.cfg.DeleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.api.DeleteRows(ctx, sheetID, ids[start:end]); err != nil {
			return fmt.Errorf("delete rows %d-%d: %w", start+1, end, err)
		}
	}

	slog.Info("cleared destination sheet", "sheet", sheet.Name, "rows", len(ids))
	return nil
}

// finalize records the report, emits the terminal progress snapshot, and
// persists history when configured.
func (s *Service) finalize(ctx context.Context, sess *activeSession, report *UploadReport) {
	sess.Report = report

	phase := PhaseComplete
	switch {
	case report.AbortReason == "cancelled":
		phase = PhaseCancelled
	case report.State == StateAborted:
		phase = PhaseFailed
	}

	sess.ProgressMu.Lock()
	sess.Progress.Phase = phase
	sess.Progress.State = report.State
	sess.Progress.BatchesDone = len(report.Batches)
	sess.Progress.RowsSucceeded = report.RowsSucceeded
	sess.Progress.RowsFailed = report.RowsFailed
	sess.Progress.Error = report.Error
	snapshot := sess.Progress
	sess.ProgressMu.Unlock()
	sess.notify(snapshot)

	slog.Info("upload session finished",
		"session_id", sess.ID,
		"state", report.State,
		"succeeded", report.RowsSucceeded,
		"failed", report.RowsFailed,
		"skipped", report.RowsSkipped,
		"duration", report.Duration,
	)

	if s.history == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.history.RecordSession(recordCtx, report); err != nil {
		slog.Warn("record session history", "session_id", sess.ID, "error", err)
	}
}

// SubscribeProgress returns a channel that receives progress snapshots.
// The channel is closed when the session completes.
func (s *Service) SubscribeProgress(sessionID string) (<-chan Progress, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)

	sess.ProgressMu.Lock()
	if sess.finished {
		// Session already finished: deliver the terminal snapshot on an
		// already-closed channel so the subscriber observes completion.
		ch <- sess.Progress
		sess.ProgressMu.Unlock()
		close(ch)
		return ch, nil
	}
	sess.Listeners = append(sess.Listeners, ch)
	// Send current progress immediately
	select {
	case ch <- sess.Progress:
	default:
	}
	sess.ProgressMu.Unlock()

	return ch, nil
}

// CancelSession requests cancellation. The session stops at the next batch
// boundary; an in-flight append is never interrupted, so its rows land
// whole or not at all.
func (s *Service) CancelSession(sessionID string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// GetReport returns the session's report, blocking until it completes.
func (s *Service) GetReport(sessionID string) (*UploadReport, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	<-sess.Done
	return sess.Report, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(sessionID string) (Progress, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	sess.ProgressMu.Lock()
	defer sess.ProgressMu.Unlock()
	return sess.Progress, nil
}

// LimiterStatus reports session limiter occupancy.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForSessions blocks until every active session finishes or ctx
// expires. Used during graceful shutdown.
func (s *Service) WaitForSessions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) get(sessionID string) (*activeSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return sess, nil
}

// cleanup removes the session from tracking after a delay so late report
// requests still succeed.
func (s *Service) cleanup(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	})
}

// onOrchestratorProgress merges orchestrator snapshots into the session's
// progress and fans them out.
func (sess *activeSession) onOrchestratorProgress(p Progress) {
	sess.ProgressMu.Lock()
	sess.Progress.Phase = PhaseUploading
	sess.Progress.State = p.State
	sess.Progress.BatchesDone = p.BatchesDone
	sess.Progress.RowsSucceeded = p.RowsSucceeded
	sess.Progress.RowsFailed = p.RowsFailed
	snapshot := sess.Progress
	sess.ProgressMu.Unlock()
	sess.notify(snapshot)
}

func (sess *activeSession) setPhase(phase Phase, state SessionState) {
	sess.ProgressMu.Lock()
	sess.Progress.Phase = phase
	sess.Progress.State = state
	snapshot := sess.Progress
	sess.ProgressMu.Unlock()
	sess.notify(snapshot)
}

// notify sends a snapshot to all listeners without blocking.
func (sess *activeSession) notify(p Progress) {
	sess.ProgressMu.Lock()
	defer sess.ProgressMu.Unlock()
	for _, ch := range sess.Listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels and marks the session
// finished so late subscribers get a terminal, closed channel instead.
func (sess *activeSession) closeListeners() {
	sess.ProgressMu.Lock()
	defer sess.ProgressMu.Unlock()
	for _, ch := range sess.Listeners {
		close(ch)
	}
	sess.Listeners = nil
	sess.finished = true
}
