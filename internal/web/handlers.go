package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/core"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/mapping"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// handleIndex serves the single-page upload UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleSheetInfo verifies connectivity to the destination sheet and
// returns its metadata. Used by the UI's "test connection" button.
func (s *Server) handleSheetInfo(w http.ResponseWriter, r *http.Request) {
	sheetURL := r.URL.Query().Get("url")
	if sheetURL == "" {
		sheetURL = s.cfg.Smartsheet.SheetURL
	}
	if sheetURL == "" {
		writeError(w, http.StatusBadRequest, "missing sheet URL")
		return
	}

	sheet, err := s.service.TestConnection(r.Context(), sheetURL)
	if err != nil {
		writeServiceError(w, statusFor(err), err)
		return
	}

	columns := make([]string, len(sheet.Columns))
	for i, c := range sheet.Columns {
		columns[i] = c.Title
	}

	writeJSON(w, map[string]any{
		"id":       strconv.FormatInt(sheet.ID, 10),
		"name":     sheet.Name,
		"rowCount": sheet.TotalRowCount,
		"columns":  columns,
	})
}

// handleUpload accepts a Cin7 export file and starts an upload session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	sheetURL := r.FormValue("sheet_url")
	if sheetURL == "" {
		sheetURL = s.cfg.Smartsheet.SheetURL
	}
	if sheetURL == "" {
		writeError(w, http.StatusBadRequest, "missing sheet URL")
		return
	}

	req := core.SessionRequest{
		FileName:  header.Filename,
		FileData:  data,
		SheetURL:  sheetURL,
		Overwrite: s.cfg.Upload.Overwrite || formBool(r, "overwrite"),
		Verbatim:  formBool(r, "verbatim"),
	}
	if v := r.FormValue("batch_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.BatchSize = n
		}
	}

	sessionID, err := s.service.StartSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, statusFor(err), err)
		return
	}

	writeJSON(w, map[string]string{"session_id": sessionID})
}

// handleProgress streams session progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - session complete or cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events that were already sent (for resumption)
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleStatus returns the current progress snapshot without blocking.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	progress, err := s.service.GetProgress(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, progress)
}

// handleReport returns the final report of a session, blocking until the
// session completes.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	report, err := s.service.GetReport(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, report)
}

// handleFailedRows exports a session's failed rows as CSV, one line per
// rejected row with its source provenance and the destination's reason.
func (s *Server) handleFailedRows(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	report, err := s.service.GetReport(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeFailedRowsCSV(w, report.Failures)
}

// handleHistoryFailedRows exports a recorded session's failed rows as CSV,
// serving sessions that have already aged out of in-memory retention.
func (s *Server) handleHistoryFailedRows(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "session history is not configured")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	failures, err := s.history.Failures(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found: "+sessionID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeFailedRowsCSV(w, failures)
}

// writeFailedRowsCSV writes failures as a CSV attachment, one line per
// rejected row with its source provenance and the destination's reason.
func writeFailedRowsCSV(w http.ResponseWriter, failures []core.RowFailure) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("failed_rows_%s.csv", timestamp)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)
	csvWriter.Write([]string{"batch", "row", "source_line", "error_code", "error"})
	for _, f := range failures {
		csvWriter.Write([]string{
			strconv.Itoa(f.Batch),
			strconv.Itoa(f.Row),
			strconv.Itoa(f.Line),
			strconv.Itoa(f.Code),
			f.Message,
		})
	}
	csvWriter.Flush()
}

// handleCancel cancels an in-progress session.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	if err := s.service.CancelSession(sessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cancelled"}`))
}

// handleHistory returns recent session history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "session history is not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, entries)
}

// handleServerStatus reports session limiter occupancy.
func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// statusFor maps a session start error to an HTTP status code.
func statusFor(err error) int {
	var schemaErr *mapping.SchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusBadRequest
	}

	var apiErr *smartsheet.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case smartsheet.KindAuth:
			return http.StatusBadGateway
		case smartsheet.KindRateLimited:
			return http.StatusTooManyRequests
		case smartsheet.KindValidation:
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	}

	if errors.Is(err, core.ErrTooManySessions) {
		return http.StatusTooManyRequests
	}

	return http.StatusBadRequest
}

func formBool(r *http.Request, key string) bool {
	switch r.FormValue(key) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
