// Package history persists finished upload session reports to Postgres.
// It is optional: when no database is configured the application runs
// without it and sessions simply go unrecorded.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id             UUID PRIMARY KEY,
	sheet_id       TEXT NOT NULL,
	sheet_name     TEXT NOT NULL DEFAULT '',
	file_name      TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	total_rows     INTEGER NOT NULL DEFAULT 0,
	rows_succeeded INTEGER NOT NULL DEFAULT 0,
	rows_failed    INTEGER NOT NULL DEFAULT 0,
	rows_skipped   INTEGER NOT NULL DEFAULT 0,
	abort_reason   TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	failures       JSONB,
	warnings       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS upload_sessions_created_at_idx
	ON upload_sessions (created_at DESC);
`

// Store records session reports in Postgres. Implements
// core.HistoryRecorder.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store and ensures its schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RecordSession persists one finished session report.
func (s *Store) RecordSession(ctx context.Context, report *core.UploadReport) error {
	failures, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	warnings, err := json.Marshal(report.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO upload_sessions (
			id, sheet_id, sheet_name, file_name, state,
			total_rows, rows_succeeded, rows_failed, rows_skipped,
			abort_reason, duration_ms, failures, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		report.SessionID, report.SheetID, report.SheetName, report.FileName,
		string(report.State), report.TotalRows, report.RowsSucceeded,
		report.RowsFailed, report.RowsSkipped, report.AbortReason,
		report.Duration.Milliseconds(), failures, warnings,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Entry is one recorded session, newest first in listings.
type Entry struct {
	ID            string    `json:"id"`
	SheetID       string    `json:"sheetId"`
	SheetName     string    `json:"sheetName"`
	FileName      string    `json:"fileName"`
	State         string    `json:"state"`
	TotalRows     int       `json:"totalRows"`
	RowsSucceeded int       `json:"rowsSucceeded"`
	RowsFailed    int       `json:"rowsFailed"`
	RowsSkipped   int       `json:"rowsSkipped"`
	AbortReason   string    `json:"abortReason,omitempty"`
	DurationMs    int       `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// List returns the most recent sessions, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sheet_id, sheet_name, file_name, state,
		       total_rows, rows_succeeded, rows_failed, rows_skipped,
		       abort_reason, duration_ms, created_at
		FROM upload_sessions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.SheetID, &e.SheetName, &e.FileName, &e.State,
			&e.TotalRows, &e.RowsSucceeded, &e.RowsFailed, &e.RowsSkipped,
			&e.AbortReason, &e.DurationMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// Failures returns the per-row failure detail recorded for one session.
func (s *Store) Failures(ctx context.Context, sessionID string) ([]core.RowFailure, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT failures FROM upload_sessions WHERE id = $1`, sessionID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("query session failures: %w", err)
	}

	var failures []core.RowFailure
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	return failures, nil
}
