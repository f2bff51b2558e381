package core

import (
	"context"
	"testing"
	"time"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
)

// stubSheetAPI accepts every append. Good enough to drive a session end to
// end without a network.
type stubSheetAPI struct {
	sheet *smartsheet.Sheet
}

func (a *stubSheetAPI) GetSheet(ctx context.Context, sheetID string) (*smartsheet.Sheet, error) {
	return a.sheet, nil
}

func (a *stubSheetAPI) AddRows(ctx context.Context, sheetID string, rows []smartsheet.Row) (*smartsheet.AddRowsResult, error) {
	return &smartsheet.AddRowsResult{Added: len(rows)}, nil
}

func (a *stubSheetAPI) DeleteRows(ctx context.Context, sheetID string, rowIDs []int64) error {
	return nil
}

func newTestService() *Service {
	return NewService(&stubSheetAPI{
		sheet: &smartsheet.Sheet{
			ID:   4583173393803140,
			Name: "Inventory",
			Columns: []smartsheet.Column{
				{ID: 100, Index: 0, Title: "SKU", Primary: true},
				{ID: 101, Index: 1, Title: "Qty"},
			},
		},
	}, nil, ServiceConfig{})
}

func testRequest() SessionRequest {
	return SessionRequest{
		FileName: "stock.csv",
		FileData: []byte("ProductCode,SOH\nABC-1,10\nABC-2,5\n"),
		SheetURL: "4583173393803140",
	}
}

func TestService_RunToCompletion(t *testing.T) {
	svc := newTestService()

	sessionID, err := svc.StartSession(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	report, err := svc.GetReport(sessionID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}

	if report.State != StateCompleted {
		t.Errorf("State = %q, want %q", report.State, StateCompleted)
	}
	if report.RowsSucceeded != 2 || report.RowsFailed != 0 {
		t.Errorf("counts = %d/%d, want 2/0", report.RowsSucceeded, report.RowsFailed)
	}
	if report.SheetName != "Inventory" || report.FileName != "stock.csv" {
		t.Errorf("report identity = %q/%q", report.SheetName, report.FileName)
	}
}

func TestService_SubscribeProgressAfterCompletion(t *testing.T) {
	svc := newTestService()

	sessionID, err := svc.StartSession(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := svc.GetReport(sessionID); err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}

	// Subscribing during the retention window, after the session has
	// finished, must still observe completion: a terminal snapshot
	// followed by channel close.
	ch, err := svc.SubscribeProgress(sessionID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	select {
	case p, open := <-ch:
		if !open {
			t.Fatal("channel closed before delivering the terminal snapshot")
		}
		if p.Phase != PhaseComplete {
			t.Errorf("Phase = %q, want %q", p.Phase, PhaseComplete)
		}
		if p.State != StateCompleted {
			t.Errorf("State = %q, want %q", p.State, StateCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("received a second snapshot, want channel close")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed after session completion")
	}
}

func TestService_SubscribeProgressDuringRun(t *testing.T) {
	svc := newTestService()

	sessionID, err := svc.StartSession(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	ch, err := svc.SubscribeProgress(sessionID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	// Drain until close; the subscription must always terminate once the
	// session does.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed")
		}
	}
}
