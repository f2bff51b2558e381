package smartsheet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient("test-token", WithBaseURL(srv.URL))
	return c, srv
}

func TestClient_GetSheet(t *testing.T) {
	var gotAuth, gotPath string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 4583173393803140,
			"name": "Inventory",
			"totalRowCount": 2,
			"columns": [
				{"id": 1, "index": 0, "title": "ProductCode", "primary": true},
				{"id": 2, "index": 1, "title": "SOH"}
			],
			"rows": [{"id": 10, "rowNumber": 1}, {"id": 11, "rowNumber": 2}]
		}`))
	})
	defer srv.Close()

	sheet, err := c.GetSheet(context.Background(), "4583173393803140")
	if err != nil {
		t.Fatalf("GetSheet() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if gotPath != "/sheets/4583173393803140" {
		t.Errorf("path = %q", gotPath)
	}
	if sheet.Name != "Inventory" {
		t.Errorf("Name = %q, want Inventory", sheet.Name)
	}
	if len(sheet.Columns) != 2 || len(sheet.Rows) != 2 {
		t.Errorf("columns/rows = %d/%d, want 2/2", len(sheet.Columns), len(sheet.Rows))
	}
}

func TestClient_AddRows_AllAccepted(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Query().Get("allowPartialSuccess") != "true" {
			t.Error("allowPartialSuccess not requested")
		}
		w.Write([]byte(`{"message":"SUCCESS","resultCode":0,"result":[{"id":1},{"id":2}]}`))
	})
	defer srv.Close()

	rows := []Row{
		{ToBottom: true, Cells: []Cell{{ColumnID: 1, Value: "ABC-1"}}},
		{ToBottom: true, Cells: []Cell{{ColumnID: 1, Value: "ABC-2"}}},
	}
	res, err := c.AddRows(context.Background(), "123", rows)
	if err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}
	if res.Added != 2 || len(res.Failed) != 0 {
		t.Errorf("Added/Failed = %d/%d, want 2/0", res.Added, len(res.Failed))
	}
}

func TestClient_AddRows_PartialSuccess(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"message": "PARTIAL_SUCCESS",
			"resultCode": 3,
			"result": [{"id": 1}],
			"failedItems": [
				{"index": 1, "error": {"errorCode": 1042, "message": "cell value exceeds limit"}}
			]
		}`))
	})
	defer srv.Close()

	rows := []Row{
		{ToBottom: true, Cells: []Cell{{ColumnID: 1, Value: "ok"}}},
		{ToBottom: true, Cells: []Cell{{ColumnID: 1, Value: "bad"}}},
	}
	res, err := c.AddRows(context.Background(), "123", rows)
	if err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}

	if res.Added != 1 {
		t.Errorf("Added = %d, want 1", res.Added)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("got %d failed, want 1", len(res.Failed))
	}
	f := res.Failed[0]
	if f.Index != 1 || f.Code != 1042 {
		t.Errorf("failed item = %+v", f)
	}
}

func TestClient_AddRows_EmptyInputNoCall(t *testing.T) {
	called := false
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	defer srv.Close()

	res, err := c.AddRows(context.Background(), "123", nil)
	if err != nil {
		t.Fatalf("AddRows() error = %v", err)
	}
	if called {
		t.Error("empty input should not hit the API")
	}
	if res.Added != 0 {
		t.Errorf("Added = %d, want 0", res.Added)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		body       string
		wantKind   ErrorKind
		wantRetry  time.Duration
		retryable  bool
	}{
		{
			name:     "unauthorized",
			status:   401,
			body:     `{"errorCode":1002,"message":"Your Access Token is invalid."}`,
			wantKind: KindAuth,
		},
		{
			name:     "forbidden",
			status:   403,
			body:     `{"errorCode":1004,"message":"You are not authorized."}`,
			wantKind: KindAuth,
		},
		{
			name:      "rate limited with hint",
			status:    429,
			headers:   map[string]string{"Retry-After": "30"},
			body:      `{"errorCode":4003,"message":"Rate limit exceeded."}`,
			wantKind:  KindRateLimited,
			wantRetry: 30 * time.Second,
			retryable: true,
		},
		{
			name:      "rate limited without hint",
			status:    429,
			body:      `{"errorCode":4003,"message":"Rate limit exceeded."}`,
			wantKind:  KindRateLimited,
			retryable: true,
		},
		{
			name:     "validation",
			status:   400,
			body:     `{"errorCode":1008,"message":"Unable to parse request."}`,
			wantKind: KindValidation,
		},
		{
			name:      "server error",
			status:    500,
			body:      `{"errorCode":4002,"message":"Server error."}`,
			wantKind:  KindServer,
			retryable: true,
		},
		{
			name:     "non-json error body",
			status:   503,
			body:     `upstream unavailable`,
			wantKind: KindServer,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			_, err := c.GetSheet(context.Background(), "123")
			if err == nil {
				t.Fatal("expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T, want *APIError", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", apiErr.Kind, tt.wantKind)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, tt.wantRetry)
			}
			if apiErr.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", apiErr.Retryable(), tt.retryable)
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // refuse connections

	_, err := c.GetSheet(context.Background(), "123")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Kind != KindTransport {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindTransport)
	}
}

func TestClient_DeleteRows(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"message":"SUCCESS","resultCode":0}`))
	})
	defer srv.Close()

	if err := c.DeleteRows(context.Background(), "123", []int64{10, 11, 12}); err != nil {
		t.Fatalf("DeleteRows() error = %v", err)
	}

	if gotQuery != "ids=10,11,12&ignoreRowsNotFound=true" {
		t.Errorf("query = %q", gotQuery)
	}
}
