// Package smartsheet is a minimal client for the Smartsheet REST API,
// covering the calls this application needs: fetching sheet metadata,
// appending rows in bulk, and deleting rows. Every call performs exactly
// one network write; retry policy belongs to the caller.
package smartsheet

// Column is a destination sheet column.
type Column struct {
	ID      int64  `json:"id"`
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Primary bool   `json:"primary,omitempty"`
	Type    string `json:"type,omitempty"`
}

// RowRef identifies an existing row in a sheet.
type RowRef struct {
	ID        int64 `json:"id"`
	RowNumber int   `json:"rowNumber,omitempty"`
}

// Sheet is the destination sheet's metadata plus existing row IDs.
type Sheet struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	TotalRowCount int      `json:"totalRowCount"`
	Columns       []Column `json:"columns"`
	Rows          []RowRef `json:"rows,omitempty"`
}

// Cell is one value keyed by destination column ID. Value is a string or a
// number; blanks are omitted entirely rather than sent as empty cells.
type Cell struct {
	ColumnID int64 `json:"columnId"`
	Value    any   `json:"value"`
}

// Row is one row to append.
type Row struct {
	ToBottom bool   `json:"toBottom"`
	Cells    []Cell `json:"cells"`
}

// RowError is a destination-side validation failure for a single row in a
// bulk append. Index is the row's position within the posted batch.
type RowError struct {
	Index   int
	Code    int
	Message string
}

// AddRowsResult is the outcome of one bulk append. When Failed is non-empty
// the append partially succeeded: rows not listed were accepted.
type AddRowsResult struct {
	Added  int
	Failed []RowError
}

// Wire types for the add-rows response envelope.

type addRowsResponse struct {
	Message     string       `json:"message"`
	ResultCode  int          `json:"resultCode"`
	Result      []rowResult  `json:"result"`
	FailedItems []failedItem `json:"failedItems"`
}

type rowResult struct {
	ID int64 `json:"id"`
}

type failedItem struct {
	Index int       `json:"index"`
	RowID int64     `json:"rowId"`
	Error *apiError `json:"error"`
}

type apiError struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}
