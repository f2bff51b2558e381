package smartsheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production Smartsheet API endpoint.
const DefaultBaseURL = "https://api.smartsheet.com/2.0"

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 64 * 1024

// Client is an authenticated Smartsheet API client. It holds no state
// across calls beyond the token and HTTP client it was built with, and it
// never logs the token.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests, regional deployments).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// NewClient creates a client authenticated with the given access token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpc:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSheet fetches sheet metadata: name, columns in display order, and
// existing row IDs (needed for overwrite mode).
func (c *Client) GetSheet(ctx context.Context, sheetID string) (*Sheet, error) {
	var sheet Sheet
	path := fmt.Sprintf("/sheets/%s", url.PathEscape(sheetID))
	if err := c.do(ctx, http.MethodGet, path, nil, &sheet); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// AddRows appends rows to the bottom of the sheet in a single call, with
// partial success enabled: rows the destination rejects are reported in
// the result's Failed list while accepted rows still land.
func (c *Client) AddRows(ctx context.Context, sheetID string, rows []Row) (*AddRowsResult, error) {
	if len(rows) == 0 {
		return &AddRowsResult{}, nil
	}

	path := fmt.Sprintf("/sheets/%s/rows?allowPartialSuccess=true", url.PathEscape(sheetID))

	var resp addRowsResponse
	if err := c.do(ctx, http.MethodPost, path, rows, &resp); err != nil {
		return nil, err
	}

	result := &AddRowsResult{Added: len(resp.Result)}
	for _, item := range resp.FailedItems {
		re := RowError{Index: item.Index}
		if item.Error != nil {
			re.Code = item.Error.ErrorCode
			re.Message = item.Error.Message
		}
		result.Failed = append(result.Failed, re)
	}
	return result, nil
}

// DeleteRows removes the given rows from the sheet in one call. Rows that
// no longer exist are ignored rather than failing the whole delete.
func (c *Client) DeleteRows(ctx context.Context, sheetID string, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}

	ids := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	path := fmt.Sprintf("/sheets/%s/rows?ids=%s&ignoreRowsNotFound=true",
		url.PathEscape(sheetID), strings.Join(ids, ","))

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one API call and decodes the response into out (when out is
// non-nil). Non-2xx responses and transport failures are returned as
// *APIError with the outcome already classified.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorFromResponse builds an APIError from a non-2xx response, pulling
// the Smartsheet error envelope and the Retry-After hint when present.
func (c *Client) errorFromResponse(resp *http.Response) *APIError {
	apiErr := &APIError{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope apiError
	if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
		apiErr.Code = envelope.ErrorCode
		apiErr.Message = envelope.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if apiErr.Kind == KindRateLimited {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	return apiErr
}
