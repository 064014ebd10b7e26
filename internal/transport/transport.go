// ABOUTME: HTTP transport for the Veazy backend with bearer credential attachment.
// ABOUTME: Provides atomic JSON calls and long-lived byte streams for run endpoints.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// CredentialSource supplies the current authentication credential.
// Token returns the bearer token, or "" when unauthenticated.
type CredentialSource interface {
	Token() string
}

// TransportError is returned for any network failure or non-2xx response.
// StatusCode is zero when the request never produced a response. Detail
// carries the server's error message when one was present in the body.
type TransportError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client issues authenticated HTTP requests against a single backend base URL.
// Every request attaches the caller's current credential when one is set.
// Idempotence is the caller's responsibility.
type Client struct {
	baseURL string
	httpc   *http.Client
	creds   CredentialSource
	logger  *slog.Logger
}

// NewClient creates a transport client for the given base URL. Pass nil
// logger for the default. The underlying http.Client has no timeout because
// run streams may stay open indefinitely.
func NewClient(baseURL string, creds CredentialSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
		creds:   creds,
		logger:  logger.With("component", "transport"),
	}
}

// DoJSON performs an atomic request with an optional JSON body, decoding a
// 2xx response body into out when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// DoMultipart performs a multipart/form-data request with one file part and
// any number of plain form fields.
func (c *Client) DoMultipart(ctx context.Context, path string, fields map[string]string, fileField, filename string, file []byte, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return &TransportError{Op: "POST " + path, Err: fmt.Errorf("writing form field: %w", err)}
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return &TransportError{Op: "POST " + path, Err: fmt.Errorf("creating file part: %w", err)}
	}
	if _, err := part.Write(file); err != nil {
		return &TransportError{Op: "POST " + path, Err: fmt.Errorf("writing file part: %w", err)}
	}
	if err := w.Close(); err != nil {
		return &TransportError{Op: "POST " + path, Err: fmt.Errorf("finalizing multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.attachCredential(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Op:         "POST " + path,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: "POST " + path, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// OpenStream issues a request whose response body is a long-running byte
// stream. The caller owns the returned reader and must close it to release
// the connection.
func (c *Client) OpenStream(ctx context.Context, method, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(resp.Body)
		resp.Body.Close()
		return nil, &TransportError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}
	}

	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: method + " " + path, Err: fmt.Errorf("marshaling request: %w", err)}
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachCredential(req)
	return req, nil
}

// attachCredential sets the Authorization header when a credential is
// available. All endpoints share this single bearer convention.
func (c *Client) attachCredential(req *http.Request) {
	if c.creds == nil {
		return
	}
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorDetail extracts the server's error message from a failure response
// body. The backend reports errors as {"detail": "..."}; some handlers use
// {"error": "..."}.
func errorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Error
}
