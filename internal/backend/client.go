// ABOUTME: Typed wire client for the Veazy backend's thread, upload, and auth endpoints.
// ABOUTME: Maps 4xx responses with a server detail onto RejectionError.

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/veazy/veazy-client/internal/identity"
	"github.com/veazy/veazy-client/internal/transport"
)

// ErrUnauthenticated indicates the server does not recognize the current credential.
var ErrUnauthenticated = errors.New("not authenticated")

// RejectionError is a server-side rejection of valid-shaped input, such as a
// wrong OTP code or a duplicate email. The message is the server's own,
// suitable for display.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return "request rejected by server"
	}
	return e.Message
}

// Client is the typed HTTP client for the Veazy backend.
type Client struct {
	t      *transport.Client
	logger *slog.Logger
}

// NewClient wraps a transport client. Pass nil logger for the default.
func NewClient(t *transport.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{t: t, logger: logger.With("component", "backend")}
}

type threadResponse struct {
	ThreadID string `json:"thread_id"`
}

// CreateThread opens a new conversation thread and returns its server-issued id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var resp threadResponse
	if err := c.t.DoJSON(ctx, http.MethodPost, "/threads", nil, &resp); err != nil {
		return "", err
	}
	if resp.ThreadID == "" {
		return "", fmt.Errorf("server returned empty thread id")
	}
	return resp.ThreadID, nil
}

type runMessage struct {
	Content string `json:"content"`
}

type runInput struct {
	Messages []runMessage `json:"messages"`
}

type runRequest struct {
	Input runInput `json:"input"`
}

// OpenRun submits a user turn and opens the response stream for it. The
// caller owns the returned reader.
func (c *Client) OpenRun(ctx context.Context, threadID, content string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/threads/%s/runs/stream", url.PathEscape(threadID))
	body := runRequest{Input: runInput{Messages: []runMessage{{Content: content}}}}
	return c.t.OpenStream(ctx, http.MethodPost, path, body)
}

// UploadDocument transmits a document with its classification and owning thread.
func (c *Client) UploadDocument(ctx context.Context, threadID, filename, documentType string, data []byte) error {
	fields := map[string]string{
		"document_type": documentType,
		"thread_id":     threadID,
	}
	err := c.t.DoMultipart(ctx, "/api/upload-document", fields, "file", filename, data, nil)
	return rejectionOr(err)
}

type authResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	Token       string `json:"token"`
}

// SendOTP requests a one-time code for the given phone number.
func (c *Client) SendOTP(ctx context.Context, countryCode, localPhone string) error {
	body := map[string]string{
		"country_code": countryCode,
		"local_phone":  localPhone,
	}
	var resp authResponse
	if err := c.t.DoJSON(ctx, http.MethodPost, "/api/auth/send-otp", body, &resp); err != nil {
		return rejectionOr(err)
	}
	if !resp.Success {
		return &RejectionError{Message: resp.Message}
	}
	return nil
}

// VerifyOTP checks an entered one-time code against the issued one.
func (c *Client) VerifyOTP(ctx context.Context, countryCode, localPhone, code string) error {
	body := map[string]string{
		"country_code": countryCode,
		"local_phone":  localPhone,
		"otp_code":     code,
	}
	var resp authResponse
	if err := c.t.DoJSON(ctx, http.MethodPost, "/api/auth/verify-otp", body, &resp); err != nil {
		return rejectionOr(err)
	}
	if !resp.Success {
		return &RejectionError{Message: resp.Message}
	}
	return nil
}

// Registration bundles every field collected across the verification steps.
type Registration struct {
	CountryCode   string `json:"country_code"`
	LocalPhone    string `json:"local_phone"`
	OTPCode       string `json:"otp_code"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	PreferredName string `json:"preferred_name,omitempty"`
}

// RegistrationResult is the authenticated outcome of a completed registration.
type RegistrationResult struct {
	Identity identity.Identity
	Token    string
}

// CompleteRegistration finalizes the verification flow in a single call.
func (c *Client) CompleteRegistration(ctx context.Context, reg Registration) (*RegistrationResult, error) {
	var resp authResponse
	if err := c.t.DoJSON(ctx, http.MethodPost, "/api/auth/complete-registration", reg, &resp); err != nil {
		return nil, rejectionOr(err)
	}
	if !resp.Success {
		return nil, &RejectionError{Message: resp.Message}
	}
	return &RegistrationResult{
		Identity: identity.Identity{UserID: resp.UserID, PhoneNumber: resp.PhoneNumber},
		Token:    resp.Token,
	}, nil
}

// Session probes the current credential. Returns ErrUnauthenticated when the
// server does not recognize it.
func (c *Client) Session(ctx context.Context) (*identity.Identity, error) {
	var resp authResponse
	if err := c.t.DoJSON(ctx, http.MethodGet, "/api/auth/session", nil, &resp); err != nil {
		var te *transport.TransportError
		if errors.As(err, &te) && (te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !resp.Success || resp.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return &identity.Identity{UserID: resp.UserID, PhoneNumber: resp.PhoneNumber}, nil
}

// Logout clears the server-side session for the current credential.
func (c *Client) Logout(ctx context.Context) error {
	return c.t.DoJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// rejectionOr converts a 4xx transport error that carries a server detail
// into a RejectionError. Connectivity failures pass through unchanged so the
// caller can distinguish "retry the same action" from "fix the input".
func rejectionOr(err error) error {
	if err == nil {
		return nil
	}
	var te *transport.TransportError
	if errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && te.Detail != "" {
		return &RejectionError{Message: te.Detail}
	}
	return err
}
