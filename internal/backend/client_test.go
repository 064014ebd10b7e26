// ABOUTME: Tests for the typed backend wire client.
// ABOUTME: Verifies request shapes and rejection/connectivity error mapping.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veazy/veazy-client/internal/transport"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(transport.NewClient(srv.URL, nil, nil), nil), srv
}

func TestCreateThread(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads", r.URL.Path)
		w.Write([]byte(`{"thread_id":"t-42"}`))
	})

	id, err := c.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t-42", id)
}

func TestCreateThread_EmptyID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.CreateThread(context.Background())
	assert.Error(t, err)
}

func TestOpenRun_RequestShape(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/t-1/runs/stream", r.URL.Path)
		var body runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Input.Messages, 1)
		assert.Equal(t, "hello", body.Input.Messages[0].Content)
		w.Write([]byte("data: {\"type\":\"ai\",\"content\":\"hi\"}\n"))
	})

	rc, err := c.OpenRun(context.Background(), "t-1", "hello")
	require.NoError(t, err)
	rc.Close()
}

func TestSendOTP_RejectionCarriesServerDetail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"Please wait 1 minute before requesting another OTP"}`))
	})

	err := c.SendOTP(context.Background(), "+91", "9876543210")
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Please wait 1 minute before requesting another OTP", rej.Message)
}

func TestVerifyOTP_ConnectivityPassesThrough(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()
	c := NewClient(transport.NewClient(srv.URL, nil, nil), nil)

	err := c.VerifyOTP(context.Background(), "+91", "9876543210", "123456")
	var te *transport.TransportError
	require.True(t, errors.As(err, &te))
	var rej *RejectionError
	assert.False(t, errors.As(err, &rej))
}

func TestCompleteRegistration(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reg Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		assert.Equal(t, "+91", reg.CountryCode)
		assert.Equal(t, "9876543210", reg.LocalPhone)
		assert.Equal(t, "123456", reg.OTPCode)
		assert.Equal(t, "Asha", reg.FirstName)
		w.Write([]byte(`{"success":true,"user_id":"u-1","phone_number":"+919876543210","token":"tok"}`))
	})

	res, err := c.CompleteRegistration(context.Background(), Registration{
		CountryCode: "+91",
		LocalPhone:  "9876543210",
		OTPCode:     "123456",
		FirstName:   "Asha",
		LastName:    "Rao",
		Email:       "asha@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.Identity.UserID)
	assert.Equal(t, "+919876543210", res.Identity.PhoneNumber)
	assert.Equal(t, "tok", res.Token)
}

func TestSession_Unauthenticated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Authentication required"}`))
	})

	_, err := c.Session(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSession_Authenticated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/session", r.URL.Path)
		w.Write([]byte(`{"success":true,"user_id":"u-9","phone_number":"+919876543210"}`))
	})

	id, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-9", id.UserID)
}

func TestUploadDocument_FieldsAndRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "passport_photo", r.FormValue("document_type"))
		assert.Equal(t, "t-1", r.FormValue("thread_id"))
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"unsupported file"}`))
	})

	err := c.UploadDocument(context.Background(), "t-1", "me.png", "passport_photo", []byte{1})
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "unsupported file", rej.Message)
}
