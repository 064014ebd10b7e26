// ABOUTME: Tests for stub backend metrics
// ABOUTME: Verifies instrument registration and the exposition endpoint

package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration
	a := NewMetrics("veazy")
	b := NewMetrics("veazy")

	a.ActiveStreams.Inc()
	b.ActiveStreams.Inc()
}

func TestMetrics_HandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("veazy")
	m.ActiveStreams.Set(2)
	m.ObserveRequest("/threads", 200, 12*time.Millisecond)
	m.StreamFrames.WithLabelValues("ai").Inc()
	m.OTPEvents.WithLabelValues("sent").Inc()
	m.Uploads.WithLabelValues("passport_bio_page", "accepted").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	assert.True(t, strings.Contains(body, "veazy_active_streams 2"))
	assert.True(t, strings.Contains(body, `veazy_requests_total{route="/threads",status="200"} 1`))
	assert.True(t, strings.Contains(body, `veazy_stream_frames_total{type="ai"} 1`))
	assert.True(t, strings.Contains(body, `veazy_otp_events_total{event="sent"} 1`))
	assert.True(t, strings.Contains(body, `veazy_uploads_total{document_type="passport_bio_page",outcome="accepted"} 1`))
}
