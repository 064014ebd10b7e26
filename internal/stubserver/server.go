// ABOUTME: In-memory stub of the Veazy backend for development and testing
// ABOUTME: Serves thread creation, SSE run streams, uploads, and the OTP auth flow

package stubserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/veazy/veazy-client/internal/observability"
)

const (
	otpValidity    = 10 * time.Minute
	otpMaxAttempts = 3
	resendWindow   = time.Minute
	sessionTTL     = 7 * 24 * time.Hour
	maxUploadBytes = 10 << 20
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

type user struct {
	id            string
	phone         string
	firstName     string
	lastName      string
	email         string
	preferredName string
	verified      bool
	sessionToken  string

	otpCode     string
	otpIssuedAt time.Time
	otpVerified bool
	otpAttempts int
	lastOTPSent time.Time
}

type thread struct {
	id        string
	userID    string
	createdAt time.Time
}

// UploadRecord describes one accepted document upload.
type UploadRecord struct {
	ThreadID     string
	DocumentType string
	Filename     string
	Size         int
}

// Server is an in-memory backend stub. All state lives in maps guarded by one
// mutex; it is meant for a single developer session, not production load.
type Server struct {
	issuer  *JWTIssuer
	logger  *slog.Logger
	metrics *observability.Metrics

	devCode   string
	chunkSize int
	now       func() time.Time

	mu      sync.Mutex
	users   map[string]*user // keyed by full phone number
	threads map[string]*thread
	uploads []UploadRecord
}

// Option configures a Server.
type Option func(*Server)

// WithDevCode fixes the issued OTP code instead of generating a random one.
func WithDevCode(code string) Option {
	return func(s *Server) { s.devCode = code }
}

// WithChunkSize sets the SSE fragment size in runes.
func WithChunkSize(n int) Option {
	return func(s *Server) { s.chunkSize = n }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a stub server signing session tokens with the given secret.
// Pass nil logger for the default.
func New(secret []byte, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		issuer:    NewJWTIssuer(secret),
		logger:    logger.With("component", "stubserver"),
		metrics:   observability.NewMetrics("veazy"),
		chunkSize: 8,
		now:       time.Now,
		users:     make(map[string]*user),
		threads:   make(map[string]*thread),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Uploads returns a snapshot of every accepted upload.
func (s *Server) Uploads() []UploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UploadRecord, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// Router builds the HTTP handler for the full wire surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observeRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/api/auth/send-otp", s.handleSendOTP)
	r.Post("/api/auth/verify-otp", s.handleVerifyOTP)
	r.Post("/api/auth/complete-registration", s.handleCompleteRegistration)
	r.Post("/api/upload-document", s.handleUploadDocument)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/auth/session", s.handleSession)
		r.Post("/api/auth/logout", s.handleLogout)
		r.Post("/threads", s.handleCreateThread)
		r.Post("/threads/{threadID}/runs/stream", s.handleStreamRun)
	})

	return r
}

func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.ObserveRequest(route, ww.Status(), time.Since(start))
	})
}

type contextKey string

const userContextKey contextKey = "user"

// requireAuth verifies the bearer token and resolves the calling user.
// Tokens invalidated by logout are rejected even before their expiry.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondDetail(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userID, _, err := s.issuer.Verify(token)
		if err != nil {
			respondDetail(w, http.StatusUnauthorized, err.Error())
			return
		}

		s.mu.Lock()
		var u *user
		for _, candidate := range s.users {
			if candidate.id == userID {
				u = candidate
				break
			}
		}
		s.mu.Unlock()

		if u == nil {
			respondDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		if u.sessionToken != token {
			respondDetail(w, http.StatusUnauthorized, "Session has been logged out")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, u)))
	})
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(userContextKey).(*user)
	return u
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	t := &thread{
		id:        uuid.New().String(),
		userID:    u.id,
		createdAt: s.now(),
	}

	s.mu.Lock()
	s.threads[t.id] = t
	s.mu.Unlock()

	s.logger.Debug("created thread", "thread_id", t.id, "user_id", u.id)
	respondJSON(w, http.StatusOK, map[string]string{"thread_id": t.id})
}

type runMessage struct {
	Content string `json:"content"`
}

type runRequest struct {
	Input struct {
		Messages []runMessage `json:"messages"`
	} `json:"input"`
}

func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	s.mu.Lock()
	_, ok := s.threads[threadID]
	s.mu.Unlock()
	if !ok {
		respondDetail(w, http.StatusNotFound, "Thread not found")
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Input.Messages) == 0 {
		respondDetail(w, http.StatusBadRequest, "No messages provided")
		return
	}
	content := req.Input.Messages[len(req.Input.Messages)-1].Content

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondDetail(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	writeFrame := func(kind, fragment string) bool {
		frame := map[string]string{
			"id":      fmt.Sprintf("%s_%s", kind, threadID),
			"type":    kind,
			"content": fragment,
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		s.metrics.StreamFrames.WithLabelValues(kind).Inc()
		return true
	}

	// Echo the user turn first, the way the real backend does
	if !writeFrame("human", content) {
		return
	}

	reply := Reply(content)
	for _, fragment := range chunkReply(reply, s.chunkSize) {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		if !writeFrame("ai", fragment) {
			return
		}
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes + 1<<20); err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	documentType := r.FormValue("document_type")
	threadID := r.FormValue("thread_id")
	if documentType == "" || threadID == "" {
		respondDetail(w, http.StatusBadRequest, "document_type and thread_id are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	contentType := mimeForFilename(header.Filename)
	if !allowedUploadTypes[contentType] {
		s.metrics.Uploads.WithLabelValues(documentType, "rejected").Inc()
		respondDetail(w, http.StatusBadRequest,
			fmt.Sprintf("File type %s not allowed. Use JPEG, PNG, or PDF.", contentType))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, "File upload failed. Please try again.")
		return
	}
	if len(data) > maxUploadBytes {
		s.metrics.Uploads.WithLabelValues(documentType, "rejected").Inc()
		respondDetail(w, http.StatusBadRequest, "File too large. Maximum size is 10MB.")
		return
	}

	record := UploadRecord{
		ThreadID:     threadID,
		DocumentType: documentType,
		Filename:     header.Filename,
		Size:         len(data),
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, record)
	s.mu.Unlock()

	s.metrics.Uploads.WithLabelValues(documentType, "accepted").Inc()
	s.logger.Info("accepted upload",
		"thread_id", threadID, "document_type", documentType,
		"filename", header.Filename, "size", len(data))

	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       "File uploaded successfully",
		"document_type": documentType,
		"thread_id":     threadID,
		"filename":      header.Filename,
		"file_size":     len(data),
	})
}

func mimeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

type authResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	UserID      string `json:"user_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Token       string `json:"token,omitempty"`
}

type sendOTPRequest struct {
	CountryCode string `json:"country_code"`
	LocalPhone  string `json:"local_phone"`
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !validLocalPhone(req.LocalPhone) || !strings.HasPrefix(req.CountryCode, "+") {
		respondDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid phone number format for country code %s", req.CountryCode))
		return
	}

	fullPhone := req.CountryCode + req.LocalPhone
	now := s.now()

	s.mu.Lock()
	u, ok := s.users[fullPhone]
	if ok && now.Sub(u.lastOTPSent) < resendWindow {
		s.mu.Unlock()
		s.metrics.OTPEvents.WithLabelValues("rate_limited").Inc()
		respondDetail(w, http.StatusTooManyRequests, "Please wait 1 minute before requesting another OTP")
		return
	}
	if !ok {
		u = &user{id: uuid.New().String(), phone: fullPhone}
		s.users[fullPhone] = u
	}
	u.otpCode = s.newCode()
	u.otpIssuedAt = now
	u.lastOTPSent = now
	u.otpAttempts = 0
	u.otpVerified = false
	code := u.otpCode
	s.mu.Unlock()

	s.metrics.OTPEvents.WithLabelValues("sent").Inc()
	// Development stand-in for SMS delivery
	s.logger.Info("issued OTP", "phone", fullPhone, "code", code)

	respondJSON(w, http.StatusOK, authResponse{
		Success:     true,
		Message:     fmt.Sprintf("OTP sent to %s %s", req.CountryCode, req.LocalPhone),
		PhoneNumber: fullPhone,
	})
}

type verifyOTPRequest struct {
	CountryCode string `json:"country_code"`
	LocalPhone  string `json:"local_phone"`
	OTPCode     string `json:"otp_code"`
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fullPhone := req.CountryCode + req.LocalPhone
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[fullPhone]
	if !ok {
		respondDetail(w, http.StatusBadRequest, "No verification request found for this phone number")
		return
	}

	if u.otpAttempts >= otpMaxAttempts {
		s.metrics.OTPEvents.WithLabelValues("locked_out").Inc()
		respondDetail(w, http.StatusBadRequest, "Maximum OTP attempts exceeded")
		return
	}

	if req.OTPCode != u.otpCode || now.Sub(u.otpIssuedAt) > otpValidity {
		u.otpAttempts++
		s.metrics.OTPEvents.WithLabelValues("rejected").Inc()
		respondDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid OTP code. %d attempts remaining", otpMaxAttempts-u.otpAttempts))
		return
	}

	u.otpAttempts = 0
	u.otpVerified = true
	s.metrics.OTPEvents.WithLabelValues("verified").Inc()

	respondJSON(w, http.StatusOK, authResponse{
		Success:     true,
		Message:     "OTP verified successfully",
		UserID:      u.id,
		PhoneNumber: u.phone,
	})
}

type completeRegistrationRequest struct {
	CountryCode   string `json:"country_code"`
	LocalPhone    string `json:"local_phone"`
	OTPCode       string `json:"otp_code"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	PreferredName string `json:"preferred_name"`
}

func (s *Server) handleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req completeRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !strings.HasPrefix(req.CountryCode, "+") {
		respondDetail(w, http.StatusBadRequest, "Country code must start with +")
		return
	}
	if len(req.OTPCode) != 6 {
		respondDetail(w, http.StatusBadRequest, "OTP must be 6 digits")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		respondDetail(w, http.StatusBadRequest, "First name and last name are required")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondDetail(w, http.StatusBadRequest, "Email is required")
		return
	}

	fullPhone := req.CountryCode + req.LocalPhone
	now := s.now()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[fullPhone]
	if !ok {
		respondDetail(w, http.StatusBadRequest, "No verification request found for this phone number")
		return
	}
	if u.verified {
		respondDetail(w, http.StatusBadRequest, "User already registered with this phone number")
		return
	}

	codeUsable := req.OTPCode == u.otpCode && now.Sub(u.otpIssuedAt) <= otpValidity
	if !u.otpVerified && !codeUsable {
		respondDetail(w, http.StatusBadRequest, "OTP verification failed: Invalid OTP code")
		return
	}

	for _, other := range s.users {
		if other != u && other.verified && other.email == email {
			respondDetail(w, http.StatusBadRequest, "Email address is already registered")
			return
		}
	}

	token, err := s.issuer.Generate(u.id, u.phone, sessionTTL)
	if err != nil {
		respondDetail(w, http.StatusInternalServerError, "Internal server error: signing token")
		return
	}

	u.firstName = strings.TrimSpace(req.FirstName)
	u.lastName = strings.TrimSpace(req.LastName)
	u.email = email
	u.preferredName = strings.TrimSpace(req.PreferredName)
	u.verified = true
	u.otpAttempts = 0
	u.sessionToken = token

	s.metrics.OTPEvents.WithLabelValues("registered").Inc()
	s.logger.Info("registered user", "user_id", u.id, "phone", u.phone)

	respondJSON(w, http.StatusOK, authResponse{
		Success:     true,
		Message:     fmt.Sprintf("Registration completed successfully! Welcome, %s!", u.firstName),
		UserID:      u.id,
		PhoneNumber: u.phone,
		Token:       token,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	respondJSON(w, http.StatusOK, authResponse{
		Success:     true,
		Message:     "Valid session",
		UserID:      u.id,
		PhoneNumber: u.phone,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	s.mu.Lock()
	u.sessionToken = ""
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) newCode() string {
	if s.devCode != "" {
		return s.devCode
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func validLocalPhone(local string) bool {
	if len(local) != 10 {
		return false
	}
	for _, r := range local {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondDetail writes the backend's error shape: {"detail": "..."}.
func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
