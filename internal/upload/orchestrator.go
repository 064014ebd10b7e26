// ABOUTME: Upload orchestrator: validates documents, transmits them, and
// ABOUTME: injects confirmation and notification turns into the conversation.

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veazy/veazy-client/internal/conversation"
)

// Validation and precondition errors. Validation failures are terminal and
// reported before any network call is made.
var (
	ErrUnsupportedType = errors.New("only JPEG, PNG, and PDF files are supported")
	ErrFileTooLarge    = errors.New("file size must be less than 10 MiB")
	ErrUploadInFlight  = errors.New("an upload is already in flight")
	ErrNoActiveThread  = errors.New("no active conversation thread")
)

// maxUploadBytes is the upload size ceiling.
const maxUploadBytes = 10 << 20

// defaultNotifyDelay lets the confirmation turn render before the synthetic
// notification turn is sent. A UX timing choice, not a protocol requirement.
const defaultNotifyDelay = 500 * time.Millisecond

// allowedMIMETypes is the upload allow-list.
var allowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/pdf": true,
}

// API is what the orchestrator needs from the wire client.
type API interface {
	UploadDocument(ctx context.Context, threadID, filename, documentType string, data []byte) error
}

// Conversation is what the orchestrator needs from the session manager.
type Conversation interface {
	ThreadID() string
	AppendLocal(author conversation.Author, content string) *conversation.Turn
	Send(ctx context.Context, text string) error
}

// Orchestrator drives one document upload at a time through validation,
// transmission, and conversation synchronization.
type Orchestrator struct {
	mu          sync.Mutex
	inFlight    bool
	api         API
	conv        Conversation
	notifyDelay time.Duration
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifyDelay overrides the delay between the confirmation turn and the
// synthetic notification send.
func WithNotifyDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.notifyDelay = d }
}

// NewOrchestrator creates an upload orchestrator. Pass nil logger for the default.
func NewOrchestrator(api API, conv Conversation, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		api:         api,
		conv:        conv,
		notifyDelay: defaultNotifyDelay,
		logger:      logger.With("component", "upload"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates and uploads one document, then synchronizes the outcome
// into the conversation. Validation failures return before any network call.
// On acceptance a confirmation turn is appended, and after a short delay a
// notification turn is sent so the agent can react. On upload failure a
// single error turn is appended; there is no automatic retry.
func (o *Orchestrator) Submit(ctx context.Context, data []byte, filename, mimeType string, sizeBytes int64) error {
	if !allowedMIMETypes[mimeType] {
		return ErrUnsupportedType
	}
	if sizeBytes > maxUploadBytes {
		return ErrFileTooLarge
	}

	threadID := o.conv.ThreadID()
	if threadID == "" {
		return ErrNoActiveThread
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrUploadInFlight
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	docType := Classify(filename)
	o.logger.Info("uploading document",
		"filename", filename,
		"document_type", docType,
		"size_bytes", sizeBytes,
	)

	if err := o.api.UploadDocument(ctx, threadID, filename, string(docType), data); err != nil {
		o.logger.Warn("document upload failed", "filename", filename, "error", err)
		o.conv.AppendLocal(conversation.AuthorAssistant, "File upload failed. Please try again.")
		return fmt.Errorf("uploading document: %w", err)
	}

	o.conv.AppendLocal(conversation.AuthorUser, fmt.Sprintf("Uploaded: %s (%s)", filename, docType))

	// Let the confirmation render before the agent is notified.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.notifyDelay):
	}

	notification := fmt.Sprintf("I have uploaded my %s", docType.Describe())
	if err := o.conv.Send(ctx, notification); err != nil {
		o.logger.Warn("notification send rejected", "error", err)
		return fmt.Errorf("notifying agent: %w", err)
	}
	return nil
}
