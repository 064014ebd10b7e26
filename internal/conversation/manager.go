// ABOUTME: Session manager owning thread lifecycle, turn submission, and response accumulation.
// ABOUTME: Reconstructs assistant turns incrementally from the decoded run stream.

package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veazy/veazy-client/internal/stream"
)

// Session errors.
var (
	ErrNotActive    = errors.New("session is not active")
	ErrSendInFlight = errors.New("a send is already in flight")
	ErrClosed       = errors.New("session is closed")
)

// apologyMessage is the synthetic assistant turn appended when a response
// stream fails partway. The conversation degrades instead of getting stuck.
const apologyMessage = "Sorry, I'm having trouble connecting right now. Please try again in a moment."

// subscriberBufferSize is the channel buffer for each observer.
const subscriberBufferSize = 64

// API is what the manager needs from the wire client.
type API interface {
	CreateThread(ctx context.Context) (string, error)
	OpenRun(ctx context.Context, threadID, content string) (io.ReadCloser, error)
}

// Manager owns a single conversation session. At most one live thread exists
// per manager, created lazily by Open. Methods are safe for concurrent use,
// but only one Send may be in flight at a time.
type Manager struct {
	mu           sync.Mutex
	api          API
	state        State
	threadID     string
	turns        []*Turn
	subs         map[string]chan Event
	activeStream io.Closer
	closed       bool
	logger       *slog.Logger
}

// NewManager creates a session manager in the Uninitialized state. Pass nil
// logger for the default.
func NewManager(api API, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:    api,
		state:  StateUninitialized,
		subs:   make(map[string]chan Event),
		logger: logger.With("component", "conversation"),
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ThreadID returns the server-issued thread id, or "" before Open succeeds.
func (m *Manager) ThreadID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threadID
}

// Turns returns a snapshot of all turns in order.
func (m *Manager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	for i, t := range m.turns {
		out[i] = *t
	}
	return out
}

// Open creates the session thread. It is a no-op when the session is already
// active, and retryable after a failure: a connectivity error moves the
// session to Failed and Open may simply be invoked again.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateActive || m.state == StateSending {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateOpening)
	m.mu.Unlock()

	threadID, err := m.api.CreateThread(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err != nil {
		m.setStateLocked(StateFailed)
		m.logger.Warn("thread creation failed", "error", err)
		return err
	}
	m.threadID = threadID
	m.setStateLocked(StateActive)
	m.logger.Info("session opened", "thread_id", threadID)
	return nil
}

// Send submits a user turn and consumes the assistant's streamed response.
// The session must be Active; otherwise the call is rejected with no side
// effects. Fragments are applied to the assistant turn strictly in arrival
// order and each mutation is published to observers immediately.
//
// Transport or decode failures mid-response do not return an error: they
// degrade into a single synthetic assistant turn and the session returns to
// Active. Only precondition violations are reported as errors.
func (m *Manager) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.state {
	case StateSending:
		m.mu.Unlock()
		return ErrSendInFlight
	case StateActive:
	default:
		m.mu.Unlock()
		return ErrNotActive
	}

	userTurn := m.appendLocked(AuthorUser, text)
	m.setStateLocked(StateSending)
	threadID := m.threadID
	m.mu.Unlock()

	m.logger.Debug("user turn submitted", "thread_id", threadID, "turn_id", userTurn.ID)

	rc, err := m.api.OpenRun(ctx, threadID, text)
	if err != nil {
		m.logger.Warn("opening run stream failed", "error", err)
		m.degrade()
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		rc.Close()
		return ErrClosed
	}
	m.activeStream = rc
	m.mu.Unlock()

	m.consume(rc)
	return nil
}

// consume drains one response stream, accumulating assistant fragments into
// a single turn, and restores the session to Active when the stream ends.
func (m *Manager) consume(rc io.ReadCloser) {
	defer func() {
		rc.Close()
		m.mu.Lock()
		m.activeStream = nil
		if !m.closed {
			m.setStateLocked(StateActive)
		}
		m.mu.Unlock()
	}()

	dec := stream.NewDecoder(rc, m.logger)
	var assistant *Turn

	for {
		fr, err := dec.Next()
		if errors.Is(err, io.EOF) {
			m.freeze(assistant)
			return
		}
		if err != nil {
			// Abandoned delivery after Close is not a failure.
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			m.logger.Warn("response stream failed", "error", err)
			m.degrade()
			return
		}

		if fr.Kind != stream.KindAssistant || fr.Content == "" {
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if assistant == nil {
			assistant = m.appendLocked(AuthorAssistant, fr.Content)
		} else {
			assistant.Content += fr.Content
			m.publishLocked(Event{Type: EventTurnUpdated, Turn: *assistant, Delta: fr.Content})
		}
		m.mu.Unlock()
	}
}

// degrade appends the synthetic assistant error turn and returns to Active.
func (m *Manager) degrade() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.appendLocked(AuthorAssistant, apologyMessage)
	m.setStateLocked(StateActive)
}

// freeze marks the assistant turn complete, if one was started.
func (m *Manager) freeze(assistant *Turn) {
	if assistant == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.publishLocked(Event{Type: EventTurnFrozen, Turn: *assistant})
}

// AppendLocal adds a turn that never touches the network, such as an upload
// confirmation. The turn is published to observers like any other.
func (m *Manager) AppendLocal(author Author, content string) *Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	t := m.appendLocked(author, content)
	copied := *t
	return &copied
}

// Subscribe registers an observer for session events. The returned channel
// receives every state change and turn mutation until Unsubscribe or Close.
func (m *Manager) Subscribe() (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[subID] = ch
	return ch, subID
}

// Unsubscribe removes an observer and closes its channel.
func (m *Manager) Unsubscribe(subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[subID]; ok {
		delete(m.subs, subID)
		close(ch)
	}
}

// Close stops consuming further stream bytes and releases the active stream
// reader. Turns accumulated so far remain readable; further delivery is
// abandoned. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.activeStream != nil {
		m.activeStream.Close()
		m.activeStream = nil
	}
	for subID, ch := range m.subs {
		delete(m.subs, subID)
		close(ch)
	}
	m.logger.Debug("session closed", "thread_id", m.threadID)
}

// appendLocked creates and appends a turn. Must be called with mu held.
func (m *Manager) appendLocked(author Author, content string) *Turn {
	t := &Turn{
		ID:        uuid.New().String(),
		Author:    author,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.turns = append(m.turns, t)
	m.publishLocked(Event{Type: EventTurnAppended, Turn: *t, Delta: content})
	return t
}

// setStateLocked transitions the session state. Must be called with mu held.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.publishLocked(Event{Type: EventStateChanged, State: s})
}

// publishLocked delivers an event to every subscriber without blocking.
// Events are dropped for subscribers whose channels are full. Must be called
// with mu held.
func (m *Manager) publishLocked(ev Event) {
	for subID, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Debug("dropped event for slow subscriber", "sub_id", subID)
		}
	}
}
