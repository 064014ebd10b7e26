// ABOUTME: Recorder subscribes to a conversation session and persists its turns
// ABOUTME: Runs as a background goroutine until stopped or the session closes

package history

import (
	"context"
	"log/slog"

	"github.com/veazy/veazy-client/internal/conversation"
)

// Session is the slice of the conversation manager the recorder needs.
type Session interface {
	Subscribe() (<-chan conversation.Event, string)
	Unsubscribe(subID string)
	ThreadID() string
}

// Sink receives turn snapshots for persistence.
type Sink interface {
	SaveTurn(ctx context.Context, threadID string, turn conversation.Turn) error
}

// Recorder mirrors a session's turns into a sink. Turn updates overwrite
// earlier snapshots of the same turn, so a growing assistant turn converges
// on its final content even if the process dies mid-stream.
type Recorder struct {
	sink    Sink
	session Session
	subID   string
	done    chan struct{}
	logger  *slog.Logger
}

// NewRecorder subscribes to the session and starts recording immediately.
func NewRecorder(sink Sink, session Session) *Recorder {
	events, subID := session.Subscribe()
	r := &Recorder{
		sink:    sink,
		session: session,
		subID:   subID,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "history"),
	}
	go r.run(events)
	return r
}

func (r *Recorder) run(events <-chan conversation.Event) {
	defer close(r.done)
	for ev := range events {
		switch ev.Type {
		case conversation.EventTurnAppended, conversation.EventTurnUpdated, conversation.EventTurnFrozen:
		default:
			continue
		}

		threadID := r.session.ThreadID()
		if threadID == "" {
			continue
		}
		if err := r.sink.SaveTurn(context.Background(), threadID, ev.Turn); err != nil {
			r.logger.Warn("failed to record turn", "turn_id", ev.Turn.ID, "error", err)
		}
	}
}

// Stop unsubscribes from the session and waits for in-flight writes to finish.
// Safe to call after the session itself has closed.
func (r *Recorder) Stop() {
	r.session.Unsubscribe(r.subID)
	<-r.done
}
