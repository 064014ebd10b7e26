// ABOUTME: Package documentation for the conversation session manager.
// ABOUTME: Describes the session state machine and observer model.

// Package conversation owns the client side of a visa-assistant dialogue:
// thread lifecycle, turn submission, and incremental reconstruction of
// assistant responses from the chunked run stream.
//
// # State machine
//
// A Manager moves through
//
//	Uninitialized → Opening → Active ⇄ Sending → Failed
//
// Open is a no-op when already Active and retryable from Failed. Send
// requires Active, appends the user turn synchronously, and accumulates the
// assistant turn fragment by fragment as frames arrive, in arrival order.
// A transport failure mid-stream degrades to a single synthetic assistant
// error turn; the conversation is never left in a stuck "typing" state.
//
// # Observers
//
// Rendering layers subscribe to the manager and receive events for every
// state change and turn mutation. Publishing is non-blocking: events are
// dropped for subscribers whose channels are full, so a slow renderer cannot
// stall the stream.
//
// # Concurrency
//
// One send may be in flight per session. Cancellation is cooperative:
// Close releases the active stream reader and stops further delivery, but
// turns accumulated so far remain readable.
package conversation
