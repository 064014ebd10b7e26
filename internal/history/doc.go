// Package history persists conversation turns to a local SQLite database.
//
// # Overview
//
// The store keeps a client-side record of every thread the user has spoken
// in, so past conversations survive process restarts and are browsable from
// the terminal client. Turns are written by a Recorder that subscribes to a
// live conversation session; assistant turns are re-saved as their content
// grows, with the upsert keeping only the latest snapshot.
//
// # Schema
//
// Two tables: threads (id, created_at, updated_at) and turns (id, thread_id,
// author, content, created_at). WAL mode is enabled for concurrent readers.
//
// # Usage
//
//	store, err := history.Open(cfg.History.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec := history.NewRecorder(store, session)
//	defer rec.Stop()
package history
