// ABOUTME: Tests for the SQLite history store
// ABOUTME: Covers turn persistence, upsert behavior, ordering, and thread listing

package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veazy/veazy-client/internal/conversation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "history.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "history.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSaveAndListTurns(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	turns := []conversation.Turn{
		{ID: "turn-1", Author: conversation.AuthorUser, Content: "I need a visa for Japan", CreatedAt: base},
		{ID: "turn-2", Author: conversation.AuthorAssistant, Content: "Happy to help with that.", CreatedAt: base.Add(1 * time.Second)},
		{ID: "turn-3", Author: conversation.AuthorUser, Content: "What documents do I need?", CreatedAt: base.Add(2 * time.Second)},
	}

	for _, turn := range turns {
		if err := store.SaveTurn(ctx, "thread-abc", turn); err != nil {
			t.Fatalf("SaveTurn failed: %v", err)
		}
	}

	got, err := store.ListTurns(ctx, "thread-abc", 0)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("ListTurns returned %d turns, want 3", len(got))
	}

	for i, turn := range turns {
		if got[i].ID != turn.ID {
			t.Errorf("turn %d ID = %q, want %q", i, got[i].ID, turn.ID)
		}
		if got[i].Author != turn.Author {
			t.Errorf("turn %d Author = %q, want %q", i, got[i].Author, turn.Author)
		}
		if got[i].Content != turn.Content {
			t.Errorf("turn %d Content = %q, want %q", i, got[i].Content, turn.Content)
		}
		if !got[i].CreatedAt.Equal(turn.CreatedAt) {
			t.Errorf("turn %d CreatedAt = %v, want %v", i, got[i].CreatedAt, turn.CreatedAt)
		}
	}
}

func TestSaveTurn_UpsertReplacesContent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	// Simulate a growing assistant turn saved on each fragment
	snapshots := []string{"Hel", "Hello, ", "Hello, world"}
	for _, content := range snapshots {
		turn := conversation.Turn{
			ID:        "turn-grow",
			Author:    conversation.AuthorAssistant,
			Content:   content,
			CreatedAt: created,
		}
		if err := store.SaveTurn(ctx, "thread-abc", turn); err != nil {
			t.Fatalf("SaveTurn failed: %v", err)
		}
	}

	got, err := store.ListTurns(ctx, "thread-abc", 0)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("ListTurns returned %d turns, want 1", len(got))
	}
	if got[0].Content != "Hello, world" {
		t.Errorf("Content = %q, want %q", got[0].Content, "Hello, world")
	}
}

func TestListTurns_Limit(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		turn := conversation.Turn{
			ID:        fmt.Sprintf("turn-%d", i),
			Author:    conversation.AuthorUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveTurn(ctx, "thread-abc", turn); err != nil {
			t.Fatalf("SaveTurn failed: %v", err)
		}
	}

	got, err := store.ListTurns(ctx, "thread-abc", 2)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}

	// The two most recent turns, oldest first
	if len(got) != 2 {
		t.Fatalf("ListTurns returned %d turns, want 2", len(got))
	}
	if got[0].ID != "turn-3" {
		t.Errorf("first turn ID = %q, want %q", got[0].ID, "turn-3")
	}
	if got[1].ID != "turn-4" {
		t.Errorf("second turn ID = %q, want %q", got[1].ID, "turn-4")
	}
}

func TestListTurns_UnknownThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.ListTurns(context.Background(), "no-such-thread", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ListTurns error = %v, want ErrNotFound", err)
	}
}

func TestListThreads(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	// Two threads, the second written later so it lists first
	for i := 0; i < 3; i++ {
		turn := conversation.Turn{
			ID:        fmt.Sprintf("a-%d", i),
			Author:    conversation.AuthorUser,
			Content:   "hello",
			CreatedAt: base,
		}
		if err := store.SaveTurn(ctx, "thread-a", turn); err != nil {
			t.Fatalf("SaveTurn failed: %v", err)
		}
	}
	time.Sleep(1100 * time.Millisecond)
	if err := store.SaveTurn(ctx, "thread-b", conversation.Turn{
		ID: "b-0", Author: conversation.AuthorUser, Content: "hi", CreatedAt: base,
	}); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}

	threads, err := store.ListThreads(ctx, 0)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}

	if len(threads) != 2 {
		t.Fatalf("ListThreads returned %d threads, want 2", len(threads))
	}
	if threads[0].ID != "thread-b" {
		t.Errorf("first thread ID = %q, want %q", threads[0].ID, "thread-b")
	}
	if threads[1].ID != "thread-a" {
		t.Errorf("second thread ID = %q, want %q", threads[1].ID, "thread-a")
	}
	if threads[1].TurnCount != 3 {
		t.Errorf("thread-a TurnCount = %d, want 3", threads[1].TurnCount)
	}
}
