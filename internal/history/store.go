// ABOUTME: SQLite persistence for local conversation history using modernc.org/sqlite
// ABOUTME: Stores turns keyed by thread with automatic schema creation

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veazy/veazy-client/internal/conversation"
)

// ErrNotFound is returned when a requested thread has no recorded turns.
var ErrNotFound = fmt.Errorf("history: not found")

// ThreadSummary describes one recorded thread for listing.
type ThreadSummary struct {
	ID        string
	TurnCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists conversation turns to a local SQLite database
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a history store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_thread_created
			ON turns(thread_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	s.logger.Info("closing history store")
	return s.db.Close()
}

// SaveTurn writes a turn, replacing any earlier snapshot of the same turn.
// Assistant turns are saved repeatedly as fragments arrive; the upsert keeps
// only the latest content. The owning thread row is created or touched in the
// same call.
func (s *Store) SaveTurn(ctx context.Context, threadID string, turn conversation.Turn) error {
	now := time.Now().UTC().Format(time.RFC3339)

	threadQuery := `
		INSERT INTO threads (id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, threadQuery, threadID, now, now); err != nil {
		return fmt.Errorf("upserting thread: %w", err)
	}

	turnQuery := `
		INSERT OR REPLACE INTO turns (id, thread_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, turnQuery,
		turn.ID,
		threadID,
		string(turn.Author),
		turn.Content,
		turn.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	s.logger.Debug("saved turn", "id", turn.ID, "thread_id", threadID, "author", turn.Author)
	return nil
}

// ListTurns retrieves turns for a thread in chronological order (oldest first),
// limited to the most recent `limit` turns. If limit is 0 or negative, all
// turns are returned. Returns ErrNotFound if the thread has no recorded turns.
func (s *Store) ListTurns(ctx context.Context, threadID string, limit int) ([]conversation.Turn, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent turns, but return them in chronological order
		query = `
			SELECT id, author, content, created_at
			FROM (
				SELECT id, author, content, created_at
				FROM turns
				WHERE thread_id = ?
				ORDER BY created_at DESC
				LIMIT ?
			)
			ORDER BY created_at ASC
		`
		args = []any{threadID, limit}
	} else {
		query = `
			SELECT id, author, content, created_at
			FROM turns
			WHERE thread_id = ?
			ORDER BY created_at ASC
		`
		args = []any{threadID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	for rows.Next() {
		var turn conversation.Turn
		var author, createdAtStr string

		if err := rows.Scan(&turn.ID, &author, &turn.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}

		turn.Author = conversation.Author(author)
		turn.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}

		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}

	if len(turns) == 0 {
		return nil, ErrNotFound
	}

	return turns, nil
}

// ListThreads retrieves recorded threads ordered by most recent activity.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *Store) ListThreads(ctx context.Context, limit int) ([]*ThreadSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT t.id, t.created_at, t.updated_at, COUNT(u.id)
		FROM threads t
		LEFT JOIN turns u ON u.thread_id = t.id
		GROUP BY t.id
		ORDER BY t.updated_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []*ThreadSummary
	for rows.Next() {
		var summary ThreadSummary
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&summary.ID, &createdAtStr, &updatedAtStr, &summary.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}

		summary.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		summary.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		threads = append(threads, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}

	return threads, nil
}
