// ABOUTME: Local SQLite mirror of conversation transcripts using modernc.org/sqlite
// ABOUTME: Provides append/read access with automatic schema creation

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one line of a conversation transcript.
type Entry struct {
	ID        string
	ThreadID  string
	AgentID   string
	Role      string // "user" or "agent"
	Text      string
	Timestamp time.Time
}

// Store keeps transcripts in a local SQLite database so history stays
// browsable when the gateway is unreachable.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the transcript database at the given path.
// Parent directories are created if needed.
func NewStore(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps reads cheap while the chat loop appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the transcript table if it doesn't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcript (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_thread
			ON transcript(thread_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one transcript entry. A missing ID or timestamp is filled
// in.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (id, thread_id, agent_id, role, text, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ThreadID, e.AgentID, e.Role, e.Text, e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a thread, oldest first.
func (s *Store) Recent(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, agent_id, role, text, timestamp
		 FROM (
			SELECT * FROM transcript
			WHERE thread_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		 )
		 ORDER BY timestamp ASC`,
		threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.ThreadID, &e.AgentID, &e.Role, &e.Text, &ts); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}
	return entries, nil
}

// Threads lists distinct thread IDs, most recently active first.
func (s *Store) Threads(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM transcript
		 GROUP BY thread_id
		 ORDER BY MAX(timestamp) DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
